package domain

// Address is an opaque, externally-authenticated ledger address. It keys all
// per-user state; tradepost never inspects its structure.
type Address string

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == ""
}

func (a Address) String() string {
	return string(a)
}
