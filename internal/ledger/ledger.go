// Package ledger defines the boundary to the host ledger that moves funds
// between addresses. The marketplace never holds funds itself; it instructs
// the ledger to move them and records the outcome.
package ledger

import (
	"context"
	"errors"

	"tradepost/internal/domain"
)

var (
	// ErrInsufficientFunds is returned when the source address cannot cover
	// the transfer amount.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidTransfer is returned for malformed transfers, such as a zero
	// address or non-positive amount.
	ErrInvalidTransfer = errors.New("invalid transfer")
)

// Ledger moves funds between addresses. Implementations must be safe for
// concurrent use.
type Ledger interface {
	// Transfer moves amount from one address to another. The transfer either
	// completes in full or fails with no effect.
	Transfer(ctx context.Context, from, to domain.Address, amount int64) error
	// BalanceOf reports the spendable funds held by an address.
	BalanceOf(ctx context.Context, addr domain.Address) (int64, error)
}
