package domain

import (
	"time"

	dErrors "tradepost/pkg/domain-errors"
)

// User is the profile registered for a ledger address.
//
// Invariants:
//   - Created exactly once per address; there is no rename or unregister.
//   - Username is non-empty but NOT unique: two addresses may share a
//     display name.
type User struct {
	Address   Address   `json:"address"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// NewUser validates and constructs a User record.
func NewUser(addr Address, username string, now time.Time) (User, error) {
	if addr.IsZero() {
		return User{}, dErrors.New(dErrors.CodeBadRequest, "caller address is required")
	}
	if username == "" {
		return User{}, dErrors.New(dErrors.CodeBadRequest, "username must not be empty")
	}
	if len(username) > 64 {
		return User{}, dErrors.New(dErrors.CodeBadRequest, "username must be 64 characters or less")
	}
	return User{Address: addr, Username: username, CreatedAt: now}, nil
}
