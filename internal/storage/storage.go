// Package storage defines the persistence boundary for marketplace state.
//
// Stores are interface-driven to keep the domain logic testable and to allow
// swapping the in-memory implementation for postgres without rewiring
// business code. Implementations return sentinel errors
// (pkg/platform/sentinel); services translate them into domain errors.
package storage

import (
	"context"

	"tradepost/internal/audit"
	"tradepost/internal/domain"
)

// UserStore persists registered profiles keyed by ledger address.
type UserStore interface {
	// CreateUser stores a new profile. Returns sentinel.ErrConflict when the
	// address already has one; registration is refused, never absorbed.
	CreateUser(ctx context.Context, user domain.User) error
	GetUser(ctx context.Context, addr domain.Address) (domain.User, error)
}

// ItemStore persists listings with catalog-assigned sequential ids.
type ItemStore interface {
	// AppendItem assigns the next sequential id (starting at 0) and stores
	// the listing. Ids are never reused.
	AppendItem(ctx context.Context, item domain.Item) (domain.Item, error)
	GetItem(ctx context.Context, id int64) (domain.Item, error)
	// GetItemForUpdate reads the item and holds it against concurrent
	// mutation until the surrounding transaction ends. Sale paths must read
	// through this so availability is checked against the latest committed
	// state, not a stale snapshot.
	GetItemForUpdate(ctx context.Context, id int64) (domain.Item, error)
	UpdateItem(ctx context.Context, item domain.Item) error
}

// PurchaseStore keeps the append-only, per-buyer purchase sequence.
type PurchaseStore interface {
	AppendPurchase(ctx context.Context, purchase domain.Purchase) error
	// ListPurchasesByBuyer returns the buyer's purchases in purchase order.
	ListPurchasesByBuyer(ctx context.Context, buyer domain.Address) ([]domain.Purchase, error)
}

// BalanceStore tracks withdrawable escrow balances per address.
type BalanceStore interface {
	GetBalance(ctx context.Context, addr domain.Address) (int64, error)
	AddBalance(ctx context.Context, addr domain.Address, amount int64) error
	// DrainBalance zeroes the address's balance and returns the drained
	// amount (0 when nothing was held). The zeroing must be visible inside
	// the surrounding transaction before any external transfer is issued.
	DrainBalance(ctx context.Context, addr domain.Address) (int64, error)
}

// AuditStore is the sink the audit worker drains into.
type AuditStore interface {
	AppendAuditEvent(ctx context.Context, event audit.Event) error
	ListAuditEventsByUser(ctx context.Context, addr domain.Address) ([]audit.Event, error)
}

// Tx provides the per-operation transactional boundary. Every public
// marketplace operation runs inside RunInTx so its state mutations either all
// commit or none do. Implementations may wrap a database transaction or, in
// memory, a coarse lock with snapshot rollback.
type Tx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store bundles all marketplace persistence behind one transactional surface.
type Store interface {
	UserStore
	ItemStore
	PurchaseStore
	BalanceStore
	AuditStore
	Tx
}
