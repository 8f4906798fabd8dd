// Package memory provides the in-memory storage.Store implementation.
//
// A single mutex serializes marketplace operations, which is exactly the
// concurrency model the host ledger promises: one operation at a time against
// the service's state. RunInTx takes a snapshot before running the operation
// and restores it on error, so a failed operation leaves no partial effect.
package memory

import (
	"context"
	"sync"

	"tradepost/internal/audit"
	"tradepost/internal/domain"
	"tradepost/internal/storage"
	"tradepost/pkg/platform/sentinel"
)

type txMarker struct{}

// Store keeps all marketplace state in process. Safe for concurrent use;
// intended for tests, local development, and single-node deployments.
type Store struct {
	mu        sync.Mutex
	users     map[domain.Address]domain.User
	items     []domain.Item
	purchases map[domain.Address][]domain.Purchase
	balances  map[domain.Address]int64
	events    []audit.Event
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		users:     make(map[domain.Address]domain.User),
		purchases: make(map[domain.Address][]domain.Purchase),
		balances:  make(map[domain.Address]int64),
	}
}

// enter acquires the store lock unless the context is already inside a
// transaction, in which case RunInTx holds it. This mirrors the postgres
// store picking an active *sql.Tx out of context.
func (s *Store) enter(ctx context.Context) (unlock func()) {
	if inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func inTx(ctx context.Context) bool {
	marked, ok := ctx.Value(txMarker{}).(bool)
	return ok && marked
}

// snapshot copies the store state. Entity values are plain value types, so a
// shallow copy of each container is a full rollback point.
type snapshot struct {
	users     map[domain.Address]domain.User
	items     []domain.Item
	purchases map[domain.Address][]domain.Purchase
	balances  map[domain.Address]int64
	events    []audit.Event
}

func (s *Store) snapshotLocked() snapshot {
	users := make(map[domain.Address]domain.User, len(s.users))
	for k, v := range s.users {
		users[k] = v
	}
	items := make([]domain.Item, len(s.items))
	copy(items, s.items)
	purchases := make(map[domain.Address][]domain.Purchase, len(s.purchases))
	for k, v := range s.purchases {
		list := make([]domain.Purchase, len(v))
		copy(list, v)
		purchases[k] = list
	}
	balances := make(map[domain.Address]int64, len(s.balances))
	for k, v := range s.balances {
		balances[k] = v
	}
	events := make([]audit.Event, len(s.events))
	copy(events, s.events)
	return snapshot{users: users, items: items, purchases: purchases, balances: balances, events: events}
}

func (s *Store) restoreLocked(snap snapshot) {
	s.users = snap.users
	s.items = snap.items
	s.purchases = snap.purchases
	s.balances = snap.balances
	s.events = snap.events
}

// RunInTx runs fn as one atomic operation: the lock is held across the whole
// call and the pre-transaction state is restored when fn fails. Nested calls
// join the enclosing transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshotLocked()
	if err := fn(context.WithValue(ctx, txMarker{}, true)); err != nil {
		s.restoreLocked(snap)
		return err
	}
	return nil
}

// UserStore --------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, user domain.User) error {
	defer s.enter(ctx)()
	if _, exists := s.users[user.Address]; exists {
		return sentinel.ErrConflict
	}
	s.users[user.Address] = user
	return nil
}

func (s *Store) GetUser(ctx context.Context, addr domain.Address) (domain.User, error) {
	defer s.enter(ctx)()
	user, ok := s.users[addr]
	if !ok {
		return domain.User{}, sentinel.ErrNotFound
	}
	return user, nil
}

// ItemStore --------------------------------------------------------------

func (s *Store) AppendItem(ctx context.Context, item domain.Item) (domain.Item, error) {
	defer s.enter(ctx)()
	item.ID = int64(len(s.items))
	s.items = append(s.items, item)
	return item, nil
}

func (s *Store) GetItem(ctx context.Context, id int64) (domain.Item, error) {
	defer s.enter(ctx)()
	if id < 0 || id >= int64(len(s.items)) {
		return domain.Item{}, sentinel.ErrNotFound
	}
	return s.items[id], nil
}

// GetItemForUpdate matches GetItem here: RunInTx holds the store lock for the
// whole transaction, so every read already excludes concurrent mutation.
func (s *Store) GetItemForUpdate(ctx context.Context, id int64) (domain.Item, error) {
	return s.GetItem(ctx, id)
}

func (s *Store) UpdateItem(ctx context.Context, item domain.Item) error {
	defer s.enter(ctx)()
	if item.ID < 0 || item.ID >= int64(len(s.items)) {
		return sentinel.ErrNotFound
	}
	s.items[item.ID] = item
	return nil
}

// PurchaseStore ----------------------------------------------------------

func (s *Store) AppendPurchase(ctx context.Context, purchase domain.Purchase) error {
	defer s.enter(ctx)()
	s.purchases[purchase.Buyer] = append(s.purchases[purchase.Buyer], purchase)
	return nil
}

func (s *Store) ListPurchasesByBuyer(ctx context.Context, buyer domain.Address) ([]domain.Purchase, error) {
	defer s.enter(ctx)()
	list := s.purchases[buyer]
	out := make([]domain.Purchase, len(list))
	copy(out, list)
	return out, nil
}

// BalanceStore -----------------------------------------------------------

func (s *Store) GetBalance(ctx context.Context, addr domain.Address) (int64, error) {
	defer s.enter(ctx)()
	return s.balances[addr], nil
}

func (s *Store) AddBalance(ctx context.Context, addr domain.Address, amount int64) error {
	defer s.enter(ctx)()
	s.balances[addr] += amount
	return nil
}

func (s *Store) DrainBalance(ctx context.Context, addr domain.Address) (int64, error) {
	defer s.enter(ctx)()
	amount := s.balances[addr]
	s.balances[addr] = 0
	return amount, nil
}

// AuditStore -------------------------------------------------------------

func (s *Store) AppendAuditEvent(ctx context.Context, event audit.Event) error {
	defer s.enter(ctx)()
	s.events = append(s.events, event)
	return nil
}

func (s *Store) ListAuditEventsByUser(ctx context.Context, addr domain.Address) ([]audit.Event, error) {
	defer s.enter(ctx)()
	var out []audit.Event
	for _, event := range s.events {
		if event.Actor == addr || event.Counterparty == addr {
			out = append(out, event)
		}
	}
	return out, nil
}
