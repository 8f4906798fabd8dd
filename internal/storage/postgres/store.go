// Package postgres provides the database-backed storage.Store.
//
// RunInTx wraps each marketplace operation in one SQL transaction; store
// methods pick the active transaction out of context, so the same methods
// serve both transactional and standalone reads.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"tradepost/internal/audit"
	"tradepost/internal/domain"
	"tradepost/internal/storage"
	"tradepost/pkg/platform/sentinel"
	txcontext "tradepost/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// Store implements storage.Store over database/sql with the lib/pq driver.
type Store struct {
	db      *sql.DB
	timeout time.Duration
}

var _ storage.Store = (*Store)(nil)

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, url string) (*Store, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(db), nil
}

// New wraps an existing database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for health checks and test harnesses.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the marketplace schema. Idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			address    TEXT PRIMARY KEY,
			username   TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS items (
			id          BIGINT PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT NOT NULL,
			price       BIGINT NOT NULL CHECK (price > 0),
			owner       TEXT NOT NULL,
			available   BOOLEAN NOT NULL,
			listed_at   TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS purchases (
			seq          BIGSERIAL PRIMARY KEY,
			item_id      BIGINT NOT NULL,
			buyer        TEXT NOT NULL,
			price        BIGINT NOT NULL,
			purchased_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS purchases_buyer_idx ON purchases (buyer, seq)`,
		`CREATE TABLE IF NOT EXISTS balances (
			address TEXT PRIMARY KEY,
			amount  BIGINT NOT NULL CHECK (amount >= 0)
		)`,
		`CREATE TABLE IF NOT EXISTS audit_events (
			id           UUID PRIMARY KEY,
			action       TEXT NOT NULL,
			category     TEXT NOT NULL,
			occurred_at  TIMESTAMPTZ NOT NULL,
			actor        TEXT NOT NULL,
			counterparty TEXT,
			item_id      BIGINT NOT NULL,
			amount       BIGINT NOT NULL,
			reason       TEXT,
			request_id   TEXT,
			client_ip    TEXT,
			user_agent   TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS audit_events_actor_idx ON audit_events (actor, occurred_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// RunInTx runs fn inside one SQL transaction carried through context. Nested
// calls join the enclosing transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := s.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}
	return tx.Commit()
}

// UserStore --------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, user domain.User) error {
	result, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO users (address, username, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO NOTHING
	`, user.Address.String(), user.Username, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, addr domain.Address) (domain.User, error) {
	var user domain.User
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT address, username, created_at FROM users WHERE address = $1
	`, addr.String()).Scan(&user.Address, &user.Username, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, sentinel.ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("select user: %w", err)
	}
	return user, nil
}

// ItemStore --------------------------------------------------------------

// itemIDAllocLock keys the advisory lock serializing item id allocation.
const itemIDAllocLock = 6001

// AppendItem allocates MAX(id)+1 starting at 0. Ids must be gapless from 0,
// so a database sequence is not suitable; an advisory lock held for the rest
// of the transaction serializes concurrent allocations instead.
func (s *Store) AppendItem(ctx context.Context, item domain.Item) (domain.Item, error) {
	err := s.RunInTx(ctx, func(ctx context.Context) error {
		exec := s.execer(ctx)
		if _, err := exec.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, itemIDAllocLock); err != nil {
			return fmt.Errorf("lock item allocation: %w", err)
		}
		if err := exec.QueryRowContext(ctx, `
			INSERT INTO items (id, name, description, price, owner, available, listed_at)
			SELECT COALESCE(MAX(id) + 1, 0), $1, $2, $3, $4, $5, $6 FROM items
			RETURNING id
		`, item.Name, item.Description, item.Price, item.Owner.String(), item.Available, item.ListedAt).Scan(&item.ID); err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Item{}, err
	}
	return item, nil
}

func (s *Store) GetItem(ctx context.Context, id int64) (domain.Item, error) {
	return s.getItem(ctx, id, "")
}

// GetItemForUpdate reads the item under FOR UPDATE. A concurrent purchase of
// the same item blocks here until the first transaction ends and then reads
// the committed availability flip instead of a stale snapshot.
func (s *Store) GetItemForUpdate(ctx context.Context, id int64) (domain.Item, error) {
	return s.getItem(ctx, id, " FOR UPDATE")
}

func (s *Store) getItem(ctx context.Context, id int64, locking string) (domain.Item, error) {
	var item domain.Item
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT id, name, description, price, owner, available, listed_at
		FROM items WHERE id = $1`+locking,
		id).Scan(&item.ID, &item.Name, &item.Description, &item.Price, &item.Owner, &item.Available, &item.ListedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Item{}, sentinel.ErrNotFound
	}
	if err != nil {
		return domain.Item{}, fmt.Errorf("select item: %w", err)
	}
	return item, nil
}

func (s *Store) UpdateItem(ctx context.Context, item domain.Item) error {
	result, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE items SET owner = $2, available = $3 WHERE id = $1
	`, item.ID, item.Owner.String(), item.Available)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// PurchaseStore ----------------------------------------------------------

func (s *Store) AppendPurchase(ctx context.Context, purchase domain.Purchase) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO purchases (item_id, buyer, price, purchased_at)
		VALUES ($1, $2, $3, $4)
	`, purchase.ItemID, purchase.Buyer.String(), purchase.Price, purchase.PurchasedAt)
	if err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}
	return nil
}

func (s *Store) ListPurchasesByBuyer(ctx context.Context, buyer domain.Address) ([]domain.Purchase, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT item_id, buyer, price, purchased_at
		FROM purchases WHERE buyer = $1 ORDER BY seq
	`, buyer.String())
	if err != nil {
		return nil, fmt.Errorf("select purchases: %w", err)
	}
	defer rows.Close()

	purchases := []domain.Purchase{}
	for rows.Next() {
		var p domain.Purchase
		if err := rows.Scan(&p.ItemID, &p.Buyer, &p.Price, &p.PurchasedAt); err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchases: %w", err)
	}
	return purchases, nil
}

// BalanceStore -----------------------------------------------------------

func (s *Store) GetBalance(ctx context.Context, addr domain.Address) (int64, error) {
	var amount int64
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT amount FROM balances WHERE address = $1
	`, addr.String()).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select balance: %w", err)
	}
	return amount, nil
}

func (s *Store) AddBalance(ctx context.Context, addr domain.Address, amount int64) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO balances (address, amount) VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET amount = balances.amount + EXCLUDED.amount
	`, addr.String(), amount)
	if err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	return nil
}

// DrainBalance locks the row, zeroes it, and returns the drained amount. The
// surrounding transaction keeps the debit invisible to other operations
// until the external transfer succeeds, and rolls it back when it does not.
func (s *Store) DrainBalance(ctx context.Context, addr domain.Address) (int64, error) {
	exec := s.execer(ctx)

	var amount int64
	err := exec.QueryRowContext(ctx, `
		SELECT amount FROM balances WHERE address = $1 FOR UPDATE
	`, addr.String()).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("lock balance: %w", err)
	}
	if amount == 0 {
		return 0, nil
	}

	if _, err := exec.ExecContext(ctx, `
		UPDATE balances SET amount = 0 WHERE address = $1
	`, addr.String()); err != nil {
		return 0, fmt.Errorf("drain balance: %w", err)
	}
	return amount, nil
}

// AuditStore -------------------------------------------------------------

func (s *Store) AppendAuditEvent(ctx context.Context, event audit.Event) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO audit_events (
			id, action, category, occurred_at, actor, counterparty,
			item_id, amount, reason, request_id, client_ip, user_agent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`, event.ID, string(event.Action), string(event.Category), event.Timestamp,
		event.Actor.String(), event.Counterparty.String(), event.ItemID,
		event.Amount, event.Reason, event.RequestID, event.ClientIP, event.UserAgent)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) ListAuditEventsByUser(ctx context.Context, addr domain.Address) ([]audit.Event, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, action, category, occurred_at, actor, counterparty,
		       item_id, amount, reason, request_id, client_ip, user_agent
		FROM audit_events
		WHERE actor = $1 OR counterparty = $1
		ORDER BY occurred_at
	`, addr.String())
	if err != nil {
		return nil, fmt.Errorf("select audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			event        audit.Event
			action       string
			category     string
			counterparty sql.NullString
			reason       sql.NullString
			requestID    sql.NullString
			clientIP     sql.NullString
			userAgent    sql.NullString
		)
		if err := rows.Scan(&event.ID, &action, &category, &event.Timestamp,
			&event.Actor, &counterparty, &event.ItemID, &event.Amount,
			&reason, &requestID, &clientIP, &userAgent); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Action = audit.Action(action)
		event.Category = audit.EventCategory(category)
		event.Counterparty = domain.Address(counterparty.String)
		event.Reason = reason.String
		event.RequestID = requestID.String
		event.ClientIP = clientIP.String
		event.UserAgent = userAgent.String
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
