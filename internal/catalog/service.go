// Package catalog manages item listings: registered users put items up for
// sale and anyone can browse them. Item ids are assigned sequentially from 0
// and never reused.
package catalog

import (
	"context"
	"errors"
	"log/slog"

	"tradepost/internal/audit"
	"tradepost/internal/domain"
	"tradepost/internal/platform/metrics"
	dErrors "tradepost/pkg/domain-errors"
	"tradepost/pkg/platform/sentinel"
	"tradepost/pkg/requestcontext"
)

// Store is the persistence surface the catalog needs.
type Store interface {
	AppendItem(ctx context.Context, item domain.Item) (domain.Item, error)
	GetItem(ctx context.Context, id int64) (domain.Item, error)
}

// Users resolves registered profiles; only registered users may list items.
type Users interface {
	GetUser(ctx context.Context, addr domain.Address) (domain.User, error)
}

// Cache is a read-through cache over item lookups. Implementations must
// tolerate being stale for at most their TTL; writes that change an item go
// through Invalidate.
type Cache interface {
	GetItem(ctx context.Context, id int64) (domain.Item, bool, error)
	SetItem(ctx context.Context, item domain.Item) error
	Invalidate(ctx context.Context, id int64) error
}

// Service lists and resolves marketplace items.
type Service struct {
	store     Store
	users     Users
	cache     Cache
	publisher *audit.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewService(store Store, users Users, cache Cache, publisher *audit.Publisher, m *metrics.Metrics, logger *slog.Logger) *Service {
	if cache == nil {
		cache = NoopCache{}
	}
	return &Service{store: store, users: users, cache: cache, publisher: publisher, metrics: m, logger: logger}
}

// List puts a new item up for sale, owned by the caller. The caller must be
// a registered user.
func (s *Service) List(ctx context.Context, name, description string, price int64) (domain.Item, error) {
	caller := requestcontext.Caller(ctx)
	if caller.IsZero() {
		return domain.Item{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	if _, err := s.users.GetUser(ctx, caller); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return domain.Item{}, dErrors.New(dErrors.CodeUnknownUser, "user not registered")
		}
		return domain.Item{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify seller")
	}

	item, err := domain.NewItem(caller, name, description, price, requestcontext.Now(ctx))
	if err != nil {
		return domain.Item{}, err
	}

	item, err = s.store.AppendItem(ctx, item)
	if err != nil {
		return domain.Item{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list item")
	}

	if err := s.cache.SetItem(ctx, item); err != nil {
		s.logger.WarnContext(ctx, "failed to prime item cache", "item_id", item.ID, "error", err)
	}

	s.publisher.Emit(ctx, audit.Event{
		Action: audit.ActionItemListed,
		Actor:  caller,
		ItemID: item.ID,
		Amount: item.Price,
	})
	if s.metrics != nil {
		s.metrics.ItemsListed.Inc()
	}
	s.logger.InfoContext(ctx, "item listed",
		"item_id", item.ID,
		"owner", caller,
		"price", item.Price,
	)
	return item, nil
}

// Get resolves an item by id, serving from cache when possible.
func (s *Service) Get(ctx context.Context, id int64) (domain.Item, error) {
	if item, ok, err := s.cache.GetItem(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "item cache read failed", "item_id", id, "error", err)
	} else if ok {
		return item, nil
	}

	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return domain.Item{}, dErrors.New(dErrors.CodeItemNotFound, "item not found")
		}
		return domain.Item{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load item")
	}

	if err := s.cache.SetItem(ctx, item); err != nil {
		s.logger.WarnContext(ctx, "failed to prime item cache", "item_id", id, "error", err)
	}
	return item, nil
}
