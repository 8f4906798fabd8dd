package catalog

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"tradepost/internal/audit"
	"tradepost/internal/domain"
	"tradepost/internal/storage/memory"
	dErrors "tradepost/pkg/domain-errors"
	"tradepost/pkg/requestcontext"
)

type CatalogServiceSuite struct {
	suite.Suite
	store     *memory.Store
	service   *Service
	publisher *audit.Publisher
	cache     *countingCache
}

func TestCatalogServiceSuite(t *testing.T) {
	suite.Run(t, new(CatalogServiceSuite))
}

func (s *CatalogServiceSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.store = memory.New()
	s.publisher = audit.NewPublisher(16, logger)
	s.cache = &countingCache{items: make(map[int64]domain.Item)}
	s.service = NewService(s.store, s.store, s.cache, s.publisher, nil, logger)
}

func (s *CatalogServiceSuite) registerUser(addr domain.Address) {
	err := s.store.CreateUser(context.Background(), domain.User{
		Address: addr, Username: "seller", CreatedAt: time.Now(),
	})
	s.Require().NoError(err)
}

func (s *CatalogServiceSuite) callerCtx(addr domain.Address) context.Context {
	return requestcontext.WithCaller(context.Background(), addr)
}

func (s *CatalogServiceSuite) TestList() {
	s.Run("registered user lists an item", func() {
		s.registerUser("0xseller")

		item, err := s.service.List(s.callerCtx("0xseller"), "Lamp", "A lamp", 100)
		s.Require().NoError(err)
		s.Equal(int64(0), item.ID)
		s.Equal(domain.Address("0xseller"), item.Owner)
		s.True(item.Available)

		event := <-s.publisher.Inbox()
		s.Equal(audit.ActionItemListed, event.Action)
		s.Equal(int64(0), event.ItemID)
	})

	s.Run("ids are sequential", func() {
		s.registerUser("0xother")
		item, err := s.service.List(s.callerCtx("0xother"), "Chair", "", 50)
		s.Require().NoError(err)
		s.Equal(int64(1), item.ID)
	})

	s.Run("unregistered caller is rejected", func() {
		_, err := s.service.List(s.callerCtx("0xghost"), "Lamp", "", 100)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnknownUser))
	})

	s.Run("zero price is rejected", func() {
		_, err := s.service.List(s.callerCtx("0xseller"), "Lamp", "", 0)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidPrice))
	})

	s.Run("negative price is rejected", func() {
		_, err := s.service.List(s.callerCtx("0xseller"), "Lamp", "", -5)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidPrice))
	})

	s.Run("unauthenticated caller is rejected", func() {
		_, err := s.service.List(context.Background(), "Lamp", "", 100)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *CatalogServiceSuite) TestGet() {
	s.registerUser("0xseller")
	listed, err := s.service.List(s.callerCtx("0xseller"), "Lamp", "A lamp", 100)
	s.Require().NoError(err)

	s.Run("serves a cached item without hitting the store", func() {
		before := s.cache.hits
		item, err := s.service.Get(context.Background(), listed.ID)
		s.Require().NoError(err)
		s.Equal(listed.ID, item.ID)
		s.Equal(before+1, s.cache.hits)
	})

	s.Run("falls through to the store on a miss", func() {
		s.Require().NoError(s.cache.Invalidate(context.Background(), listed.ID))

		item, err := s.service.Get(context.Background(), listed.ID)
		s.Require().NoError(err)
		s.Equal(listed.ID, item.ID)

		_, ok := s.cache.items[listed.ID]
		s.True(ok, "miss refills the cache")
	})

	s.Run("unknown id is not found", func() {
		_, err := s.service.Get(context.Background(), 99)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeItemNotFound))
	})
}

// countingCache is an in-process Cache that counts hits so tests can assert
// the read-through path.
type countingCache struct {
	items map[int64]domain.Item
	hits  int
}

func (c *countingCache) GetItem(ctx context.Context, id int64) (domain.Item, bool, error) {
	item, ok := c.items[id]
	if ok {
		c.hits++
	}
	return item, ok, nil
}

func (c *countingCache) SetItem(ctx context.Context, item domain.Item) error {
	c.items[item.ID] = item
	return nil
}

func (c *countingCache) Invalidate(ctx context.Context, id int64) error {
	delete(c.items, id)
	return nil
}
