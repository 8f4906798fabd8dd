package trading

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"tradepost/internal/audit"
	"tradepost/internal/domain"
	"tradepost/internal/ledger"
	"tradepost/internal/ledger/mocks"
	"tradepost/internal/storage/memory"
	dErrors "tradepost/pkg/domain-errors"
	"tradepost/pkg/platform/sentinel"
	"tradepost/pkg/requestcontext"
)

const treasury = domain.Address("0xtreasury")

type TradingServiceSuite struct {
	suite.Suite
	store     *memory.Store
	ledger    *ledger.MemoryLedger
	publisher *audit.Publisher
	service   *Service
	logger    *slog.Logger
}

func TestTradingServiceSuite(t *testing.T) {
	suite.Run(t, new(TradingServiceSuite))
}

func (s *TradingServiceSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.store = memory.New()
	s.ledger = ledger.NewMemoryLedger(map[domain.Address]int64{"0xbuyer": 1000})
	s.publisher = audit.NewPublisher(16, s.logger)
	s.service = NewService(s.store, s.ledger, noopCache{}, s.publisher, nil, s.logger, treasury)
}

func (s *TradingServiceSuite) listItem(owner domain.Address, price int64) domain.Item {
	item, err := s.store.AppendItem(context.Background(), domain.Item{
		Name: "Lamp", Price: price, Owner: owner, Available: true, ListedAt: time.Now(),
	})
	s.Require().NoError(err)
	return item
}

func (s *TradingServiceSuite) callerCtx(addr domain.Address) context.Context {
	return requestcontext.WithCaller(context.Background(), addr)
}

func (s *TradingServiceSuite) TestPurchase() {
	item := s.listItem("0xseller", 100)

	purchase, err := s.service.Purchase(s.callerCtx("0xbuyer"), item.ID, 100)
	s.Require().NoError(err)
	s.Equal(item.ID, purchase.ItemID)
	s.Equal(domain.Address("0xbuyer"), purchase.Buyer)
	s.Equal(int64(100), purchase.Price)

	got, err := s.store.GetItem(context.Background(), item.ID)
	s.Require().NoError(err)
	s.Equal(domain.Address("0xbuyer"), got.Owner, "buyer becomes the owner")
	s.False(got.Available, "item leaves the market")

	escrow, err := s.store.GetBalance(context.Background(), "0xseller")
	s.Require().NoError(err)
	s.Equal(int64(100), escrow, "proceeds held for the seller")

	buyerFunds, err := s.ledger.BalanceOf(context.Background(), "0xbuyer")
	s.Require().NoError(err)
	s.Equal(int64(900), buyerFunds)

	treasuryFunds, err := s.ledger.BalanceOf(context.Background(), treasury)
	s.Require().NoError(err)
	s.Equal(int64(100), treasuryFunds, "payment lands on the treasury")

	event := <-s.publisher.Inbox()
	s.Equal(audit.ActionItemPurchased, event.Action)
	s.Equal(domain.Address("0xseller"), event.Counterparty)
	s.Equal(int64(100), event.Amount)
}

func (s *TradingServiceSuite) TestPurchaseRejectsWrongPayment() {
	item := s.listItem("0xseller", 100)

	for _, payment := range []int64{99, 101, 0} {
		_, err := s.service.Purchase(s.callerCtx("0xbuyer"), item.ID, payment)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeIncorrectPayment))
	}

	got, err := s.store.GetItem(context.Background(), item.ID)
	s.Require().NoError(err)
	s.True(got.Available, "item untouched after rejected payments")
}

func (s *TradingServiceSuite) TestPurchaseUnknownItem() {
	_, err := s.service.Purchase(s.callerCtx("0xbuyer"), 42, 100)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeItemNotFound))
}

func (s *TradingServiceSuite) TestPurchaseSoldItem() {
	item := s.listItem("0xseller", 100)

	_, err := s.service.Purchase(s.callerCtx("0xbuyer"), item.ID, 100)
	s.Require().NoError(err)

	s.ledger.Deposit("0xsecond", 100)
	_, err = s.service.Purchase(s.callerCtx("0xsecond"), item.ID, 100)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeItemUnavailable))
}

func (s *TradingServiceSuite) TestPurchaseDoesNotRequireRegistration() {
	// Buying needs funds, not a profile; only listing requires registration.
	item := s.listItem("0xseller", 100)

	_, err := s.service.Purchase(s.callerCtx("0xbuyer"), item.ID, 100)
	s.Require().NoError(err)
}

func (s *TradingServiceSuite) TestPurchaseRollsBackWhenTransferFails() {
	item := s.listItem("0xseller", 100)

	_, err := s.service.Purchase(s.callerCtx("0xpoor"), item.ID, 100)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeTransferFailed))
	s.True(errors.Is(err, ledger.ErrInsufficientFunds))

	got, err := s.store.GetItem(context.Background(), item.ID)
	s.Require().NoError(err)
	s.Equal(domain.Address("0xseller"), got.Owner, "ownership rolled back")
	s.True(got.Available, "availability rolled back")

	list, err := s.store.ListPurchasesByBuyer(context.Background(), "0xpoor")
	s.Require().NoError(err)
	s.Empty(list, "purchase record rolled back")

	escrow, err := s.store.GetBalance(context.Background(), "0xseller")
	s.Require().NoError(err)
	s.Zero(escrow, "escrow credit rolled back")
}

func (s *TradingServiceSuite) TestPurchaseTransferArguments() {
	ctrl := gomock.NewController(s.T())
	mockLedger := mocks.NewMockLedger(ctrl)
	service := NewService(s.store, mockLedger, noopCache{}, s.publisher, nil, s.logger, treasury)

	item := s.listItem("0xseller", 250)

	mockLedger.EXPECT().
		Transfer(gomock.Any(), domain.Address("0xbuyer"), treasury, int64(250)).
		Return(nil)

	_, err := service.Purchase(s.callerCtx("0xbuyer"), item.ID, 250)
	s.Require().NoError(err)
}

func (s *TradingServiceSuite) TestListPurchasesInOrder() {
	first := s.listItem("0xseller", 100)
	second := s.listItem("0xseller", 200)

	_, err := s.service.Purchase(s.callerCtx("0xbuyer"), first.ID, 100)
	s.Require().NoError(err)
	_, err = s.service.Purchase(s.callerCtx("0xbuyer"), second.ID, 200)
	s.Require().NoError(err)

	list, err := s.service.ListPurchases(context.Background(), "0xbuyer")
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(first.ID, list[0].ItemID)
	s.Equal(second.ID, list[1].ItemID)

	empty, err := s.service.ListPurchases(context.Background(), "0xseller")
	s.Require().NoError(err)
	s.Empty(empty)
}

func (s *TradingServiceSuite) TestSellerCanRebuyThroughNewOwner() {
	// Ownership chains: buyer resells via a fresh listing, not the old one.
	item := s.listItem("0xseller", 100)
	_, err := s.service.Purchase(s.callerCtx("0xbuyer"), item.ID, 100)
	s.Require().NoError(err)

	_, err = s.store.GetItem(context.Background(), 1)
	s.Require().ErrorIs(err, sentinel.ErrNotFound, "no implicit relisting happens")
}

func (s *TradingServiceSuite) TestPurchaseReadsItemUnderLock() {
	store := &lockingReadStore{Store: s.store}
	service := NewService(store, s.ledger, noopCache{}, s.publisher, nil, s.logger, treasury)

	item := s.listItem("0xseller", 100)
	_, err := service.Purchase(s.callerCtx("0xbuyer"), item.ID, 100)
	s.Require().NoError(err)
	s.Equal(1, store.lockedReads,
		"the sale path must read the item through the locking read so racing buyers serialize")
}

// lockingReadStore counts item reads taken with the row lock.
type lockingReadStore struct {
	*memory.Store
	lockedReads int
}

func (s *lockingReadStore) GetItemForUpdate(ctx context.Context, id int64) (domain.Item, error) {
	s.lockedReads++
	return s.Store.GetItemForUpdate(ctx, id)
}

type noopCache struct{}

func (noopCache) Invalidate(ctx context.Context, id int64) error { return nil }
