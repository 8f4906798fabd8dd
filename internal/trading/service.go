// Package trading executes purchases. A purchase is one atomic operation:
// the item changes hands, the sale is recorded, the payment lands in escrow
// for the seller, or none of it happens.
package trading

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tradepost/internal/audit"
	"tradepost/internal/domain"
	"tradepost/internal/ledger"
	"tradepost/internal/platform/metrics"
	dErrors "tradepost/pkg/domain-errors"
	"tradepost/pkg/platform/sentinel"
	"tradepost/pkg/requestcontext"
)

// Store is the persistence surface the trading service needs. Every mutation
// of a purchase happens inside one RunInTx.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	// GetItemForUpdate holds the item against concurrent mutation for the
	// rest of the transaction, so two racing purchases of the same item
	// serialize and the loser sees the availability flip.
	GetItemForUpdate(ctx context.Context, id int64) (domain.Item, error)
	UpdateItem(ctx context.Context, item domain.Item) error
	AppendPurchase(ctx context.Context, purchase domain.Purchase) error
	AddBalance(ctx context.Context, addr domain.Address, amount int64) error
	ListPurchasesByBuyer(ctx context.Context, buyer domain.Address) ([]domain.Purchase, error)
}

// ItemCache is the slice of the catalog cache trading needs: a sale changes
// ownership and availability, so the cached copy must go.
type ItemCache interface {
	Invalidate(ctx context.Context, id int64) error
}

// Service executes purchases against the ledger and records them.
type Service struct {
	store     Store
	ledger    ledger.Ledger
	cache     ItemCache
	publisher *audit.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	treasury  domain.Address
	tracer    trace.Tracer
}

func NewService(
	store Store,
	l ledger.Ledger,
	cache ItemCache,
	publisher *audit.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
	treasury domain.Address,
) *Service {
	return &Service{
		store:     store,
		ledger:    l,
		cache:     cache,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		treasury:  treasury,
		tracer:    otel.Tracer("tradepost/trading"),
	}
}

// Purchase buys an item for the caller. The payment must equal the listed
// price exactly; it moves from the buyer to the treasury and is credited to
// the seller's escrow balance. The buyer becomes the owner and the item
// leaves the market permanently.
//
// The ledger transfer runs last inside the transaction: a failed transfer
// rolls back every store mutation, and a successful transfer is followed
// only by the commit.
func (s *Service) Purchase(ctx context.Context, itemID int64, payment int64) (domain.Purchase, error) {
	caller := requestcontext.Caller(ctx)
	if caller.IsZero() {
		return domain.Purchase{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	ctx, span := s.tracer.Start(ctx, "trading.Purchase", trace.WithAttributes(
		attribute.Int64("item.id", itemID),
		attribute.Int64("payment", payment),
	))
	defer span.End()

	var (
		purchase domain.Purchase
		seller   domain.Address
	)
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		item, err := s.store.GetItemForUpdate(ctx, itemID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeItemNotFound, "item not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load item")
		}
		if err := item.CanSell(); err != nil {
			return err
		}
		if payment != item.Price {
			return dErrors.New(dErrors.CodeIncorrectPayment, "incorrect price")
		}

		seller = item.Owner
		item.ApplySale(caller)
		if err := s.store.UpdateItem(ctx, item); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update item")
		}

		purchase = domain.Purchase{
			ItemID:      item.ID,
			Buyer:       caller,
			Price:       item.Price,
			PurchasedAt: requestcontext.Now(ctx),
		}
		if err := s.store.AppendPurchase(ctx, purchase); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record purchase")
		}
		if err := s.store.AddBalance(ctx, seller, item.Price); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to credit seller escrow")
		}

		if err := s.ledger.Transfer(ctx, caller, s.treasury, item.Price); err != nil {
			if s.metrics != nil {
				s.metrics.FailedTransfers.Inc()
			}
			return dErrors.Wrap(err, dErrors.CodeTransferFailed, "payment transfer failed")
		}
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, dErrors.MessageOf(err))
		return domain.Purchase{}, err
	}
	span.SetStatus(codes.Ok, "")

	if err := s.cache.Invalidate(ctx, itemID); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate item cache", "item_id", itemID, "error", err)
	}

	s.publisher.Emit(ctx, audit.Event{
		Action:       audit.ActionItemPurchased,
		Actor:        caller,
		Counterparty: seller,
		ItemID:       itemID,
		Amount:       purchase.Price,
	})
	if s.metrics != nil {
		s.metrics.ItemsPurchased.Inc()
		s.metrics.EscrowHeld.Add(float64(purchase.Price))
	}
	s.logger.InfoContext(ctx, "item purchased",
		"item_id", itemID,
		"buyer", caller,
		"seller", seller,
		"price", purchase.Price,
	)
	return purchase, nil
}

// ListPurchases returns a buyer's purchases in purchase order.
func (s *Service) ListPurchases(ctx context.Context, buyer domain.Address) ([]domain.Purchase, error) {
	if buyer.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "address is required")
	}
	purchases, err := s.store.ListPurchasesByBuyer(ctx, buyer)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load purchases")
	}
	return purchases, nil
}
