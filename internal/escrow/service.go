// Package escrow tracks sale proceeds held for sellers and pays them out.
// Proceeds accumulate in the treasury until the seller withdraws; a
// withdrawal always moves the full balance.
package escrow

import (
	"context"
	"log/slog"

	"tradepost/internal/audit"
	"tradepost/internal/domain"
	"tradepost/internal/ledger"
	"tradepost/internal/platform/metrics"
	dErrors "tradepost/pkg/domain-errors"
	"tradepost/pkg/requestcontext"
)

// Store is the persistence surface the escrow service needs.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetBalance(ctx context.Context, addr domain.Address) (int64, error)
	DrainBalance(ctx context.Context, addr domain.Address) (int64, error)
}

// Service holds seller proceeds and pays them out on demand.
type Service struct {
	store     Store
	ledger    ledger.Ledger
	publisher *audit.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	treasury  domain.Address
}

func NewService(
	store Store,
	l ledger.Ledger,
	publisher *audit.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
	treasury domain.Address,
) *Service {
	return &Service{store: store, ledger: l, publisher: publisher, metrics: m, logger: logger, treasury: treasury}
}

// Balance reports the proceeds currently held for an address.
func (s *Service) Balance(ctx context.Context, addr domain.Address) (int64, error) {
	if addr.IsZero() {
		return 0, dErrors.New(dErrors.CodeBadRequest, "address is required")
	}
	balance, err := s.store.GetBalance(ctx, addr)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load balance")
	}
	return balance, nil
}

// Withdraw pays the caller's full escrow balance out to their ledger
// address. The balance is zeroed before the transfer; if the transfer fails
// the transaction rolls the debit back, so funds are never lost and never
// paid twice.
func (s *Service) Withdraw(ctx context.Context) (int64, error) {
	caller := requestcontext.Caller(ctx)
	if caller.IsZero() {
		return 0, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	var amount int64
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		drained, err := s.store.DrainBalance(ctx, caller)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to debit balance")
		}
		if drained == 0 {
			return dErrors.New(dErrors.CodeNoFunds, "no funds to withdraw")
		}
		amount = drained

		if err := s.ledger.Transfer(ctx, s.treasury, caller, drained); err != nil {
			if s.metrics != nil {
				s.metrics.FailedTransfers.Inc()
			}
			return dErrors.Wrap(err, dErrors.CodeTransferFailed, "withdrawal transfer failed")
		}
		return nil
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeTransferFailed) {
			s.publisher.Emit(ctx, audit.Event{
				Action: audit.ActionWithdrawalFailed,
				Actor:  caller,
				ItemID: -1,
				Amount: amount,
				Reason: dErrors.MessageOf(err),
			})
			s.logger.ErrorContext(ctx, "withdrawal failed, balance restored",
				"address", caller,
				"amount", amount,
				"error", err,
			)
		}
		return 0, err
	}

	s.publisher.Emit(ctx, audit.Event{
		Action: audit.ActionFundsWithdrawn,
		Actor:  caller,
		ItemID: -1,
		Amount: amount,
	})
	if s.metrics != nil {
		s.metrics.Withdrawals.Inc()
		s.metrics.EscrowHeld.Sub(float64(amount))
	}
	s.logger.InfoContext(ctx, "funds withdrawn",
		"address", caller,
		"amount", amount,
	)
	return amount, nil
}
