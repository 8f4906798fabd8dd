// Package identity manages user registration. An address registers once and
// keeps its profile forever; there is no rename or unregister.
package identity

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

// Store is the persistence surface the identity service needs.
type Store interface {
	CreateUser(ctx context.Context, user domain.User) error
	GetUser(ctx context.Context, addr domain.Address) (domain.User, error)
}

// Service registers users and resolves profiles.
type Service struct {
	store     Store
	publisher *audit.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewService(store Store, publisher *audit.Publisher, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{store: store, publisher: publisher, metrics: m, logger: logger}
}

// Register creates the profile for the authenticated caller. Each address
// registers exactly once; a second attempt fails and leaves the first
// registration untouched.
func (s *Service) Register(ctx context.Context, username string) (domain.User, error) {
	caller := requestcontext.Caller(ctx)
	user, err := domain.NewUser(caller, username, requestcontext.Now(ctx))
	if err != nil {
		return domain.User{}, err
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return domain.User{}, dErrors.New(dErrors.CodeDuplicateUser, "user already registered")
		}
		return domain.User{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register user")
	}

	s.publisher.Emit(ctx, audit.Event{
		Action: audit.ActionUserRegistered,
		Actor:  caller,
		ItemID: -1,
	})
	if s.metrics != nil {
		s.metrics.UsersRegistered.Inc()
	}
	s.logger.InfoContext(ctx, "user registered",
		"address", caller,
		"username", username,
	)
	return user, nil
}

// Get resolves a registered profile by address.
func (s *Service) Get(ctx context.Context, addr domain.Address) (domain.User, error) {
	if addr.IsZero() {
		return domain.User{}, dErrors.New(dErrors.CodeBadRequest, "address is required")
	}
	user, err := s.store.GetUser(ctx, addr)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return domain.User{}, dErrors.New(dErrors.CodeNotFound, "user not registered")
		}
		return domain.User{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return user, nil
}
