// Package httptransport is the thin HTTP layer. Handlers decode, delegate to
// domain services, and encode; business rules stay out of this package.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradepost/internal/audit"
	"tradepost/internal/domain"
	"tradepost/internal/platform/metrics"
	"tradepost/internal/platform/middleware"
)

// IdentityService is the identity surface the handlers need.
type IdentityService interface {
	Register(ctx context.Context, username string) (domain.User, error)
	Get(ctx context.Context, addr domain.Address) (domain.User, error)
}

// CatalogService lists and resolves items.
type CatalogService interface {
	List(ctx context.Context, name, description string, price int64) (domain.Item, error)
	Get(ctx context.Context, id int64) (domain.Item, error)
}

// TradingService executes purchases.
type TradingService interface {
	Purchase(ctx context.Context, itemID int64, payment int64) (domain.Purchase, error)
	ListPurchases(ctx context.Context, buyer domain.Address) ([]domain.Purchase, error)
}

// EscrowService pays out held proceeds.
type EscrowService interface {
	Withdraw(ctx context.Context) (int64, error)
	Balance(ctx context.Context, addr domain.Address) (int64, error)
}

// AuditLog exposes a user's audit trail.
type AuditLog interface {
	ListAuditEventsByUser(ctx context.Context, addr domain.Address) ([]audit.Event, error)
}

// HealthCheck probes one dependency; a non-nil error marks the service
// unhealthy.
type HealthCheck func(ctx context.Context) error

// Handler carries the wired services for all routes.
type Handler struct {
	identity IdentityService
	catalog  CatalogService
	trading  TradingService
	escrow   EscrowService
	auditLog AuditLog
	logger   *slog.Logger
	checks   map[string]HealthCheck
}

func NewHandler(
	identity IdentityService,
	catalog CatalogService,
	trading TradingService,
	escrow EscrowService,
	auditLog AuditLog,
	logger *slog.Logger,
	checks map[string]HealthCheck,
) *Handler {
	return &Handler{
		identity: identity,
		catalog:  catalog,
		trading:  trading,
		escrow:   escrow,
		auditLog: auditLog,
		logger:   logger,
		checks:   checks,
	}
}

// NewRouter wires middleware and routes. Everything under the API requires a
// bearer token; only health and metrics are open.
func NewRouter(h *Handler, logger *slog.Logger, m *metrics.Metrics, validator middleware.JWTValidator) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.LatencyMiddleware(m))

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(validator, logger))

		r.Post("/users", h.handleRegisterUser)
		r.Get("/users/{address}", h.handleGetUser)
		r.Get("/users/{address}/purchases", h.handleListPurchases)
		r.Get("/users/{address}/escrow", h.handleEscrowBalance)
		r.Get("/users/{address}/events", h.handleListEvents)

		r.Post("/items", h.handleListItem)
		r.Get("/items/{id}", h.handleGetItem)
		r.Post("/items/{id}/purchase", h.handlePurchase)

		r.Post("/withdrawals", h.handleWithdraw)
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := http.StatusOK
	result := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			result[name] = err.Error()
			continue
		}
		result[name] = "ok"
	}
	WriteJSON(w, status, result)
}
