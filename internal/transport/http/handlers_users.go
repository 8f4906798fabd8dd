package httptransport

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tradepost/internal/audit"
	"tradepost/internal/domain"
	dErrors "tradepost/pkg/domain-errors"
	"tradepost/pkg/requestcontext"
)

type registerUserRequest struct {
	Username string `json:"username"`
}

// handleRegisterUser registers the authenticated caller's profile.
func (h *Handler) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid register request",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	user, err := h.identity.Register(ctx, req.Username)
	if err != nil {
		h.logFailure(ctx, "failed to register user", err)
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, user)
}

// handleGetUser resolves a registered profile by address.
func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	addr := domain.Address(chi.URLParam(r, "address"))

	user, err := h.identity.Get(ctx, addr)
	if err != nil {
		h.logFailure(ctx, "failed to load user", err)
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, user)
}

// handleListEvents returns the audit trail touching an address.
func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	addr := domain.Address(chi.URLParam(r, "address"))
	if addr.IsZero() {
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "address is required"))
		return
	}

	events, err := h.auditLog.ListAuditEventsByUser(ctx, addr)
	if err != nil {
		h.logFailure(ctx, "failed to load audit trail", err)
		WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit trail"))
		return
	}
	if events == nil {
		events = []audit.Event{}
	}

	WriteJSON(w, http.StatusOK, events)
}

// logFailure logs service errors at a severity matching who caused them.
func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	requestID := requestcontext.RequestID(ctx)
	if dErrors.ToHTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err.Error())
		return
	}
	h.logger.WarnContext(ctx, msg, "request_id", requestID, "error", err.Error())
}
