package httptransport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tradepost/internal/domain"
	dErrors "tradepost/pkg/domain-errors"
	"tradepost/pkg/requestcontext"
)

type purchaseRequest struct {
	// Payment must equal the listed price exactly.
	Payment int64 `json:"payment"`
}

// handlePurchase buys an item for the caller.
func (h *Handler) handlePurchase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := itemID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid purchase request",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	purchase, err := h.trading.Purchase(ctx, id, req.Payment)
	if err != nil {
		h.logFailure(ctx, "purchase failed", err)
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, purchase)
}

// handleListPurchases returns a buyer's purchase history in purchase order.
func (h *Handler) handleListPurchases(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	addr := domain.Address(chi.URLParam(r, "address"))

	purchases, err := h.trading.ListPurchases(ctx, addr)
	if err != nil {
		h.logFailure(ctx, "failed to load purchases", err)
		WriteError(w, err)
		return
	}
	if purchases == nil {
		purchases = []domain.Purchase{}
	}

	WriteJSON(w, http.StatusOK, purchases)
}
