package httptransport

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	dErrors "tradepost/pkg/domain-errors"
	"tradepost/pkg/requestcontext"
)

type listItemRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
}

// handleListItem puts a new item up for sale, owned by the caller.
func (h *Handler) handleListItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req listItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid list item request",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	item, err := h.catalog.List(ctx, req.Name, req.Description, req.Price)
	if err != nil {
		h.logFailure(ctx, "failed to list item", err)
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, item)
}

// handleGetItem resolves an item by id.
func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := itemID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	item, err := h.catalog.Get(ctx, id)
	if err != nil {
		h.logFailure(ctx, "failed to load item", err)
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, item)
}

func itemID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "item id must be a non-negative integer")
	}
	return id, nil
}
