package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"tradepost/internal/domain"
	"tradepost/pkg/requestcontext"
)

type withdrawalResponse struct {
	Address domain.Address `json:"address"`
	Amount  int64          `json:"amount"`
}

// handleWithdraw pays out the caller's full escrow balance.
func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	amount, err := h.escrow.Withdraw(ctx)
	if err != nil {
		h.logFailure(ctx, "withdrawal failed", err)
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, withdrawalResponse{
		Address: requestcontext.Caller(ctx),
		Amount:  amount,
	})
}

type escrowBalanceResponse struct {
	Address domain.Address `json:"address"`
	Balance int64          `json:"balance"`
}

// handleEscrowBalance reports the proceeds currently held for an address.
func (h *Handler) handleEscrowBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	addr := domain.Address(chi.URLParam(r, "address"))

	balance, err := h.escrow.Balance(ctx, addr)
	if err != nil {
		h.logFailure(ctx, "failed to load escrow balance", err)
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, escrowBalanceResponse{Address: addr, Balance: balance})
}
