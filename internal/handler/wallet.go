package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zooml/survmarket/internal/domain"
	"github.com/zooml/survmarket/internal/wallet"
)

// WalletHandler exposes the in-process bank so a standalone deployment
// can fund buyers and collect delivered items. Embedded deployments wire
// the host's own currency service instead and leave these routes off.
type WalletHandler struct {
	bank *wallet.Bank
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(bank *wallet.Bank) *WalletHandler {
	return &WalletHandler{bank: bank}
}

// depositRequest is the JSON request body for
// POST /wallets/{player_id}/deposit. Exactly one of amount and coins
// must be set.
type depositRequest struct {
	Amount *int64  `json:"amount"`
	Coins  *string `json:"coins"`
}

// Deposit handles POST /wallets/{player_id}/deposit.
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "player_id")

	var req depositRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var amount int64
	switch {
	case req.Amount != nil && req.Coins != nil:
		WriteError(w, http.StatusBadRequest, "validation_error", "amount and coins are mutually exclusive")
		return
	case req.Amount != nil:
		amount = *req.Amount
	case req.Coins != nil:
		parsed, err := domain.ParseCoins(*req.Coins)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "coins must use the p/g/s/c notation")
			return
		}
		amount = parsed
	default:
		WriteError(w, http.StatusBadRequest, "validation_error", "amount or coins is required")
		return
	}
	if amount <= 0 {
		WriteError(w, http.StatusBadRequest, "validation_error", "amount must be positive")
		return
	}

	h.bank.Credit(playerID, amount)
	WriteJSON(w, http.StatusOK, map[string]any{
		"player_id":     playerID,
		"balance":       h.bank.Balance(playerID),
		"balance_coins": domain.FormatCoins(h.bank.Balance(playerID)),
	})
}

// Balance handles GET /wallets/{player_id}.
func (h *WalletHandler) Balance(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "player_id")
	balance := h.bank.Balance(playerID)
	WriteJSON(w, http.StatusOK, map[string]any{
		"player_id":     playerID,
		"balance":       balance,
		"balance_coins": domain.FormatCoins(balance),
	})
}

// Collect handles POST /wallets/{player_id}/collect and returns the
// items delivered to the player since the last collection.
func (h *WalletHandler) Collect(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "player_id")

	collected := h.bank.Collect(playerID)
	items := make([]itemPayload, 0, len(collected))
	for _, it := range collected {
		items = append(items, itemPayload{TypeID: it.TypeID, Stack: it.Stack, Prefix: it.Prefix})
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"player_id": playerID,
		"items":     items,
	})
}
