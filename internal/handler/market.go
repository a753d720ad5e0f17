package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zooml/survmarket/internal/domain"
	"github.com/zooml/survmarket/internal/service"
)

// MarketHandler handles HTTP requests for listing, purchase, escrow, and
// admin endpoints.
type MarketHandler struct {
	svc        *service.MarketService
	adminToken string
}

// NewMarketHandler creates a new MarketHandler. adminToken authorizes
// elevated requests; empty disables them.
func NewMarketHandler(svc *service.MarketService, adminToken string) *MarketHandler {
	return &MarketHandler{svc: svc, adminToken: adminToken}
}

// elevated reports whether the request carries the admin bearer token.
func (h *MarketHandler) elevated(r *http.Request) bool {
	return h.adminToken != "" && r.Header.Get("Authorization") == "Bearer "+h.adminToken
}

// itemPayload mirrors domain.Item on the wire.
type itemPayload struct {
	TypeID int32 `json:"type_id"`
	Stack  int32 `json:"stack"`
	Prefix byte  `json:"prefix"`
}

// listingResponse is the JSON shape of a listing.
type listingResponse struct {
	ID         int64       `json:"id"`
	OwnerID    string      `json:"owner_id"`
	Price      int64       `json:"price"`
	PriceCoins string      `json:"price_coins"`
	Item       itemPayload `json:"item"`
}

// sellerListingResponse adds the slot the listing occupies, null while
// it waits in the overflow queue.
type sellerListingResponse struct {
	listingResponse
	SlotIndex *int `json:"slot_index"`
}

func toListingResponse(l *domain.Listing) listingResponse {
	return listingResponse{
		ID:         l.ID,
		OwnerID:    l.OwnerID,
		Price:      l.Price,
		PriceCoins: domain.FormatCoins(l.Price),
		Item:       itemPayload{TypeID: l.Item.TypeID, Stack: l.Item.Stack, Prefix: l.Item.Prefix},
	}
}

// sellRequest is the JSON request body for POST /listings.
type sellRequest struct {
	SellerID   string      `json:"seller_id"`
	Price      *int64      `json:"price"`
	PriceCoins *string     `json:"price_coins"`
	Item       itemPayload `json:"item"`
}

// Sell handles POST /listings.
func (h *MarketHandler) Sell(w http.ResponseWriter, r *http.Request) {
	var req sellRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	l, err := h.svc.Sell(service.SellRequest{
		SellerID:   req.SellerID,
		Price:      req.Price,
		PriceCoins: req.PriceCoins,
		Item:       domain.Item{TypeID: req.Item.TypeID, Stack: req.Item.Stack, Prefix: req.Item.Prefix},
		Elevated:   h.elevated(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, toListingResponse(l))
}

// buyRequest is the JSON request body for POST /slots/{index}/purchase.
// listing_id pins the purchase to the listing the client saw in the
// board snapshot.
type buyRequest struct {
	BuyerID   string `json:"buyer_id"`
	ListingID int64  `json:"listing_id"`
}

// receiptResponse is the JSON shape of a purchase receipt.
type receiptResponse struct {
	ReceiptID  string          `json:"receipt_id"`
	Outcome    string          `json:"outcome"`
	Paid       int64           `json:"paid"`
	PaidCoins  string          `json:"paid_coins"`
	Listing    listingResponse `json:"listing"`
	ExecutedAt string          `json:"executed_at"`
}

// Buy handles POST /slots/{index}/purchase.
func (h *MarketHandler) Buy(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "slot index must be an integer")
		return
	}

	var req buyRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	rec, err := h.svc.Buy(index, req.ListingID, req.BuyerID, h.elevated(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, receiptResponse{
		ReceiptID:  rec.ReceiptID,
		Outcome:    string(rec.Outcome),
		Paid:       rec.Paid,
		PaidCoins:  domain.FormatCoins(rec.Paid),
		Listing:    toListingResponse(rec.Listing),
		ExecutedAt: rec.ExecutedAt.UTC().Format(time.RFC3339),
	})
}

// slotResponse is one slot in the board snapshot.
type slotResponse struct {
	Index   int              `json:"index"`
	Listing *listingResponse `json:"listing"`
}

// boardResponse is the JSON shape of GET /slots.
type boardResponse struct {
	Enabled    bool           `json:"enabled"`
	Capacity   int            `json:"capacity"`
	QueueDepth int            `json:"queue_depth"`
	Slots      []slotResponse `json:"slots"`
}

// Board handles GET /slots.
func (h *MarketHandler) Board(w http.ResponseWriter, r *http.Request) {
	view := h.svc.Board()
	resp := boardResponse{
		Enabled:    view.Enabled,
		Capacity:   view.Capacity,
		QueueDepth: view.QueueDepth,
		Slots:      make([]slotResponse, 0, view.Capacity),
	}
	for i, l := range view.Slots {
		slot := slotResponse{Index: i}
		if l != nil {
			lr := toListingResponse(l)
			slot.Listing = &lr
		}
		resp.Slots = append(resp.Slots, slot)
	}
	WriteJSON(w, http.StatusOK, resp)
}

// SellerListings handles GET /sellers/{seller_id}/listings with optional
// page and limit query parameters.
func (h *MarketHandler) SellerListings(w http.ResponseWriter, r *http.Request) {
	sellerID := chi.URLParam(r, "seller_id")

	page, limit := 1, 20
	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "page must be an integer")
			return
		}
		page = n
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "limit must be an integer")
			return
		}
		limit = n
	}

	listings, total, err := h.svc.Listings(sellerID, page, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]sellerListingResponse, 0, len(listings))
	for _, sl := range listings {
		entry := sellerListingResponse{listingResponse: toListingResponse(sl.Listing)}
		if sl.SlotIndex >= 0 {
			idx := sl.SlotIndex
			entry.SlotIndex = &idx
		}
		items = append(items, entry)
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"listings": items,
		"total":    total,
		"page":     page,
		"limit":    limit,
	})
}

// balanceResponse is the JSON shape of GET /escrow/{seller_id}.
type balanceResponse struct {
	SellerID     string `json:"seller_id"`
	Balance      int64  `json:"balance"`
	BalanceCoins string `json:"balance_coins"`
}

// Balance handles GET /escrow/{seller_id}.
func (h *MarketHandler) Balance(w http.ResponseWriter, r *http.Request) {
	sellerID := chi.URLParam(r, "seller_id")
	balance, err := h.svc.Balance(sellerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, balanceResponse{
		SellerID:     sellerID,
		Balance:      balance,
		BalanceCoins: domain.FormatCoins(balance),
	})
}

// withdrawRequest is the JSON request body for
// POST /escrow/{seller_id}/withdraw.
type withdrawRequest struct {
	Amount *int64 `json:"amount"`
	All    bool   `json:"all"`
}

// Withdraw handles POST /escrow/{seller_id}/withdraw.
func (h *MarketHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	sellerID := chi.URLParam(r, "seller_id")

	var req withdrawRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	withdrawn, err := h.svc.Withdraw(service.WithdrawRequest{
		SellerID: sellerID,
		Amount:   req.Amount,
		All:      req.All,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"seller_id":       sellerID,
		"withdrawn":       withdrawn,
		"withdrawn_coins": domain.FormatCoins(withdrawn),
	})
}

// ForceRemove handles DELETE /slots/{index}. Admin only.
func (h *MarketHandler) ForceRemove(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "slot index must be an integer")
		return
	}
	l, err := h.svc.ForceRemove(index)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toListingResponse(l))
}

// Wipe handles POST /admin/wipe. Admin only.
func (h *MarketHandler) Wipe(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Wipe(); err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "wiped"})
}

// writeDomainError maps domain errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		WriteError(w, http.StatusBadRequest, "validation_error", verr.Message)
	case errors.Is(err, domain.ErrInvalidPrice):
		WriteError(w, http.StatusUnprocessableEntity, "invalid_price", "Price must be a positive amount")
	case errors.Is(err, domain.ErrInvalidItem):
		WriteError(w, http.StatusUnprocessableEntity, "invalid_item", "This item cannot be listed for sale")
	case errors.Is(err, domain.ErrCapacityExceeded):
		WriteError(w, http.StatusConflict, "capacity_exceeded", "Listing limit reached, try again after a sale")
	case errors.Is(err, domain.ErrMarketplaceUnavailable):
		WriteError(w, http.StatusServiceUnavailable, "marketplace_unavailable", "The marketplace has no slots configured")
	case errors.Is(err, domain.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not_found", "No such listing at this slot")
	case errors.Is(err, domain.ErrInsufficientFunds):
		WriteError(w, http.StatusPaymentRequired, "insufficient_funds", "Not enough coins to buy this item")
	case errors.Is(err, domain.ErrEscrowNotFound):
		WriteError(w, http.StatusNotFound, "escrow_account_not_found", "No escrow account for this seller")
	case errors.Is(err, domain.ErrStorage):
		WriteError(w, http.StatusInternalServerError, "storage_failure", "The operation was aborted, nothing was changed")
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "Unexpected error")
	}
}
