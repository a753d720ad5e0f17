package service

import (
	"regexp"

	"github.com/zooml/survmarket/internal/domain"
	"github.com/zooml/survmarket/internal/engine"
)

var playerIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Item stacks are bounded by the host inventory format.
const maxStack = 9999

// SellRequest represents the input for listing an item. Exactly one of
// Price (copper units) and PriceCoins (coin notation, e.g. "1g50s") must
// be set.
type SellRequest struct {
	SellerID   string
	Price      *int64
	PriceCoins *string
	Item       domain.Item
	Elevated   bool
}

// WithdrawRequest represents the input for an escrow withdrawal. All
// withdraws the full balance; otherwise Amount must be a positive copper
// amount.
type WithdrawRequest struct {
	SellerID string
	Amount   *int64
	All      bool
}

// MarketService validates requests and drives the transaction engine.
type MarketService struct {
	mkt *engine.Marketplace
}

// NewMarketService creates a MarketService over the given engine.
func NewMarketService(mkt *engine.Marketplace) *MarketService {
	return &MarketService{mkt: mkt}
}

// Sell validates the request and lists the item.
func (s *MarketService) Sell(req SellRequest) (*domain.Listing, error) {
	if !playerIDRegex.MatchString(req.SellerID) {
		return nil, &domain.ValidationError{
			Message: "seller_id must match ^[a-zA-Z0-9_-]{1,64}$",
		}
	}

	var price int64
	switch {
	case req.Price != nil && req.PriceCoins != nil:
		return nil, &domain.ValidationError{
			Message: "set either price or price_coins, not both",
		}
	case req.Price != nil:
		price = *req.Price
	case req.PriceCoins != nil:
		parsed, err := domain.ParseCoins(*req.PriceCoins)
		if err != nil {
			return nil, &domain.ValidationError{
				Message: "price_coins must be coin notation such as 1p2g3s4c: " + err.Error(),
			}
		}
		price = parsed
	default:
		return nil, &domain.ValidationError{
			Message: "price or price_coins is required",
		}
	}

	if err := validateItem(req.Item); err != nil {
		return nil, err
	}

	return s.mkt.List(req.SellerID, price, req.Item, req.Elevated)
}

// Buy validates the buyer and purchases the listing at the given slot.
func (s *MarketService) Buy(slotIndex int, listingID int64, buyerID string, elevated bool) (*domain.Receipt, error) {
	if !playerIDRegex.MatchString(buyerID) {
		return nil, &domain.ValidationError{
			Message: "buyer_id must match ^[a-zA-Z0-9_-]{1,64}$",
		}
	}
	if listingID < 0 {
		return nil, &domain.ValidationError{
			Message: "listing_id must be a non-negative integer",
		}
	}
	return s.mkt.Purchase(slotIndex, listingID, buyerID, elevated)
}

// Withdraw validates the request and withdraws escrow. Returns the
// copper amount actually paid out.
func (s *MarketService) Withdraw(req WithdrawRequest) (int64, error) {
	if !playerIDRegex.MatchString(req.SellerID) {
		return 0, &domain.ValidationError{
			Message: "seller_id must match ^[a-zA-Z0-9_-]{1,64}$",
		}
	}
	if req.All {
		if req.Amount != nil {
			return 0, &domain.ValidationError{
				Message: "set either amount or all, not both",
			}
		}
		return s.mkt.WithdrawEscrow(req.SellerID, -1)
	}
	if req.Amount == nil {
		return 0, &domain.ValidationError{
			Message: "amount or all is required",
		}
	}
	if *req.Amount <= 0 {
		return 0, &domain.ValidationError{
			Message: "amount must be a positive integer",
		}
	}
	return s.mkt.WithdrawEscrow(req.SellerID, *req.Amount)
}

// Balance returns a seller's escrow balance in copper.
func (s *MarketService) Balance(sellerID string) (int64, error) {
	if !playerIDRegex.MatchString(sellerID) {
		return 0, &domain.ValidationError{
			Message: "seller_id must match ^[a-zA-Z0-9_-]{1,64}$",
		}
	}
	return s.mkt.EscrowBalance(sellerID)
}

// Listings returns a page of a seller's listings in creation order plus
// the total count. Pagination is 1-based.
func (s *MarketService) Listings(sellerID string, page, limit int) ([]engine.SellerListing, int, error) {
	if !playerIDRegex.MatchString(sellerID) {
		return nil, 0, &domain.ValidationError{
			Message: "seller_id must match ^[a-zA-Z0-9_-]{1,64}$",
		}
	}
	if page < 1 {
		return nil, 0, &domain.ValidationError{Message: "page must be >= 1"}
	}
	if limit < 1 || limit > 100 {
		return nil, 0, &domain.ValidationError{Message: "limit must be between 1 and 100"}
	}

	all := s.mkt.SellerListings(sellerID)
	total := len(all)
	start := (page - 1) * limit
	if start >= total {
		return []engine.SellerListing{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

// Board returns a snapshot of the slot table.
func (s *MarketService) Board() engine.BoardView {
	return s.mkt.Snapshot()
}

// ForceRemove removes the listing at slotIndex without ownership checks.
func (s *MarketService) ForceRemove(slotIndex int) (*domain.Listing, error) {
	return s.mkt.AdminForceRemove(slotIndex)
}

// Wipe clears the whole marketplace including escrow.
func (s *MarketService) Wipe() error {
	return s.mkt.Wipe()
}

func validateItem(item domain.Item) error {
	if item.TypeID <= 0 {
		return &domain.ValidationError{Message: "item.type_id must be a positive integer"}
	}
	if item.Stack < 1 || item.Stack > maxStack {
		return &domain.ValidationError{Message: "item.stack must be between 1 and 9999"}
	}
	return nil
}
