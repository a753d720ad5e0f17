package domain

import "time"

// Point is a tile coordinate in the host world.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// SlotRef is a fixed display position pair discovered once at startup:
// a sign the buyer interacts with and the item frame above it that shows
// the listed item. Slots are identified by their index in the slot table.
type SlotRef struct {
	Sign  Point `json:"sign"`
	Frame Point `json:"frame"`
}

// Item is the payload of a listing: the stack being sold. It is immutable
// once the listing is created and travels through persistence as an opaque
// serialized blob.
type Item struct {
	TypeID int32 `json:"type_id"`
	Stack  int32 `json:"stack"`
	Prefix byte  `json:"prefix"`
}

// Coin item type ids, smallest denomination first. Coins are the currency
// itself and may not be listed for sale.
const (
	CopperCoinID   int32 = 71
	SilverCoinID   int32 = 72
	GoldCoinID     int32 = 73
	PlatinumCoinID int32 = 74
)

// IsCoin reports whether the item is a currency coin.
func (it Item) IsCoin() bool {
	return it.TypeID >= CopperCoinID && it.TypeID <= PlatinumCoinID
}

// UnassignedID marks a listing that has not yet been durably inserted.
const UnassignedID int64 = -1

// Listing is a seller's priced offer of one item stack. ID stays
// UnassignedID until the persistence layer accepts the record; only then
// is the listing reported to the seller as placed.
type Listing struct {
	ID      int64  `json:"id"`
	OwnerID string `json:"owner_id"`
	Price   int64  `json:"price"` // copper units, always > 0
	Item    Item   `json:"item"`
}

// PurchaseOutcome classifies the terminal transition of a purchase.
type PurchaseOutcome string

const (
	// OutcomePurchased: buyer paid the price, seller's escrow was credited.
	OutcomePurchased PurchaseOutcome = "purchased"
	// OutcomeReclaimed: seller took back their own listing, no money moved.
	OutcomeReclaimed PurchaseOutcome = "reclaimed"
	// OutcomeSeized: elevated caller removed the listing and took the item,
	// no money moved. An explicit moderation path.
	OutcomeSeized PurchaseOutcome = "seized"
)

// Receipt records a completed purchase transaction.
type Receipt struct {
	ReceiptID  string
	Outcome    PurchaseOutcome
	Listing    *Listing
	Paid       int64 // copper debited from the buyer, 0 for reclaim/seize
	ExecutedAt time.Time
}
