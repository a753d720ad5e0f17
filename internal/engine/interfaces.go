package engine

import "github.com/zooml/survmarket/internal/domain"

// Store is the durable store the engine writes through. A listing must
// be durably recorded before it is reported as placed, and a sale must be
// durably settled before the buyer receives the item. Implemented by
// persist.SQLiteStore and persist.MemoryStore.
type Store interface {
	// LoadAll returns all stored listings in insertion order.
	LoadAll() ([]*domain.Listing, error)
	// InsertListing assigns and returns a new durable id.
	InsertListing(l *domain.Listing) (int64, error)
	// DeleteListing removes a record; unknown or unassigned ids are a
	// no-op.
	DeleteListing(id int64) error
	// Balance returns a seller's escrow balance and whether the account
	// exists.
	Balance(ownerID string) (int64, bool, error)
	// SetBalance writes a balance; with create unset a missing account
	// fails with domain.ErrEscrowNotFound.
	SetBalance(ownerID string, balance int64, create bool) error
	// Settle atomically deletes a sold listing and credits the seller's
	// escrow, creating the account on first credit.
	Settle(listingID int64, ownerID string, credit int64) error
	// Wipe deletes every listing and escrow account.
	Wipe() error
}

// CurrencyService mutates player currency balances in the host
// environment.
type CurrencyService interface {
	// Debit removes amount from a player's balance. Returns
	// domain.ErrInsufficientFunds if the player cannot cover it.
	Debit(playerID string, amount int64) error
	// Credit adds amount to a player's balance.
	Credit(playerID string, amount int64)
}

// ItemDeliverer hands physical items to a player. Invoked exactly once
// per terminal purchase transition and once per coin stack on escrow
// withdrawal.
type ItemDeliverer interface {
	Deliver(playerID string, item domain.Item)
}

// SlotScanner discovers the fixed slot table once at startup. Zero slots
// means the marketplace runs disabled: listing and purchasing are
// rejected while escrow withdrawal keeps working.
type SlotScanner interface {
	Discover() []domain.SlotRef
}
