package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zooml/survmarket/internal/domain"
	"github.com/zooml/survmarket/internal/store"
)

// Limits are the marketplace's soft caps. Elevated callers bypass both.
type Limits struct {
	// SellerCap is the maximum number of slots one seller may occupy at
	// a time.
	SellerCap int
	// QueueCap is the maximum depth of the overflow queue.
	QueueCap int
}

// SellerListing is one entry of a seller's view: the listing plus the
// slot it occupies, or -1 while it waits in the overflow queue.
type SellerListing struct {
	Listing   *domain.Listing
	SlotIndex int
}

// BoardView is a point-in-time snapshot of the marketplace.
type BoardView struct {
	Capacity   int
	Slots      []*domain.Listing // one entry per slot, nil = empty
	QueueDepth int
	Enabled    bool
}

// Marketplace is the transaction engine: it owns the board and the
// escrow accounts and orchestrates listing, purchase, withdrawal, and
// administrative removal as all-or-nothing operations over the board and
// the durable store.
//
// A single coarse mutex serializes every operation. All collaborator
// calls made under the lock are fast local calls, so no operation
// suspends while holding it; the slot re-check in Purchase happens under
// the same lock, which is what turns a purchase race into a clean
// not-found for the loser.
type Marketplace struct {
	mu       sync.Mutex
	board    *store.Board
	db       Store
	currency CurrencyService
	items    ItemDeliverer
	limits   Limits
}

// New creates a Marketplace over a populated board and a durable store.
func New(board *store.Board, db Store, currency CurrencyService, items ItemDeliverer, limits Limits) *Marketplace {
	return &Marketplace{
		board:    board,
		db:       db,
		currency: currency,
		items:    items,
		limits:   limits,
	}
}

// Replay loads every stored listing and pushes it through the normal
// insertion path, rebuilding the dense prefix and the overflow queue
// exactly as they were before the restart, then renders every slot.
// Called once at startup.
func (m *Marketplace) Replay() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	listings, err := m.db.LoadAll()
	if err != nil {
		return storageFailure(err)
	}
	for _, l := range listings {
		m.board.Insert(l)
	}
	m.board.RenderAll()
	return nil
}

// List creates a listing for the seller, persists it, and places it on
// the board or in the overflow queue. The listing is durable before List
// returns. Elevated callers bypass the seller and queue caps.
func (m *Marketplace) List(sellerID string, price int64, item domain.Item, elevated bool) (*domain.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.board.Capacity() == 0 {
		return nil, domain.ErrMarketplaceUnavailable
	}
	if price <= 0 {
		return nil, domain.ErrInvalidPrice
	}
	if item.IsCoin() {
		return nil, domain.ErrInvalidItem
	}
	if !elevated {
		if m.board.ActiveCountBySeller(sellerID) >= m.limits.SellerCap {
			return nil, domain.ErrCapacityExceeded
		}
		if m.board.QueueLen() >= m.limits.QueueCap {
			return nil, domain.ErrCapacityExceeded
		}
	}

	l := &domain.Listing{
		ID:      domain.UnassignedID,
		OwnerID: sellerID,
		Price:   price,
		Item:    item,
	}
	id, err := m.db.InsertListing(l)
	if err != nil {
		return nil, storageFailure(err)
	}
	l.ID = id
	m.board.Insert(l)
	return l, nil
}

// Purchase resolves the listing at slotIndex and executes the matching
// terminal transition:
//
//   - the seller reclaims their own listing free of charge,
//   - an elevated buyer seizes the listing with no payment,
//   - anyone else pays the price, which lands in the seller's escrow.
//
// listingID pins the purchase to the listing the buyer actually saw: if
// the slot has since been vacated or refilled the purchase fails with
// domain.ErrNotFound and no money moves. A failed debit leaves board,
// store, and escrow untouched; a storage failure after the debit refunds
// the buyer before returning.
func (m *Marketplace) Purchase(slotIndex int, listingID int64, buyerID string, elevated bool) (*domain.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.board.Capacity() == 0 {
		return nil, domain.ErrMarketplaceUnavailable
	}
	l := m.board.At(slotIndex)
	if l == nil || l.ID != listingID {
		return nil, domain.ErrNotFound
	}

	outcome := domain.OutcomePurchased
	paid := int64(0)
	switch {
	case buyerID == l.OwnerID:
		outcome = domain.OutcomeReclaimed
	case elevated:
		outcome = domain.OutcomeSeized
	}

	if outcome == domain.OutcomePurchased {
		if err := m.currency.Debit(buyerID, l.Price); err != nil {
			return nil, err
		}
		if err := m.db.Settle(l.ID, l.OwnerID, l.Price); err != nil {
			m.currency.Credit(buyerID, l.Price)
			return nil, storageFailure(err)
		}
		paid = l.Price
	} else {
		if err := m.db.DeleteListing(l.ID); err != nil {
			return nil, storageFailure(err)
		}
	}

	m.board.Remove(l)
	m.items.Deliver(buyerID, l.Item)

	return &domain.Receipt{
		ReceiptID:  uuid.New().String(),
		Outcome:    outcome,
		Listing:    l,
		Paid:       paid,
		ExecutedAt: time.Now().UTC(),
	}, nil
}

// WithdrawEscrow pays out min(amount, balance) of the seller's escrow as
// coin items, or the full balance when amount is negative ("withdraw
// all"). A zero balance is a zero no-op, not an error. Returns the amount
// actually withdrawn.
func (m *Marketplace) WithdrawEscrow(sellerID string, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	balance, ok, err := m.db.Balance(sellerID)
	if err != nil {
		return 0, storageFailure(err)
	}
	if !ok || balance == 0 {
		return 0, nil
	}
	actual := balance
	if amount >= 0 && amount < balance {
		actual = amount
	}
	if actual == 0 {
		return 0, nil
	}

	if err := m.db.SetBalance(sellerID, balance-actual, false); err != nil {
		return 0, storageFailure(err)
	}
	for _, coin := range domain.CoinItems(actual) {
		m.items.Deliver(sellerID, coin)
	}
	return actual, nil
}

// EscrowBalance returns a seller's current escrow balance, 0 for an
// account that was never credited.
func (m *Marketplace) EscrowBalance(sellerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	balance, _, err := m.db.Balance(sellerID)
	if err != nil {
		return 0, storageFailure(err)
	}
	return balance, nil
}

// AdminForceRemove deletes the listing at slotIndex without ownership
// checks or payment. The item is not delivered anywhere; the record is
// dropped.
func (m *Marketplace) AdminForceRemove(slotIndex int) (*domain.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := m.board.At(slotIndex)
	if l == nil {
		return nil, domain.ErrNotFound
	}
	if err := m.db.DeleteListing(l.ID); err != nil {
		return nil, storageFailure(err)
	}
	m.board.Remove(l)
	return l, nil
}

// Wipe durably deletes every listing and escrow account, clears the
// board and queue, and renders all slots empty.
func (m *Marketplace) Wipe() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.db.Wipe(); err != nil {
		return storageFailure(err)
	}
	m.board.Reset()
	return nil
}

// SellerListings returns a seller's listings in creation order with the
// slot each occupies, -1 for queued entries.
func (m *Marketplace) SellerListings(sellerID string) []SellerListing {
	m.mu.Lock()
	defer m.mu.Unlock()

	listings := m.board.SellerListings(sellerID)
	out := make([]SellerListing, 0, len(listings))
	for _, l := range listings {
		out = append(out, SellerListing{Listing: l, SlotIndex: m.board.IndexOf(l)})
	}
	return out
}

// Snapshot returns the current board state: one entry per slot and the
// overflow queue depth.
func (m *Marketplace) Snapshot() BoardView {
	m.mu.Lock()
	defer m.mu.Unlock()

	capacity := m.board.Capacity()
	slots := make([]*domain.Listing, capacity)
	for i := 0; i < capacity; i++ {
		slots[i] = m.board.At(i)
	}
	return BoardView{
		Capacity:   capacity,
		Slots:      slots,
		QueueDepth: m.board.QueueLen(),
		Enabled:    capacity > 0,
	}
}

func storageFailure(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrStorage, err)
}
