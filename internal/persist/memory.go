package persist

import (
	"errors"
	"sync"

	"github.com/zooml/survmarket/internal/domain"
)

// MemoryStore is an in-memory store with the same contract as
// SQLiteStore. It backs tests and setups that do not need durability.
type MemoryStore struct {
	mu       sync.Mutex
	nextID   int64
	order    []int64 // insertion order of live listing ids
	listings map[int64]listingRecord
	escrow   map[string]int64

	// FailWrites makes every mutating call fail with ErrWritesDisabled.
	// Test hook for storage-failure paths.
	FailWrites bool
}

// ErrWritesDisabled is returned by a MemoryStore with FailWrites set.
var ErrWritesDisabled = errors.New("writes disabled")

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:   1,
		listings: make(map[int64]listingRecord),
		escrow:   make(map[string]int64),
	}
}

// LoadAll returns every stored listing in insertion order.
func (s *MemoryStore) LoadAll() ([]*domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Listing, 0, len(s.order))
	for _, id := range s.order {
		rec := s.listings[id]
		out = append(out, &domain.Listing{
			ID:      id,
			OwnerID: rec.OwnerID,
			Price:   rec.Price,
			Item:    rec.Item,
		})
	}
	return out, nil
}

// InsertListing stores a new listing record and returns its id.
func (s *MemoryStore) InsertListing(l *domain.Listing) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites {
		return domain.UnassignedID, ErrWritesDisabled
	}
	id := s.nextID
	s.nextID++
	s.listings[id] = listingRecord{OwnerID: l.OwnerID, Price: l.Price, Item: l.Item}
	s.order = append(s.order, id)
	return id, nil
}

// DeleteListing removes a record; unknown ids are a no-op.
func (s *MemoryStore) DeleteListing(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites {
		return ErrWritesDisabled
	}
	s.deleteLocked(id)
	return nil
}

// Balance returns a seller's escrow balance and whether it exists.
func (s *MemoryStore) Balance(ownerID string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bal, ok := s.escrow[ownerID]
	return bal, ok, nil
}

// SetBalance writes a balance, creating the account only when create is
// set.
func (s *MemoryStore) SetBalance(ownerID string, balance int64, create bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites {
		return ErrWritesDisabled
	}
	if _, ok := s.escrow[ownerID]; !ok && !create {
		return domain.ErrEscrowNotFound
	}
	s.escrow[ownerID] = balance
	return nil
}

// Settle deletes a sold listing and credits the seller in one step.
func (s *MemoryStore) Settle(listingID int64, ownerID string, credit int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites {
		return ErrWritesDisabled
	}
	s.deleteLocked(listingID)
	s.escrow[ownerID] += credit
	return nil
}

// Wipe clears all listings and escrow accounts.
func (s *MemoryStore) Wipe() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites {
		return ErrWritesDisabled
	}
	s.listings = make(map[int64]listingRecord)
	s.order = nil
	s.escrow = make(map[string]int64)
	return nil
}

func (s *MemoryStore) deleteLocked(id int64) {
	if _, ok := s.listings[id]; !ok {
		return
	}
	delete(s.listings, id)
	for i, cur := range s.order {
		if cur == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
