// Package wallet is a thread-safe in-memory currency and item-delivery
// collaborator. In the original host these calls land on the player's
// account and inventory; here they back the standalone binary and tests.
package wallet

import (
	"sync"

	"github.com/zooml/survmarket/internal/domain"
)

// Bank holds per-player currency balances and delivered items.
type Bank struct {
	mu       sync.Mutex
	balances map[string]int64
	pending  map[string][]domain.Item
}

// NewBank creates an empty Bank.
func NewBank() *Bank {
	return &Bank{
		balances: make(map[string]int64),
		pending:  make(map[string][]domain.Item),
	}
}

// Debit removes amount from a player's balance. Returns
// domain.ErrInsufficientFunds if the balance cannot cover it.
func (b *Bank) Debit(playerID string, amount int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.balances[playerID] < amount {
		return domain.ErrInsufficientFunds
	}
	b.balances[playerID] -= amount
	return nil
}

// Credit adds amount to a player's balance, creating it at zero first.
func (b *Bank) Credit(playerID string, amount int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.balances[playerID] += amount
}

// Balance returns a player's current balance.
func (b *Bank) Balance(playerID string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.balances[playerID]
}

// Deliver queues an item for the player to collect.
func (b *Bank) Deliver(playerID string, item domain.Item) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending[playerID] = append(b.pending[playerID], item)
}

// Collect returns and clears a player's delivered items.
func (b *Bank) Collect(playerID string) []domain.Item {
	b.mu.Lock()
	defer b.mu.Unlock()

	items := b.pending[playerID]
	delete(b.pending, playerID)
	return items
}
