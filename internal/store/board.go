package store

import (
	"github.com/google/btree"

	"github.com/zooml/survmarket/internal/domain"
)

// Renderer receives slot render events. Implementations must be
// non-blocking best-effort: failures are never surfaced to the board.
// A nil listing means the slot should be rendered empty.
type Renderer interface {
	RenderSlot(index int, slot domain.SlotRef, listing *domain.Listing)
}

// sellerEntry indexes a listing in (owner, arrival sequence) order so a
// seller's listings can be walked in creation order.
type sellerEntry struct {
	OwnerID string
	Seq     uint64
	Listing *domain.Listing
}

func sellerLess(a, b sellerEntry) bool {
	if a.OwnerID != b.OwnerID {
		return a.OwnerID < b.OwnerID
	}
	return a.Seq < b.Seq
}

// Board is the in-memory listing store: the slot table, the dense prefix
// of active listings bound 1:1 to slots, and the overflow FIFO queue for
// listings created while every slot was occupied.
//
// The board holds the dense-prefix invariant: active listings always
// occupy slots 0..k-1 with no gaps. Insert and Remove are the only
// mutation paths; queue refill goes through the same Insert logic.
//
// The board is not safe for concurrent use. The transaction engine
// serializes every operation behind a single marketplace lock.
type Board struct {
	slots    []domain.SlotRef
	active   []*domain.Listing
	queue    []*domain.Listing
	bySeller *btree.BTreeG[sellerEntry]
	seqs     map[*domain.Listing]uint64
	nextSeq  uint64
	renderer Renderer
}

// NewBoard creates a board over the discovered slot table. The slot table
// is fixed for the board's lifetime; a nil or empty table produces a
// zero-capacity board on which Insert always queues nothing (capacity
// checks happen in the engine). renderer may be nil to disable render
// events.
func NewBoard(slots []domain.SlotRef, renderer Renderer) *Board {
	const degree = 8
	return &Board{
		slots:    slots,
		bySeller: btree.NewG[sellerEntry](degree, sellerLess),
		seqs:     make(map[*domain.Listing]uint64),
		renderer: renderer,
	}
}

// Capacity returns the number of slots, the marketplace's fixed capacity.
func (b *Board) Capacity() int {
	return len(b.slots)
}

// ActiveLen returns the number of listings currently occupying slots.
func (b *Board) ActiveLen() int {
	return len(b.active)
}

// QueueLen returns the number of listings waiting in the overflow queue.
func (b *Board) QueueLen() int {
	return len(b.queue)
}

// Slot returns the slot reference at the given index.
func (b *Board) Slot(index int) domain.SlotRef {
	return b.slots[index]
}

// At returns the listing occupying the given slot index, or nil if the
// index is out of range or past the dense prefix.
func (b *Board) At(index int) *domain.Listing {
	if index < 0 || index >= len(b.active) {
		return nil
	}
	return b.active[index]
}

// Insert places a listing on the board. If a slot is free it is appended
// at the end of the dense prefix and that slot is rendered; otherwise it
// joins the tail of the overflow queue. This is the sole entry point for
// both new listings and queue-drain refills.
func (b *Board) Insert(l *domain.Listing) {
	seq, ok := b.seqs[l]
	if !ok {
		seq = b.nextSeq
		b.nextSeq++
		b.seqs[l] = seq
		b.bySeller.ReplaceOrInsert(sellerEntry{OwnerID: l.OwnerID, Seq: seq, Listing: l})
	}

	if len(b.active) < len(b.slots) {
		b.active = append(b.active, l)
		b.render(len(b.active)-1, l)
		return
	}
	b.queue = append(b.queue, l)
}

// Remove takes a listing off the board, shifts every listing after it
// down one slot to restore the dense prefix, renders every shifted slot
// plus the vacated one, and refills freed slots from the overflow queue
// in FIFO order. Removing a listing that is not on the board is a no-op
// returning false (already removed, e.g. a lost purchase race).
func (b *Board) Remove(l *domain.Listing) bool {
	i := b.indexOf(l)
	if i == -1 {
		return false
	}

	seq := b.seqs[l]
	b.bySeller.Delete(sellerEntry{OwnerID: l.OwnerID, Seq: seq})
	delete(b.seqs, l)

	copy(b.active[i:], b.active[i+1:])
	b.active = b.active[:len(b.active)-1]

	for j := i; j < len(b.active); j++ {
		b.render(j, b.active[j])
	}
	b.render(len(b.active), nil)

	// Refill freed slots from the queue, oldest first. Bounded by
	// capacity, so the loop terminates.
	for len(b.active) < len(b.slots) && len(b.queue) > 0 {
		head := b.queue[0]
		b.queue = b.queue[1:]
		b.Insert(head)
	}
	return true
}

// SellerListings returns a seller's listings in creation order,
// spanning both the active prefix and the overflow queue.
func (b *Board) SellerListings(ownerID string) []*domain.Listing {
	var out []*domain.Listing
	b.bySeller.AscendGreaterOrEqual(sellerEntry{OwnerID: ownerID}, func(e sellerEntry) bool {
		if e.OwnerID != ownerID {
			return false
		}
		out = append(out, e.Listing)
		return true
	})
	return out
}

// ActiveCountBySeller returns how many of a seller's listings currently
// occupy slots. Queued listings are not counted; the queue has its own
// global cap.
func (b *Board) ActiveCountBySeller(ownerID string) int {
	n := 0
	for _, l := range b.active {
		if l.OwnerID == ownerID {
			n++
		}
	}
	return n
}

// IndexOf returns the slot index the listing occupies, or -1 if it is
// queued or not on the board.
func (b *Board) IndexOf(l *domain.Listing) int {
	return b.indexOf(l)
}

// Snapshot returns a copy of the active prefix.
func (b *Board) Snapshot() []*domain.Listing {
	out := make([]*domain.Listing, len(b.active))
	copy(out, b.active)
	return out
}

// Queued returns a copy of the overflow queue in FIFO order.
func (b *Board) Queued() []*domain.Listing {
	out := make([]*domain.Listing, len(b.queue))
	copy(out, b.queue)
	return out
}

// Reset discards every active and queued listing and renders all slots
// empty. Used by the marketplace wipe.
func (b *Board) Reset() {
	b.active = b.active[:0]
	b.queue = b.queue[:0]
	b.bySeller.Clear(false)
	b.seqs = make(map[*domain.Listing]uint64)
	b.RenderAll()
}

// RenderAll re-renders every slot: the active prefix with its listings,
// the rest empty. Called once at startup after replay.
func (b *Board) RenderAll() {
	for i := range b.slots {
		b.render(i, b.At(i))
	}
}

func (b *Board) indexOf(l *domain.Listing) int {
	for i, cur := range b.active {
		if cur == l {
			return i
		}
	}
	return -1
}

func (b *Board) render(index int, l *domain.Listing) {
	if b.renderer == nil {
		return
	}
	b.renderer.RenderSlot(index, b.slots[index], l)
}
