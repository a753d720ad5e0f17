// Package scan discovers the marketplace's slot table. The original host
// walks the shop region's tiles looking for sign/item-frame pairs; the
// GridScanner reproduces that layout from configured bounds.
package scan

import "github.com/zooml/survmarket/internal/domain"

// Slot geometry within the shop region: stalls are laid out on a grid,
// each with an item frame two tiles above its sign.
const (
	stallWidth   = 3
	stallHeight  = 4
	frameOffsetY = -2
)

// GridScanner derives slot positions from a rectangular shop region.
// Implements engine.SlotScanner.
type GridScanner struct {
	origin domain.Point
	rows   int
	cols   int
}

// NewGridScanner creates a scanner for a region anchored at origin with
// the given stall grid. Non-positive dimensions yield zero slots, which
// disables the marketplace.
func NewGridScanner(origin domain.Point, rows, cols int) *GridScanner {
	return &GridScanner{origin: origin, rows: rows, cols: cols}
}

// Discover returns the slot table in reading order: left to right, top
// to bottom. The table is fixed for the process lifetime.
func (s *GridScanner) Discover() []domain.SlotRef {
	if s.rows <= 0 || s.cols <= 0 {
		return nil
	}
	slots := make([]domain.SlotRef, 0, s.rows*s.cols)
	for r := 0; r < s.rows; r++ {
		for c := 0; c < s.cols; c++ {
			sign := domain.Point{
				X: s.origin.X + c*stallWidth,
				Y: s.origin.Y + r*stallHeight,
			}
			slots = append(slots, domain.SlotRef{
				Sign:  sign,
				Frame: domain.Point{X: sign.X, Y: sign.Y + frameOffsetY},
			})
		}
	}
	return slots
}
