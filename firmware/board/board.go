// Package board maps chess-cell indices to machine coordinates.
//
// The firmware stays coordinate-agnostic otherwise: this is purely the
// convenience mapping the cell-move command uses, plus the two parking
// banks beside the board where captured pieces are dropped.
package board

import "github.com/MARCOVB5/autochess/config"

// Board converts cell indices to millimeter positions.
type Board struct {
	cfg       config.BoardConfig
	nextLeft  int
	nextRight int
}

// New creates a Board for the configured geometry.
func New(cfg config.BoardConfig) *Board {
	return &Board{cfg: cfg}
}

// CellCenter returns the XY center of a cell. Row selects Y, column
// selects X. Indices outside the configured board are mapped with the
// same formula; like all targets, they are not range-checked.
func (b *Board) CellCenter(row, col int) (x, y float64) {
	x = (float64(col) + 0.5) * b.cfg.CellSizeMM
	y = (float64(row) + 0.5) * b.cfg.CellSizeMM
	return x, y
}

// InRange reports whether a cell lies on the configured board.
func (b *Board) InRange(row, col int) bool {
	return row >= 0 && row < b.cfg.Rows && col >= 0 && col < b.cfg.Cols
}

// NextParking returns the drop position for a captured piece taken
// from the given column, rotating through the side bank nearest to it:
// low columns park left of the board, high columns right of it.
func (b *Board) NextParking(col int) (x, y float64) {
	if col < b.cfg.Cols/2 {
		slot := b.nextLeft
		b.nextLeft = (b.nextLeft + 1) % b.cfg.ParkingLeft
		return b.CellCenter(slot, -1)
	}
	slot := b.nextRight
	b.nextRight = (b.nextRight + 1) % b.cfg.ParkingRight
	return b.CellCenter(slot, b.cfg.Cols)
}
