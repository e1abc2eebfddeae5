package board

import (
	"testing"

	"github.com/MARCOVB5/autochess/config"
)

func testBoard() *Board {
	return New(config.Default().Board)
}

func TestCellCenter(t *testing.T) {
	b := testBoard()

	tests := []struct {
		row, col     int
		wantX, wantY float64
	}{
		{0, 0, 25, 25},
		{1, 1, 75, 75},
		{3, 3, 175, 175},
		{0, 3, 175, 25},
	}
	for _, test := range tests {
		x, y := b.CellCenter(test.row, test.col)
		if x != test.wantX || y != test.wantY {
			t.Errorf("CellCenter(%d, %d) = (%f, %f), want (%f, %f)",
				test.row, test.col, x, y, test.wantX, test.wantY)
		}
	}
}

func TestInRange(t *testing.T) {
	b := testBoard()
	if !b.InRange(0, 0) || !b.InRange(3, 3) {
		t.Error("expected corner cells in range")
	}
	for _, cell := range [][2]int{{-1, 0}, {0, -1}, {4, 0}, {0, 4}} {
		if b.InRange(cell[0], cell[1]) {
			t.Errorf("expected (%d, %d) out of range", cell[0], cell[1])
		}
	}
}

func TestParkingSidesAndRotation(t *testing.T) {
	b := testBoard()

	// Low column parks left of the board (negative X).
	x, _ := b.NextParking(0)
	if x >= 0 {
		t.Errorf("expected left-bank X < 0, got %f", x)
	}

	// High column parks right of the board.
	x, _ = b.NextParking(3)
	if x <= 175 {
		t.Errorf("expected right-bank X beyond the board, got %f", x)
	}

	// Slots rotate and wrap.
	_, y0 := b.NextParking(0)
	_, y1 := b.NextParking(0)
	if y0 == y1 {
		t.Error("expected consecutive left slots to differ")
	}
	b2 := testBoard()
	fx, fy := b2.NextParking(0)
	for i := 0; i < config.Default().Board.ParkingLeft-1; i++ {
		b2.NextParking(0)
	}
	wx, wy := b2.NextParking(0)
	if wx != fx || wy != fy {
		t.Errorf("expected parking to wrap to the first slot, got (%f, %f) want (%f, %f)",
			wx, wy, fx, fy)
	}
}
