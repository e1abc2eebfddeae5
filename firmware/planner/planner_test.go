package planner

import (
	"errors"
	"testing"
	"time"

	"github.com/MARCOVB5/autochess/config"
	"github.com/MARCOVB5/autochess/firmware/stepgen"
	"github.com/MARCOVB5/autochess/hal"
)

type stubGuard struct {
	haltAfter int // number of Halted calls before tripping; -1 = never
	calls     int
}

func (g *stubGuard) Halted() bool {
	if g.haltAfter < 0 {
		return false
	}
	g.calls++
	return g.calls > g.haltAfter
}

func newTestPlanner(t *testing.T, guard Guard) (*Planner, *hal.SimRig) {
	t.Helper()
	rig := hal.NewSimRig()
	cfg := config.Default()

	x, err := stepgen.New("x", cfg.Axes["x"], rig, rig)
	if err != nil {
		t.Fatal(err)
	}
	y, err := stepgen.New("y", cfg.Axes["y"], rig, rig)
	if err != nil {
		t.Fatal(err)
	}
	z, err := stepgen.New("z", cfg.Axes["z"], rig, rig)
	if err != nil {
		t.Fatal(err)
	}

	p, err := New(cfg.Motion, x, y, z, rig, rig, guard)
	if err != nil {
		t.Fatal(err)
	}
	return p, rig
}

// Final positions equal the rounded step targets for every commanded axis.
func TestMoveReachesRoundedTargets(t *testing.T) {
	tests := []struct {
		x, y         float64
		wantX, wantY int64
	}{
		{25, 25, 2000, 2000},
		{47.5, -13.256, 3800, -1060}, // -1060.48 rounds to -1060
		{-4.908, 0, -393, 0},         // -392.64 rounds to -393
		{0, 0, 0, 0},
	}

	for _, test := range tests {
		p, _ := newTestPlanner(t, &stubGuard{haltAfter: -1})
		if err := p.Move(Target{X: test.x, Y: test.y}, 1500); err != nil {
			t.Fatalf("Move(%f, %f) failed: %v", test.x, test.y, err)
		}
		gotX, gotY, _ := p.Steps()
		if gotX != test.wantX || gotY != test.wantY {
			t.Errorf("Move(%f, %f): got (%d, %d), want (%d, %d)",
				test.x, test.y, gotX, gotY, test.wantX, test.wantY)
		}
	}
}

func TestMoveEmitsExactPulseCounts(t *testing.T) {
	p, rig := newTestPlanner(t, &stubGuard{haltAfter: -1})
	if err := p.Move(Target{X: 10, Y: 5}, 1500); err != nil {
		t.Fatal(err)
	}
	// 80 steps/mm: 800 X pulses, 400 Y pulses, interleaved by the DDA.
	if got := rig.Edges(2); got != 800 {
		t.Errorf("expected 800 x pulses, got %d", got)
	}
	if got := rig.Edges(3); got != 400 {
		t.Errorf("expected 400 y pulses, got %d", got)
	}
}

func TestRepeatedMoveIsAbsolute(t *testing.T) {
	p, _ := newTestPlanner(t, &stubGuard{haltAfter: -1})
	p.Move(Target{X: 20, Y: 10}, 1500)
	if err := p.Move(Target{X: 5, Y: 10}, 1500); err != nil {
		t.Fatal(err)
	}
	gotX, gotY, _ := p.Steps()
	if gotX != 400 || gotY != 800 {
		t.Errorf("expected (400, 800), got (%d, %d)", gotX, gotY)
	}
}

// Ascending moves raise Z before the horizontal phase; descending moves
// lower it afterwards.
func TestVerticalOrdering(t *testing.T) {
	// Ascending: halt almost immediately; only Z may have moved.
	p, rig := newTestPlanner(t, &stubGuard{haltAfter: 5})
	err := p.Move(Target{X: 10, Y: 0, Z: 10}, 1500)
	if !errors.Is(err, ErrHalted) {
		t.Fatalf("expected ErrHalted, got %v", err)
	}
	if rig.Edges(4) == 0 {
		t.Error("expected Z pulses before the halt on an ascending move")
	}
	if rig.Edges(2) != 0 {
		t.Error("expected no X pulses before Z finished on an ascending move")
	}

	// Descending: X runs first, Z untouched at the halt.
	p2, rig2 := newTestPlanner(t, &stubGuard{haltAfter: -1})
	if err := p2.Move(Target{Z: 10}, 1500); err != nil {
		t.Fatal(err)
	}
	zEdges := rig2.Edges(4)
	// Swap in a tripping guard for the descending move.
	p2.guard = &stubGuard{haltAfter: 5}
	err = p2.Move(Target{X: 10, Y: 0, Z: 0}, 1500)
	if !errors.Is(err, ErrHalted) {
		t.Fatalf("expected ErrHalted, got %v", err)
	}
	if rig2.Edges(2) == 0 {
		t.Error("expected X pulses before the halt on a descending move")
	}
	if rig2.Edges(4) != zEdges {
		t.Error("expected Z untouched until the horizontal phase completed")
	}
}

func TestHaltStopsMidMove(t *testing.T) {
	p, rig := newTestPlanner(t, &stubGuard{haltAfter: 100})
	err := p.Move(Target{X: 100, Y: 100}, 1500)
	if !errors.Is(err, ErrHalted) {
		t.Fatalf("expected ErrHalted, got %v", err)
	}
	if got := rig.Edges(2); got >= 8000 {
		t.Errorf("expected motion abandoned early, got %d pulses", got)
	}
	// Enable must be released after the abandoned move.
	if rig.PinState(8) {
		t.Error("expected driver enable released")
	}
	// Logical position still matches emitted pulses.
	gotX, _, _ := p.Steps()
	if gotX != int64(rig.Edges(2)) {
		t.Errorf("position %d disagrees with %d emitted pulses", gotX, rig.Edges(2))
	}
}

func TestMoveWhileHaltedRejected(t *testing.T) {
	p, rig := newTestPlanner(t, &stubGuard{haltAfter: 0})
	err := p.Move(Target{X: 10}, 1500)
	if !errors.Is(err, ErrHalted) {
		t.Fatalf("expected ErrHalted, got %v", err)
	}
	if rig.Edges(2) != 0 {
		t.Errorf("expected no pulses, got %d", rig.Edges(2))
	}
}

func TestFeedRateControlsPacing(t *testing.T) {
	p, rig := newTestPlanner(t, &stubGuard{haltAfter: -1})
	start := rig.Now()
	// 60 mm/min = 1 mm/s = 80 steps/s over 1 mm.
	if err := p.Move(Target{X: 1}, 60); err != nil {
		t.Fatal(err)
	}
	elapsed := rig.Now().Sub(start)
	if elapsed < time.Second {
		t.Errorf("expected at least 1s of virtual pacing, got %v", elapsed)
	}
}

func TestSetPosition(t *testing.T) {
	p, rig := newTestPlanner(t, &stubGuard{haltAfter: -1})
	p.SetPosition(Target{X: 16.564, Y: -4.908})
	gotX, gotY, _ := p.Steps()
	if gotX != 1325 || gotY != -393 {
		t.Errorf("expected (1325, -393), got (%d, %d)", gotX, gotY)
	}
	if rig.Edges(2)+rig.Edges(3) != 0 {
		t.Error("expected no physical motion from SetPosition")
	}
}
