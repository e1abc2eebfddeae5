package hal

import (
	"testing"
	"time"
)

func TestSimRigCountsRisingEdges(t *testing.T) {
	rig := NewSimRig()
	if err := rig.ConfigureOutput(2); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		rig.SetPin(2, true)
		rig.SetPin(2, false)
	}
	// Holding high must not count extra edges.
	rig.SetPin(2, true)
	rig.SetPin(2, true)

	if got := rig.Edges(2); got != 6 {
		t.Errorf("expected 6 edges, got %d", got)
	}
}

func TestSimRigRejectsUnconfiguredOutput(t *testing.T) {
	rig := NewSimRig()
	if err := rig.SetPin(7, true); err == nil {
		t.Error("expected error writing to unconfigured pin")
	}
}

func TestSimRigScriptedInput(t *testing.T) {
	rig := NewSimRig()
	triggered := false
	rig.ScriptInput(9, func() bool { return triggered })

	if rig.ReadPin(9) {
		t.Error("expected pin 9 low")
	}
	triggered = true
	if !rig.ReadPin(9) {
		t.Error("expected pin 9 high")
	}
}

func TestSimRigVirtualClock(t *testing.T) {
	rig := NewSimRig()
	start := rig.Now()
	rig.Sleep(3 * time.Second)
	if got := rig.Now().Sub(start); got != 3*time.Second {
		t.Errorf("expected 3s elapsed, got %v", got)
	}
}

func TestSimRigServo(t *testing.T) {
	rig := NewSimRig()
	if err := rig.SetAngle(11, 25); err == nil {
		t.Error("expected error before ConfigureServo")
	}
	if err := rig.ConfigureServo(11); err != nil {
		t.Fatal(err)
	}
	if err := rig.SetAngle(11, 25); err != nil {
		t.Fatal(err)
	}
	if !rig.ServoEnergized(11) {
		t.Error("expected servo energized after SetAngle")
	}
	if rig.ServoAngle(11) != 25 {
		t.Errorf("expected angle 25, got %f", rig.ServoAngle(11))
	}
	rig.Detach(11)
	if rig.ServoEnergized(11) {
		t.Error("expected servo de-energized after Detach")
	}
}
