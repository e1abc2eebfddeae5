package effector

import (
	"testing"

	"github.com/MARCOVB5/autochess/config"
	"github.com/MARCOVB5/autochess/hal"
	"github.com/MARCOVB5/autochess/log"
)

func newTestEffector(t *testing.T) (*Effector, *hal.SimRig, config.EffectorConfig) {
	t.Helper()
	rig := hal.NewSimRig()
	cfg := config.Default().Effector
	e, err := New(cfg, rig, rig, rig, log.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return e, rig, cfg
}

func TestDecodeNumeric(t *testing.T) {
	tests := []struct {
		value, sentinel float64
		wantKind        CommandKind
		wantAngle       float64
	}{
		{25, 255, KindSetAngle, 25},
		{0, 255, KindSetAngle, 0},
		{255, 255, KindEngageMagnet, 0},
		{254, 255, KindSetAngle, 254},
	}
	for _, test := range tests {
		cmd := DecodeNumeric(test.value, test.sentinel)
		if cmd.Kind != test.wantKind {
			t.Errorf("DecodeNumeric(%f): kind %d, want %d", test.value, cmd.Kind, test.wantKind)
		}
		if cmd.Kind == KindSetAngle && cmd.Angle != test.wantAngle {
			t.Errorf("DecodeNumeric(%f): angle %f, want %f", test.value, cmd.Angle, test.wantAngle)
		}
	}
}

func TestEasingAdvancesBounded(t *testing.T) {
	e, _, cfg := newTestEffector(t)
	e.SetTarget(10)

	e.Tick()
	if got := e.Angle(); got != cfg.MaxStepDeg {
		t.Errorf("expected first increment of %f deg, got %f", cfg.MaxStepDeg, got)
	}
	if !e.Energized() {
		t.Error("expected servo energized after first increment")
	}

	ticks := 1
	for !e.Settled() && ticks < 100 {
		e.Tick()
		ticks++
	}
	if e.Angle() != 10 {
		t.Errorf("expected angle 10 after easing, got %f", e.Angle())
	}
	// 10 degrees at 2 deg/tick.
	if ticks != 5 {
		t.Errorf("expected 5 easing ticks, got %d", ticks)
	}
}

func TestFinalIncrementDoesNotOvershoot(t *testing.T) {
	e, _, _ := newTestEffector(t)
	e.SetTarget(3) // not a multiple of the 2-degree step
	for i := 0; i < 10; i++ {
		e.Tick()
	}
	if e.Angle() != 3 {
		t.Errorf("expected exact target 3, got %f", e.Angle())
	}
}

func TestIdleTimeoutDeEnergizes(t *testing.T) {
	e, rig, cfg := newTestEffector(t)
	e.SetTarget(4)
	for !e.Settled() {
		e.Tick()
	}
	if !e.Energized() {
		t.Fatal("expected servo energized while settling")
	}

	// Not yet idle long enough.
	e.Tick()
	if !e.Energized() {
		t.Error("expected servo still energized before the idle timeout")
	}

	rig.Sleep(cfg.IdleTimeout)
	e.Tick()
	if e.Energized() {
		t.Error("expected servo de-energized after the idle timeout")
	}
	if rig.ServoEnergized(hal.Pin(cfg.ServoPin)) {
		t.Error("expected servo output forced inactive")
	}
}

func TestReattachAfterIdle(t *testing.T) {
	e, rig, cfg := newTestEffector(t)
	e.SetTarget(4)
	for !e.Settled() {
		e.Tick()
	}
	rig.Sleep(cfg.IdleTimeout)
	e.Tick() // de-energizes

	before := rig.Now()
	e.SetTarget(8)
	e.Tick()
	if !e.Energized() {
		t.Error("expected servo re-energized on new motion")
	}
	// The one-time attach delay must have been taken.
	if rig.Now().Sub(before) < cfg.AttachDelay {
		t.Error("expected attach stabilization delay before easing")
	}
}

func TestMagnet(t *testing.T) {
	e, rig, cfg := newTestEffector(t)

	e.Apply(DecodeNumeric(cfg.MagnetSentinel, cfg.MagnetSentinel))
	if !e.MagnetOn() {
		t.Error("expected magnet engaged via sentinel")
	}
	if !rig.PinState(hal.Pin(cfg.MagnetPin)) {
		t.Error("expected magnet output high")
	}

	e.Off()
	if e.MagnetOn() {
		t.Error("expected magnet released by Off")
	}
	if e.Target() != cfg.RestAngle {
		t.Errorf("expected rest angle target %f, got %f", cfg.RestAngle, e.Target())
	}
}

func TestApplyAngleClamped(t *testing.T) {
	e, _, cfg := newTestEffector(t)
	e.Apply(Command{Kind: KindSetAngle, Angle: 500})
	if e.Target() != cfg.MaxAngle {
		t.Errorf("expected clamp to %f, got %f", cfg.MaxAngle, e.Target())
	}
	e.Apply(Command{Kind: KindSetAngle, Angle: -20})
	if e.Target() != cfg.MinAngle {
		t.Errorf("expected clamp to %f, got %f", cfg.MinAngle, e.Target())
	}
}

func TestHaltForcesOutputsOff(t *testing.T) {
	e, rig, cfg := newTestEffector(t)
	e.EngageMagnet()
	e.SetTarget(40)
	e.Tick()

	e.Halt()
	if e.MagnetOn() {
		t.Error("expected magnet off after halt")
	}
	if rig.PinState(hal.Pin(cfg.MagnetPin)) {
		t.Error("expected magnet output low after halt")
	}
	if e.Energized() {
		t.Error("expected servo de-energized after halt")
	}
	if e.Target() != e.Angle() {
		t.Error("expected target collapsed so motion does not resume")
	}

	// Nothing moves on subsequent ticks.
	angle := e.Angle()
	e.Tick()
	if e.Angle() != angle {
		t.Error("expected no easing after halt")
	}
}
