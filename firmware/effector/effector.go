// Package effector controls the piece-manipulating end-effector: a
// servo-positioned arm and an electromagnet.
//
// The servo eases toward its target one bounded increment per scheduler
// tick instead of jumping. After sitting idle at the target past a
// timeout it is de-energized and its output forced inactive, trading a
// little reattach latency for less power draw and wear.
//
// The wire protocol overloads one numeric command between the two
// physical effectors: a reserved sentinel value means "engage magnet",
// everything else is a servo angle. That decision is made here, once,
// as a tagged decode; nothing downstream branches on the magic number.
package effector

import (
	"fmt"
	"time"

	"github.com/MARCOVB5/autochess/config"
	"github.com/MARCOVB5/autochess/hal"
	"github.com/MARCOVB5/autochess/log"
)

// CommandKind tags the decoded meaning of the numeric actuator command.
type CommandKind int

const (
	// KindSetAngle commands a servo target angle.
	KindSetAngle CommandKind = iota

	// KindEngageMagnet energizes the electromagnet.
	KindEngageMagnet
)

// Command is the decoded actuator command.
type Command struct {
	Kind  CommandKind
	Angle float64 // valid when Kind == KindSetAngle
}

// DecodeNumeric classifies the raw numeric value from the protocol.
func DecodeNumeric(value, sentinel float64) Command {
	if value == sentinel {
		return Command{Kind: KindEngageMagnet}
	}
	return Command{Kind: KindSetAngle, Angle: value}
}

// Effector owns the servo and magnet outputs.
type Effector struct {
	cfg    config.EffectorConfig
	servo  hal.ServoDriver
	gpio   hal.GPIODriver
	clock  hal.Clock
	logger log.Logger

	current    float64
	target     float64
	energized  bool
	magnetOn   bool
	lastChange time.Time
}

// New configures the servo and magnet outputs. Both start inactive at
// the rest angle.
func New(cfg config.EffectorConfig, servo hal.ServoDriver, gpio hal.GPIODriver, clock hal.Clock, logger log.Logger) (*Effector, error) {
	if err := servo.ConfigureServo(hal.Pin(cfg.ServoPin)); err != nil {
		return nil, fmt.Errorf("effector: servo pin: %w", err)
	}
	if err := gpio.ConfigureOutput(hal.Pin(cfg.MagnetPin)); err != nil {
		return nil, fmt.Errorf("effector: magnet pin: %w", err)
	}
	return &Effector{
		cfg:        cfg,
		servo:      servo,
		gpio:       gpio,
		clock:      clock,
		logger:     logger.WithName("effector"),
		current:    cfg.RestAngle,
		target:     cfg.RestAngle,
		lastChange: clock.Now(),
	}, nil
}

// Apply executes a decoded actuator command.
func (e *Effector) Apply(cmd Command) {
	switch cmd.Kind {
	case KindEngageMagnet:
		e.EngageMagnet()
	case KindSetAngle:
		e.SetTarget(cmd.Angle)
	}
}

// SetTarget commands a servo angle, clamped to the configured travel.
func (e *Effector) SetTarget(deg float64) {
	if deg < e.cfg.MinAngle {
		deg = e.cfg.MinAngle
	}
	if deg > e.cfg.MaxAngle {
		deg = e.cfg.MaxAngle
	}
	e.target = deg
	e.lastChange = e.clock.Now()
}

// EngageMagnet energizes the electromagnet.
func (e *Effector) EngageMagnet() {
	e.gpio.SetPin(hal.Pin(e.cfg.MagnetPin), true)
	e.magnetOn = true
	e.logger.Debug("magnet engaged")
}

// ReleaseMagnet de-energizes the electromagnet.
func (e *Effector) ReleaseMagnet() {
	e.gpio.SetPin(hal.Pin(e.cfg.MagnetPin), false)
	e.magnetOn = false
	e.logger.Debug("magnet released")
}

// Off returns the arm to the rest angle and releases the magnet (M5).
func (e *Effector) Off() {
	e.ReleaseMagnet()
	e.SetTarget(e.cfg.RestAngle)
}

// Tick performs exactly one easing increment. The controller calls
// this every loop iteration.
func (e *Effector) Tick() {
	if e.current == e.target {
		if e.energized && e.clock.Now().Sub(e.lastChange) >= e.cfg.IdleTimeout {
			e.servo.Detach(hal.Pin(e.cfg.ServoPin))
			e.energized = false
			e.logger.Debug("servo idle, de-energized")
		}
		return
	}

	if !e.energized {
		// First motion after idle: energize at the held position and
		// give the horn time to stabilize before easing away.
		e.servo.SetAngle(hal.Pin(e.cfg.ServoPin), e.current)
		e.energized = true
		e.clock.Sleep(e.cfg.AttachDelay)
	}

	delta := e.target - e.current
	if delta > e.cfg.MaxStepDeg {
		delta = e.cfg.MaxStepDeg
	} else if delta < -e.cfg.MaxStepDeg {
		delta = -e.cfg.MaxStepDeg
	}
	e.current += delta
	e.servo.SetAngle(hal.Pin(e.cfg.ServoPin), e.current)
	e.lastChange = e.clock.Now()
	e.clock.Sleep(e.cfg.TickInterval)
}

// Settled reports whether the arm has reached its target angle.
func (e *Effector) Settled() bool { return e.current == e.target }

// Halt forces both outputs to their safe inactive level immediately.
// The target collapses to the held angle so nothing resumes on reset.
func (e *Effector) Halt() {
	e.ReleaseMagnet()
	e.servo.Detach(hal.Pin(e.cfg.ServoPin))
	e.energized = false
	e.target = e.current
}

// Angle returns the current servo angle.
func (e *Effector) Angle() float64 { return e.current }

// Target returns the commanded servo angle.
func (e *Effector) Target() float64 { return e.target }

// Energized reports whether the servo output is active.
func (e *Effector) Energized() bool { return e.energized }

// MagnetOn reports whether the electromagnet is engaged.
func (e *Effector) MagnetOn() bool { return e.magnetOn }
