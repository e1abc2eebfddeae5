// Package planner executes linear moves.
//
// Motion policy: coordinated pulse interpolation. The two horizontal
// axes are interpolated together with an accumulator-free DDA test so a
// simultaneous X/Y command traces a best-effort straight line; the
// vertical axis runs as its own phase, ordered before the horizontal
// move when the target is higher and after it when lower, so the
// end-effector never drags across pieces at low height.
//
// Execution is blocking: on return every commanded axis position equals
// the rounded target and no partially-applied state is observable by
// the dispatcher. The emergency-stop flag is polled at every emitted
// micro-step, so a stop takes effect within one pulse interval even in
// the middle of an interpolated move.
//
// There is no travel-limit checking: an out-of-range target will
// overdrive the open-loop mechanism.
package planner

import (
	"errors"
	"fmt"
	"time"

	"github.com/MARCOVB5/autochess/config"
	"github.com/MARCOVB5/autochess/firmware/stepgen"
	"github.com/MARCOVB5/autochess/hal"
)

// ErrHalted is returned when motion is abandoned by an emergency stop.
var ErrHalted = errors.New("planner: motion halted")

// Guard exposes the supervisor's halt flag to the step loops.
type Guard interface {
	Halted() bool
}

// Target is an absolute machine position in millimeters.
type Target struct {
	X, Y, Z float64
}

// Planner owns the three axis steppers and the shared driver-enable
// output.
type Planner struct {
	cfg   config.MotionConfig
	x     *stepgen.Stepper
	y     *stepgen.Stepper
	z     *stepgen.Stepper
	gpio  hal.GPIODriver
	clock hal.Clock
	guard Guard
}

// New configures the enable output (released) and returns a planner.
func New(cfg config.MotionConfig, x, y, z *stepgen.Stepper, gpio hal.GPIODriver, clock hal.Clock, guard Guard) (*Planner, error) {
	if err := gpio.ConfigureOutput(hal.Pin(cfg.EnablePin)); err != nil {
		return nil, fmt.Errorf("planner: enable pin: %w", err)
	}
	p := &Planner{cfg: cfg, x: x, y: y, z: z, gpio: gpio, clock: clock, guard: guard}
	p.setEnable(false)
	return p, nil
}

// Position returns the current logical position in millimeters.
func (p *Planner) Position() Target {
	return Target{X: p.x.PositionMM(), Y: p.y.PositionMM(), Z: p.z.PositionMM()}
}

// Steps returns the current logical position in steps per axis.
func (p *Planner) Steps() (x, y, z int64) {
	return p.x.Position(), p.y.Position(), p.z.Position()
}

// SetPosition overwrites the logical position without motion (G92).
func (p *Planner) SetPosition(t Target) {
	p.x.SetPositionMM(t.X)
	p.y.SetPositionMM(t.Y)
	p.z.SetPositionMM(t.Z)
}

// Move executes a blocking linear move to the target at the given feed
// rate (mm/min; zero selects the deployment default).
func (p *Planner) Move(t Target, feed float64) error {
	if p.guard.Halted() {
		return ErrHalted
	}

	interval := p.stepInterval(feed, p.x)
	zInterval := p.stepInterval(feed, p.z)

	p.setEnable(true)
	err := func() error {
		raising := p.z.StepsFor(t.Z) > p.z.Position()
		if raising {
			if err := p.moveAxis(p.z, t.Z, zInterval); err != nil {
				return err
			}
		}
		if err := p.moveXY(t.X, t.Y, interval); err != nil {
			return err
		}
		if !raising {
			if err := p.moveAxis(p.z, t.Z, zInterval); err != nil {
				return err
			}
		}
		return nil
	}()
	p.release()
	return err
}

// MoveAxis executes a blocking single-axis move. Homing uses this for
// the initial vertical raise.
func (p *Planner) MoveAxis(s *stepgen.Stepper, targetMM float64, feed float64) error {
	if p.guard.Halted() {
		return ErrHalted
	}
	p.setEnable(true)
	err := p.moveAxis(s, targetMM, p.stepInterval(feed, s))
	p.release()
	return err
}

// Axis returns the stepper for an axis name, or nil.
func (p *Planner) Axis(name string) *stepgen.Stepper {
	switch name {
	case "x":
		return p.x
	case "y":
		return p.y
	case "z":
		return p.z
	}
	return nil
}

// SeekEndstop steps an axis toward decreasing position, one step at a
// time, until its reference sensor triggers or an emergency stop
// intervenes. The caller is responsible for re-declaring the logical
// position afterwards. There is no travel cap: a wired-but-broken
// sensor will overdrive the mechanism like any other out-of-range
// target.
func (p *Planner) SeekEndstop(s *stepgen.Stepper, feed float64) error {
	if !s.HasEndstop() {
		return fmt.Errorf("planner: axis %s has no reference sensor", s.Name())
	}
	interval := p.stepInterval(feed, s)
	p.setEnable(true)
	err := func() error {
		if err := s.SetDirection(-1); err != nil {
			return err
		}
		for !s.EndstopTriggered() {
			if p.guard.Halted() {
				return ErrHalted
			}
			if err := s.Step(); err != nil {
				return err
			}
			p.clock.Sleep(interval)
		}
		return nil
	}()
	p.release()
	return err
}

// Halt releases the driver-enable output. The step loops themselves
// stop through the guard; this forces the outputs to their inactive
// level immediately.
func (p *Planner) Halt() {
	p.setEnable(false)
}

// moveXY interpolates both horizontal axes with the larger absolute
// delta as the iteration count. An axis pulses on iteration i exactly
// when the line i*|d|/max crosses its next integer step.
func (p *Planner) moveXY(xMM, yMM float64, interval time.Duration) error {
	dx := p.x.StepsFor(xMM) - p.x.Position()
	dy := p.y.StepsFor(yMM) - p.y.Position()

	if err := p.x.SetDirection(sign(dx)); err != nil {
		return err
	}
	if err := p.y.SetDirection(sign(dy)); err != nil {
		return err
	}

	adx, ady := abs64(dx), abs64(dy)
	max := adx
	if ady > max {
		max = ady
	}

	var doneX, doneY int64
	for i := int64(0); i < max; i++ {
		if p.guard.Halted() {
			return ErrHalted
		}
		if (i+1)*adx > doneX*max {
			if err := p.x.Step(); err != nil {
				return err
			}
			doneX++
		}
		if (i+1)*ady > doneY*max {
			if err := p.y.Step(); err != nil {
				return err
			}
			doneY++
		}
		p.clock.Sleep(interval)
	}
	return nil
}

func (p *Planner) moveAxis(s *stepgen.Stepper, targetMM float64, interval time.Duration) error {
	delta := s.StepsFor(targetMM) - s.Position()
	if delta == 0 {
		return nil
	}
	if err := s.SetDirection(sign(delta)); err != nil {
		return err
	}
	for n := abs64(delta); n > 0; n-- {
		if p.guard.Halted() {
			return ErrHalted
		}
		if err := s.Step(); err != nil {
			return err
		}
		p.clock.Sleep(interval)
	}
	return nil
}

// stepInterval converts a feed rate in mm/min to the delay between
// pulses on the given axis.
func (p *Planner) stepInterval(feed float64, s *stepgen.Stepper) time.Duration {
	if feed <= 0 {
		feed = p.cfg.DefaultFeed
	}
	if p.cfg.MaxFeed > 0 && feed > p.cfg.MaxFeed {
		feed = p.cfg.MaxFeed
	}
	stepsPerSec := (feed / 60.0) * float64(s.StepsFor(1))
	if stepsPerSec <= 0 {
		return time.Millisecond
	}
	return time.Duration(float64(time.Second) / stepsPerSec)
}

// release holds the drivers energized for the settle delay, then
// de-asserts enable.
func (p *Planner) release() {
	p.clock.Sleep(p.cfg.SettleDelay)
	p.setEnable(false)
}

func (p *Planner) setEnable(on bool) {
	level := on
	if p.cfg.InvertEn {
		level = !level
	}
	p.gpio.SetPin(hal.Pin(p.cfg.EnablePin), level)
}

func sign(v int64) int64 {
	if v < 0 {
		return -1
	}
	return 1
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
