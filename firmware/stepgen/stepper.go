// Package stepgen drives a single stepper axis through the GPIO HAL.
//
// A Stepper is a passive primitive: it converts millimeters to step
// counts, holds the logical step position, and emits one step/direction
// pulse at a time. Pacing, interpolation and emergency-stop polling
// belong to the callers (planner, homing).
package stepgen

import (
	"fmt"
	"math"
	"time"

	"github.com/MARCOVB5/autochess/config"
	"github.com/MARCOVB5/autochess/hal"
)

// Step pulse width. Generous for any common driver (A4988, DRV8825).
const pulseWidth = 2 * time.Microsecond

// Stepper controls one axis.
type Stepper struct {
	name  string
	cfg   config.AxisConfig
	gpio  hal.GPIODriver
	clock hal.Clock

	position int64 // current position in steps
	dir      int64 // +1 or -1, matches the level on the dir pin
}

// New configures the axis pins and returns a stepper at position zero.
func New(name string, cfg config.AxisConfig, gpio hal.GPIODriver, clock hal.Clock) (*Stepper, error) {
	if cfg.StepsPerMM <= 0 {
		return nil, fmt.Errorf("stepgen: axis %s: steps-per-mm must be positive", name)
	}

	if err := gpio.ConfigureOutput(hal.Pin(cfg.StepPin)); err != nil {
		return nil, fmt.Errorf("stepgen: axis %s step pin: %w", name, err)
	}
	if err := gpio.ConfigureOutput(hal.Pin(cfg.DirPin)); err != nil {
		return nil, fmt.Errorf("stepgen: axis %s dir pin: %w", name, err)
	}
	if cfg.EndstopPin >= 0 {
		if err := gpio.ConfigureInputPullUp(hal.Pin(cfg.EndstopPin)); err != nil {
			return nil, fmt.Errorf("stepgen: axis %s endstop pin: %w", name, err)
		}
	}

	s := &Stepper{
		name:  name,
		cfg:   cfg,
		gpio:  gpio,
		clock: clock,
		dir:   1,
	}
	if err := s.SetDirection(1); err != nil {
		return nil, err
	}
	return s, nil
}

// Name returns the axis name ("x", "y", "z").
func (s *Stepper) Name() string { return s.name }

// Position returns the logical position in steps. Open loop: this
// tracks emitted pulses, not a measured location.
func (s *Stepper) Position() int64 { return s.position }

// PositionMM returns the logical position in millimeters.
func (s *Stepper) PositionMM() float64 {
	return float64(s.position) / s.cfg.StepsPerMM
}

// StepsFor converts a millimeter coordinate to a rounded step count.
func (s *Stepper) StepsFor(mm float64) int64 {
	return int64(math.Round(mm * s.cfg.StepsPerMM))
}

// SetPositionMM overwrites the logical position without motion (G92).
func (s *Stepper) SetPositionMM(mm float64) {
	s.position = s.StepsFor(mm)
}

// SetDirection latches the direction for subsequent steps: +1 toward
// increasing position, -1 toward decreasing.
func (s *Stepper) SetDirection(dir int64) error {
	if dir >= 0 {
		dir = 1
	} else {
		dir = -1
	}
	level := dir > 0
	if s.cfg.InvertDir {
		level = !level
	}
	if err := s.gpio.SetPin(hal.Pin(s.cfg.DirPin), level); err != nil {
		return fmt.Errorf("stepgen: axis %s dir: %w", s.name, err)
	}
	s.dir = dir
	return nil
}

// Step emits one pulse in the latched direction and advances the
// logical position by one step.
func (s *Stepper) Step() error {
	if err := s.gpio.SetPin(hal.Pin(s.cfg.StepPin), true); err != nil {
		return fmt.Errorf("stepgen: axis %s step: %w", s.name, err)
	}
	s.clock.Sleep(pulseWidth)
	if err := s.gpio.SetPin(hal.Pin(s.cfg.StepPin), false); err != nil {
		return fmt.Errorf("stepgen: axis %s step: %w", s.name, err)
	}
	s.position += s.dir
	return nil
}

// HasEndstop reports whether the axis has a reference sensor.
func (s *Stepper) HasEndstop() bool { return s.cfg.EndstopPin >= 0 }

// EndstopTriggered reads the reference sensor. The HAL normalizes
// polarity: true always means triggered.
func (s *Stepper) EndstopTriggered() bool {
	if !s.HasEndstop() {
		return false
	}
	return s.gpio.ReadPin(hal.Pin(s.cfg.EndstopPin))
}
