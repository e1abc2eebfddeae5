// Package safety implements the emergency-stop supervisor.
//
// The machine is either NORMAL or EMERGENCY_STOPPED. Every component
// that moves hardware consults the supervisor before acting, and the
// blocking step loops poll Halted at every micro-step so a stop takes
// effect within one pulse interval. There is no automatic recovery:
// only an explicit reset leaves the stopped state.
package safety

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/looplab/fsm"

	"github.com/MARCOVB5/autochess/log"
)

// Machine states.
const (
	StateNormal  = "normal"
	StateStopped = "emergency_stopped"
)

// Transition events.
const (
	EventStop  = "emergency_stop"
	EventReset = "reset"
)

// ErrEmergencyStopped is returned for commands rejected while stopped.
var ErrEmergencyStopped = errors.New("safety: emergency stopped")

// Halter is anything that can immediately stop its physical output:
// axis controllers abandon motion, the effector drops its outputs.
type Halter interface {
	Halt()
}

// Supervisor owns the system state. It is created once by the
// controller; nothing else mutates the state.
type Supervisor struct {
	machine *fsm.FSM
	halted  atomic.Bool
	halters []Halter
	logger  log.Logger
}

// New creates a Supervisor in the NORMAL state.
func New(logger log.Logger) *Supervisor {
	s := &Supervisor{logger: logger.WithName("safety")}

	s.machine = fsm.NewFSM(
		StateNormal,
		fsm.Events{
			{Name: EventStop, Src: []string{StateNormal, StateStopped}, Dst: StateStopped},
			{Name: EventReset, Src: []string{StateStopped}, Dst: StateNormal},
		},
		fsm.Callbacks{
			"enter_" + StateStopped: func(ctx context.Context, e *fsm.Event) {
				s.halted.Store(true)
				s.haltAll()
				s.logger.Warn("emergency stop engaged")
			},
			"enter_" + StateNormal: func(ctx context.Context, e *fsm.Event) {
				// Reset re-halts everything before resuming: any
				// residual motion state is discarded and outputs are
				// left in their safe inactive level.
				s.haltAll()
				s.halted.Store(false)
				s.logger.Info("emergency stop cleared")
			},
		},
	)

	return s
}

// RegisterHalter adds a component to be stopped on state transitions.
func (s *Supervisor) RegisterHalter(h Halter) {
	s.halters = append(s.halters, h)
}

func (s *Supervisor) haltAll() {
	for _, h := range s.halters {
		h.Halt()
	}
}

// PreHalt arms the halt flag without a state transition. The transport
// reader calls it the instant an emergency-stop line is framed, so step
// loops already in flight abort before the line reaches ordered
// dispatch; the dispatch then performs the real transition.
func (s *Supervisor) PreHalt() {
	s.halted.Store(true)
}

// EmergencyStop transitions NORMAL → EMERGENCY_STOPPED.
func (s *Supervisor) EmergencyStop() error {
	if s.machine.Is(StateStopped) {
		// Repeated M112 while stopped stays stopped; still re-halt.
		s.haltAll()
		return nil
	}
	if err := s.machine.Event(context.Background(), EventStop); err != nil {
		return fmt.Errorf("safety: stop transition: %w", err)
	}
	return nil
}

// Reset transitions EMERGENCY_STOPPED → NORMAL. Resetting while already
// normal is a no-op.
func (s *Supervisor) Reset() error {
	if s.machine.Is(StateNormal) {
		return nil
	}
	if err := s.machine.Event(context.Background(), EventReset); err != nil {
		return fmt.Errorf("safety: reset transition: %w", err)
	}
	return nil
}

// Halted reports the stop flag. Step loops read this between pulses;
// the atomic keeps that read cheap.
func (s *Supervisor) Halted() bool {
	return s.halted.Load()
}

// State returns the current state name.
func (s *Supervisor) State() string {
	return s.machine.Current()
}

// CheckOperational returns ErrEmergencyStopped when motion and
// actuation commands must be rejected.
func (s *Supervisor) CheckOperational() error {
	if s.machine.Is(StateStopped) {
		return ErrEmergencyStopped
	}
	return nil
}
