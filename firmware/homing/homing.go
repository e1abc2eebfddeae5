// Package homing establishes the machine's logical zero.
//
// Sequence: raise the vertical axis to the safe transit height first so
// the effector clears every piece, then reference X, then Y. Axes with
// a sensor seek it one step at a time toward decreasing position; axes
// without one fall back to declaring the current physical position as
// the reference. After a successful run X and Y read zero and the
// vertical axis sits at the safe height, so homing is idempotent.
package homing

import (
	"fmt"

	"github.com/MARCOVB5/autochess/config"
	"github.com/MARCOVB5/autochess/firmware/planner"
	"github.com/MARCOVB5/autochess/firmware/stepgen"
	"github.com/MARCOVB5/autochess/log"
)

// Sequencer runs the homing procedure over the planner's primitives.
type Sequencer struct {
	planner    *planner.Planner
	safeHeight float64
	feed       float64
	logger     log.Logger
}

// New creates a Sequencer.
func New(p *planner.Planner, motion config.MotionConfig, board config.BoardConfig, logger log.Logger) *Sequencer {
	return &Sequencer{
		planner:    p,
		safeHeight: board.SafeHeight,
		feed:       motion.HomingFeed,
		logger:     logger.WithName("homing"),
	}
}

// Home runs the full sequence. On an emergency stop it returns
// planner.ErrHalted with whatever progress was made left as-is.
func (h *Sequencer) Home() error {
	z := h.planner.Axis("z")

	// Collision avoidance: clear the pieces before any horizontal
	// referencing. With no Z sensor the current logical height is all
	// we have; open loop, like everything else here.
	if err := h.planner.MoveAxis(z, h.safeHeight, h.feed); err != nil {
		return fmt.Errorf("homing: raise to safe height: %w", err)
	}

	for _, name := range []string{"x", "y"} {
		if err := h.reference(h.planner.Axis(name)); err != nil {
			return err
		}
	}

	if z.HasEndstop() {
		if err := h.planner.SeekEndstop(z, h.feed); err != nil {
			return fmt.Errorf("homing: axis z: %w", err)
		}
		z.SetPositionMM(0)
		if err := h.planner.MoveAxis(z, h.safeHeight, h.feed); err != nil {
			return fmt.Errorf("homing: re-raise: %w", err)
		}
	} else {
		z.SetPositionMM(h.safeHeight)
	}

	h.logger.Info("homing complete", "safeHeight", h.safeHeight)
	return nil
}

func (h *Sequencer) reference(s *stepgen.Stepper) error {
	if s.HasEndstop() {
		if err := h.planner.SeekEndstop(s, h.feed); err != nil {
			return fmt.Errorf("homing: axis %s: %w", s.Name(), err)
		}
	} else {
		h.logger.Debug("no reference sensor, declaring zero", "axis", s.Name())
	}
	s.SetPositionMM(0)
	return nil
}
