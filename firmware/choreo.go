package firmware

import (
	"errors"
	"fmt"

	"github.com/MARCOVB5/autochess/firmware/gcode"
	"github.com/MARCOVB5/autochess/firmware/planner"
)

// Choreography phase names, logged in order during a cell move.
const (
	phaseApproach  = "approach"
	phaseDescend   = "descend"
	phaseEngage    = "engage"
	phaseDwell     = "dwell"
	phaseAscend    = "ascend"
	phaseTransit   = "transit"
	phaseDisengage = "disengage"
)

var errMissingCellParams = errors.New("cell move needs I, J, K and L")

// cellMove executes the high-level pick/place command. I/J address the
// source cell (row/column), K/L the destination. C1 marks a capture:
// the piece on the destination is parked beside the board first, then
// the moving piece is carried in a second transfer.
func (c *Controller) cellMove(cmd *gcode.Command) error {
	if err := c.sup.CheckOperational(); err != nil {
		return err
	}
	for _, p := range []byte{'I', 'J', 'K', 'L'} {
		if !cmd.HasParam(p) {
			return errMissingCellParams
		}
	}

	srcRow, srcCol := int(cmd.GetParam('I', 0)), int(cmd.GetParam('J', 0))
	dstRow, dstCol := int(cmd.GetParam('K', 0)), int(cmd.GetParam('L', 0))
	if !c.brd.InRange(srcRow, srcCol) || !c.brd.InRange(dstRow, dstCol) {
		return fmt.Errorf("cell move outside %dx%d board", c.cfg.Board.Rows, c.cfg.Board.Cols)
	}

	dstX, dstY := c.brd.CellCenter(dstRow, dstCol)

	if cmd.GetParam('C', 0) != 0 {
		parkX, parkY := c.brd.NextParking(dstCol)
		c.logger.Info("capture: parking destination piece",
			"row", dstRow, "col", dstCol, "x", parkX, "y", parkY)
		if err := c.transfer(dstX, dstY, parkX, parkY); err != nil {
			return err
		}
	}

	srcX, srcY := c.brd.CellCenter(srcRow, srcCol)
	c.logger.Info("cell move",
		"from_row", srcRow, "from_col", srcCol, "to_row", dstRow, "to_col", dstCol)
	return c.transfer(srcX, srcY, dstX, dstY)
}

// transfer carries one piece between two XY positions: approach above
// the source, descend, engage the magnet, dwell, ascend, transit above
// the destination, descend, disengage, and come back up. Each motion
// phase goes through the planner, so an emergency stop aborts it
// mid-pulse; the abort leaves the magnet wherever the halt put it.
func (c *Controller) transfer(fromX, fromY, toX, toY float64) error {
	safe := c.cfg.Board.SafeHeight
	pickup := c.cfg.Board.PickupHeight
	feed := c.cfg.Motion.DefaultFeed

	c.phase(phaseApproach)
	if err := c.plan.Move(planner.Target{X: fromX, Y: fromY, Z: safe}, feed); err != nil {
		return err
	}
	c.phase(phaseDescend)
	if err := c.plan.Move(planner.Target{X: fromX, Y: fromY, Z: pickup}, feed); err != nil {
		return err
	}
	c.phase(phaseEngage)
	c.eff.EngageMagnet()
	c.phase(phaseDwell)
	c.clock.Sleep(c.cfg.Board.GrabDwell)
	c.phase(phaseAscend)
	if err := c.plan.Move(planner.Target{X: fromX, Y: fromY, Z: safe}, feed); err != nil {
		return err
	}
	c.phase(phaseTransit)
	if err := c.plan.Move(planner.Target{X: toX, Y: toY, Z: safe}, feed); err != nil {
		return err
	}
	c.phase(phaseDescend)
	if err := c.plan.Move(planner.Target{X: toX, Y: toY, Z: pickup}, feed); err != nil {
		return err
	}
	c.phase(phaseDisengage)
	c.eff.ReleaseMagnet()
	c.clock.Sleep(c.cfg.Board.ReleaseDwell)
	return c.plan.Move(planner.Target{X: toX, Y: toY, Z: safe}, feed)
}

func (c *Controller) phase(name string) {
	c.logger.Debug("phase", "name", name)
	if c.trace != nil {
		c.trace(name)
	}
}
