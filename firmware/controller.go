// Package firmware wires the command interpreter, motion planner,
// end-effector, homing sequencer and safety supervisor into one
// controller driven by a line-based ASCII protocol.
//
// The controller is single-threaded: one scheduler loop dispatches a
// complete command to completion, then performs exactly one end-effector
// easing increment, then loops. All mutable machine state is owned by
// this object; the only cross-goroutine signal is the supervisor's
// atomic halt flag, armed by the transport reader the moment an
// emergency-stop line is framed so in-flight step loops stop without
// waiting for ordered dispatch.
package firmware

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/MARCOVB5/autochess/config"
	"github.com/MARCOVB5/autochess/firmware/board"
	"github.com/MARCOVB5/autochess/firmware/effector"
	"github.com/MARCOVB5/autochess/firmware/gcode"
	"github.com/MARCOVB5/autochess/firmware/homing"
	"github.com/MARCOVB5/autochess/firmware/planner"
	"github.com/MARCOVB5/autochess/firmware/safety"
	"github.com/MARCOVB5/autochess/firmware/stepgen"
	"github.com/MARCOVB5/autochess/hal"
	"github.com/MARCOVB5/autochess/log"
)

// LivenessToken is the fixed response to the liveness probe (M115).
const LivenessToken = "FIRMWARE autochess-cnc 1.0"

const lineBufferCap = 256

// Controller owns all machine state.
type Controller struct {
	cfg    *config.Config
	sup    *safety.Supervisor
	plan   *planner.Planner
	eff    *effector.Effector
	seq    *homing.Sequencer
	brd    *board.Board
	clock  hal.Clock
	logger log.Logger

	lineBuf []byte

	// trace is a test hook recording choreography phases.
	trace func(phase string)
}

// New builds a controller over the given hardware drivers.
func New(cfg *config.Config, gpio hal.GPIODriver, servo hal.ServoDriver, clock hal.Clock, logger log.Logger) (*Controller, error) {
	sup := safety.New(logger)

	steppers := map[string]*stepgen.Stepper{}
	for _, name := range []string{"x", "y", "z"} {
		s, err := stepgen.New(name, cfg.Axes[name], gpio, clock)
		if err != nil {
			return nil, err
		}
		steppers[name] = s
	}

	plan, err := planner.New(cfg.Motion, steppers["x"], steppers["y"], steppers["z"], gpio, clock, sup)
	if err != nil {
		return nil, err
	}

	eff, err := effector.New(cfg.Effector, servo, gpio, clock, logger)
	if err != nil {
		return nil, err
	}

	sup.RegisterHalter(plan)
	sup.RegisterHalter(eff)

	return &Controller{
		cfg:     cfg,
		sup:     sup,
		plan:    plan,
		eff:     eff,
		seq:     homing.New(plan, cfg.Motion, cfg.Board, logger),
		brd:     board.New(cfg.Board),
		clock:   clock,
		logger:  logger.WithName("controller"),
		lineBuf: make([]byte, 0, lineBufferCap),
	}, nil
}

// Run services a transport until it closes. A reader goroutine frames
// lines; the scheduler loop alternates command dispatch with effector
// easing increments.
func (c *Controller) Run(transport io.ReadWriter) error {
	lines := make(chan string, 32)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		buf := make([]byte, 64)
		pending := make([]byte, 0, lineBufferCap)
		for {
			n, err := transport.Read(buf)
			for _, b := range buf[:n] {
				if b != '\n' && b != '\r' {
					if len(pending) < lineBufferCap {
						pending = append(pending, b)
					}
					continue
				}
				line := strings.TrimSpace(string(pending))
				pending = pending[:0]
				if line == "" {
					continue
				}
				// Arm the halt flag as soon as an emergency stop is
				// framed; the line itself is still dispatched in order
				// for the state transition and the acknowledgment.
				if cmd := gcode.ParseLine(line); cmd != nil && cmd.Letter == 'M' && cmd.Number == 112 {
					c.sup.PreHalt()
				}
				lines <- line
			}
			if err != nil {
				if err != io.EOF {
					readErr <- err
				}
				return
			}
		}
	}()

	for {
		dispatched := false
		select {
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return fmt.Errorf("firmware: transport: %w", err)
				default:
					return nil
				}
			}
			c.HandleLine(line, transport)
			dispatched = true
		default:
		}

		c.eff.Tick()
		if !dispatched && c.eff.Settled() {
			// Nothing to ease and no input pending; don't spin.
			c.clock.Sleep(c.cfg.Effector.TickInterval)
		}
	}
}

// ProcessByte accumulates transport bytes and dispatches on the line
// terminator. Used by transports that deliver bytes one at a time.
func (c *Controller) ProcessByte(b byte, w io.Writer) {
	if b != '\n' && b != '\r' {
		if len(c.lineBuf) < lineBufferCap {
			c.lineBuf = append(c.lineBuf, b)
		}
		return
	}
	line := strings.TrimSpace(string(c.lineBuf))
	c.lineBuf = c.lineBuf[:0]
	if line != "" {
		c.HandleLine(line, w)
	}
}

// HandleLine dispatches one framed command line and writes the echo and
// the terminal acknowledgment. It never blocks on further input and
// never fails fatally: bad input degrades to an error acknowledgment.
func (c *Controller) HandleLine(line string, w io.Writer) {
	cmd := gcode.ParseLine(line)
	if cmd == nil {
		return
	}

	fmt.Fprintf(w, "echo: %s\n", describe(cmd))

	if err := c.execute(cmd, w); err != nil {
		c.logger.Warn("command rejected", "line", cmd.Raw, "reason", err.Error())
		fmt.Fprintf(w, "error:%s\n", err.Error())
		return
	}
	fmt.Fprintln(w, "ok")
}

func (c *Controller) execute(cmd *gcode.Command, w io.Writer) error {
	switch cmd.Letter {
	case 'G':
		return c.executeG(cmd)
	case 'M':
		return c.executeM(cmd, w)
	case 'S':
		return c.executeActuator(cmd.Value)
	}
	// Unknown keyword: acknowledged as a no-op, liveness over strictness.
	return nil
}

func (c *Controller) executeG(cmd *gcode.Command) error {
	switch cmd.Number {
	case 0, 1:
		return c.linearMove(cmd)
	case 28:
		if err := c.sup.CheckOperational(); err != nil {
			return err
		}
		return c.seq.Home()
	case 92:
		return c.setPosition(cmd)
	case 21, 90:
		// Unit and absolute-mode selectors from the host's init
		// sequence; always in effect here.
		return nil
	}
	return nil
}

func (c *Controller) executeM(cmd *gcode.Command, w io.Writer) error {
	switch cmd.Number {
	case 112:
		return c.sup.EmergencyStop()
	case 999:
		return c.sup.Reset()
	case 115:
		fmt.Fprintln(w, LivenessToken)
		return nil
	case 114:
		fmt.Fprintln(w, c.statusLine())
		return nil
	case 5:
		if err := c.sup.CheckOperational(); err != nil {
			return err
		}
		c.eff.Off()
		return nil
	case 700:
		return c.cellMove(cmd)
	}
	return nil
}

func (c *Controller) executeActuator(value float64) error {
	if err := c.sup.CheckOperational(); err != nil {
		return err
	}
	c.eff.Apply(effector.DecodeNumeric(value, c.cfg.Effector.MagnetSentinel))
	return nil
}

func (c *Controller) linearMove(cmd *gcode.Command) error {
	if err := c.sup.CheckOperational(); err != nil {
		return err
	}
	target := c.plan.Position()
	if cmd.HasParam('X') {
		target.X = cmd.GetParam('X', target.X)
	}
	if cmd.HasParam('Y') {
		target.Y = cmd.GetParam('Y', target.Y)
	}
	if cmd.HasParam('Z') {
		target.Z = cmd.GetParam('Z', target.Z)
	}
	return c.plan.Move(target, cmd.GetParam('F', 0))
}

func (c *Controller) setPosition(cmd *gcode.Command) error {
	if err := c.sup.CheckOperational(); err != nil {
		return err
	}
	pos := c.plan.Position()
	if cmd.HasParam('X') {
		pos.X = cmd.GetParam('X', pos.X)
	}
	if cmd.HasParam('Y') {
		pos.Y = cmd.GetParam('Y', pos.Y)
	}
	if cmd.HasParam('Z') {
		pos.Z = cmd.GetParam('Z', pos.Z)
	}
	c.plan.SetPosition(pos)
	return nil
}

// statusLine renders the structured single-line state dump.
func (c *Controller) statusLine() string {
	x, y, z := c.plan.Steps()
	state := "normal"
	if c.sup.State() == safety.StateStopped {
		state = "estop"
	}
	return fmt.Sprintf("X:%d Y:%d Z:%d A:%.1f servo:%s magnet:%s state:%s",
		x, y, z, c.eff.Angle(), onOff(c.eff.Energized()), onOff(c.eff.MagnetOn()), state)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

// describe renders the parsed command for the traceability echo.
func describe(cmd *gcode.Command) string {
	if cmd.Letter == 0 {
		return fmt.Sprintf("unknown %q", cmd.Raw)
	}

	var sb strings.Builder
	if cmd.Letter == 'S' {
		fmt.Fprintf(&sb, "S%g", cmd.Value)
	} else {
		fmt.Fprintf(&sb, "%c%d", cmd.Letter, cmd.Number)
	}

	letters := make([]byte, 0, len(cmd.Params))
	for letter := range cmd.Params {
		letters = append(letters, letter)
	}
	sort.Slice(letters, func(i, j int) bool { return letters[i] < letters[j] })
	for _, letter := range letters {
		fmt.Fprintf(&sb, " %c%g", letter, cmd.Params[letter])
	}
	return sb.String()
}
