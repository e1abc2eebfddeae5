// Package host implements the machine-side client of the firmware
// protocol: it frames commands, waits for acknowledgments and exposes
// the board-level operations a chess engine needs.
package host

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/MARCOVB5/autochess/config"
	"github.com/MARCOVB5/autochess/host/serial"
	"github.com/MARCOVB5/autochess/log"
)

const (
	// ackTimeout bounds commands that finish immediately.
	ackTimeout = 5 * time.Second

	// motionTimeout bounds homing and pick/place choreography, which
	// block until the mechanism physically arrives.
	motionTimeout = 120 * time.Second

	// settleDelay gives the firmware time to come up after the serial
	// port is opened (opening the port can reset the board).
	settleDelay = 2 * time.Second
)

// Response carries the payload lines received before the terminal
// acknowledgment (status dumps, the liveness token).
type Response struct {
	Payload []string
}

// Client drives the firmware over a serial link.
type Client struct {
	port   io.ReadWriteCloser
	lines  chan string
	logger log.Logger
}

// Connect opens the configured device, waits for the firmware to come
// up and runs the init sequence.
func Connect(cfg config.SerialConfig, logger log.Logger) (*Client, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	c := NewClient(port, logger)
	time.Sleep(settleDelay)
	if err := c.Init(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// NewClient wraps an already-open link. The caller still has to run
// Init before issuing motion.
func NewClient(port io.ReadWriteCloser, logger log.Logger) *Client {
	c := &Client{
		port:   port,
		lines:  make(chan string, 32),
		logger: logger.WithName("host"),
	}
	go c.readLoop()
	return c
}

// readLoop frames incoming lines. Zero-byte reads are serial-port read
// timeouts and are ignored; a read error ends the loop and unblocks
// any waiter.
func (c *Client) readLoop() {
	defer close(c.lines)
	buf := make([]byte, 256)
	var pending []byte
	for {
		n, err := c.port.Read(buf)
		for _, b := range buf[:n] {
			if b != '\n' && b != '\r' {
				pending = append(pending, b)
				continue
			}
			line := strings.TrimSpace(string(pending))
			pending = pending[:0]
			if line != "" {
				c.lines <- line
			}
		}
		if err != nil {
			return
		}
	}
}

// Send writes one command line and collects the response up to the
// terminal acknowledgment. An error acknowledgment from the firmware
// comes back as a Go error.
func (c *Client) Send(line string) (*Response, error) {
	return c.send(line, ackTimeout)
}

func (c *Client) send(line string, timeout time.Duration) (*Response, error) {
	c.logger.Debug("send", "line", line)
	if _, err := fmt.Fprintf(c.port, "%s\n", line); err != nil {
		return nil, fmt.Errorf("host: write %q: %w", line, err)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	resp := &Response{}
	for {
		select {
		case reply, ok := <-c.lines:
			if !ok {
				return nil, fmt.Errorf("host: link closed waiting for %q", line)
			}
			switch {
			case reply == "ok":
				return resp, nil
			case strings.HasPrefix(reply, "error:"):
				return nil, fmt.Errorf("host: %q rejected: %s", line, strings.TrimPrefix(reply, "error:"))
			case strings.HasPrefix(reply, "echo:"):
				// Traceability echo, not payload.
			default:
				resp.Payload = append(resp.Payload, reply)
			}
		case <-deadline.C:
			return nil, fmt.Errorf("host: timeout waiting for %q", line)
		}
	}
}

// Init puts the firmware into the expected protocol state: metric
// units, absolute coordinates, and the current pose declared as the
// origin.
func (c *Client) Init() error {
	for _, line := range []string{"G21", "G90", "G92 X0 Y0 Z0"} {
		if _, err := c.Send(line); err != nil {
			return err
		}
	}
	return nil
}

// Ping sends the liveness probe and returns the firmware banner.
func (c *Client) Ping() (string, error) {
	resp, err := c.Send("M115")
	if err != nil {
		return "", err
	}
	if len(resp.Payload) == 0 {
		return "", fmt.Errorf("host: liveness probe returned no banner")
	}
	return resp.Payload[0], nil
}

// Home runs the reference sequence and blocks until it completes.
func (c *Client) Home() error {
	_, err := c.send("G28", motionTimeout)
	return err
}

// Move commands an absolute linear move.
func (c *Client) Move(x, y, z, feed float64) error {
	line := fmt.Sprintf("G1 X%.3f Y%.3f Z%.3f", x, y, z)
	if feed > 0 {
		line += fmt.Sprintf(" F%.1f", feed)
	}
	_, err := c.send(line, motionTimeout)
	return err
}

// MovePiece transfers a piece between two cells. With capture set, the
// firmware parks the destination piece beside the board first.
func (c *Client) MovePiece(srcRow, srcCol, dstRow, dstCol int, capture bool) error {
	line := fmt.Sprintf("M700 I%d J%d K%d L%d", srcRow, srcCol, dstRow, dstCol)
	if capture {
		line += " C1"
	}
	_, err := c.send(line, motionTimeout)
	return err
}

// SetActuator commands a servo angle in degrees.
func (c *Client) SetActuator(deg float64) error {
	_, err := c.Send(fmt.Sprintf("S%g", deg))
	return err
}

// EngageMagnet energizes the electromagnet.
func (c *Client) EngageMagnet() error {
	_, err := c.Send("S255")
	return err
}

// ActuatorOff releases the magnet and parks the arm.
func (c *Client) ActuatorOff() error {
	_, err := c.Send("M5")
	return err
}

// EmergencyStop halts the machine immediately.
func (c *Client) EmergencyStop() error {
	_, err := c.Send("M112")
	return err
}

// Reset clears an emergency stop.
func (c *Client) Reset() error {
	_, err := c.Send("M999")
	return err
}

// Status returns the firmware's state dump line.
func (c *Client) Status() (string, error) {
	resp, err := c.Send("M114")
	if err != nil {
		return "", err
	}
	if len(resp.Payload) == 0 {
		return "", fmt.Errorf("host: status returned no payload")
	}
	return resp.Payload[0], nil
}

// Close tears down the link.
func (c *Client) Close() error {
	return c.port.Close()
}
