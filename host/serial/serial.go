// Package serial opens the link between the host and the firmware.
package serial

import (
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"

	"github.com/MARCOVB5/autochess/config"
)

// Port represents the serial link. The abstraction keeps the host
// client testable against an in-memory implementation.
type Port interface {
	io.ReadWriteCloser
}

// Open opens the configured device. Reads time out rather than block
// forever so the client's reader can notice a closed link.
func Open(cfg config.SerialConfig) (Port, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("serial: no device configured")
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", cfg.Device, err)
	}
	return port, nil
}
