// Package hal defines the hardware abstraction the firmware core drives.
// Platform code (a GPIO shield driver, or the simulated rig in this
// package) implements these interfaces; the core never touches hardware
// registers directly.
package hal

import "time"

// Pin identifies a hardware GPIO pin number.
type Pin uint32

// GPIODriver is the digital I/O interface used by steppers, the driver
// enable line, the electromagnet and the reference sensors.
type GPIODriver interface {
	// ConfigureOutput configures a pin as a digital output.
	ConfigureOutput(pin Pin) error

	// ConfigureInputPullUp configures a pin as an input with pull-up.
	ConfigureInputPullUp(pin Pin) error

	// SetPin drives the pin high (true) or low (false).
	SetPin(pin Pin, value bool) error

	// ReadPin returns the current input state of the pin.
	ReadPin(pin Pin) bool
}

// ServoDriver positions a hobby servo on a PWM-capable pin.
type ServoDriver interface {
	// ConfigureServo claims a pin for servo PWM output.
	ConfigureServo(pin Pin) error

	// SetAngle energizes the servo and commands the given angle.
	SetAngle(pin Pin, deg float64) error

	// Detach de-energizes the servo and forces the output inactive.
	Detach(pin Pin) error
}

// Clock abstracts time so the control loops can be exercised in tests
// without wall-clock delays.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// WallClock is the Clock used on real hardware.
type WallClock struct{}

func (WallClock) Now() time.Time        { return time.Now() }
func (WallClock) Sleep(d time.Duration) { time.Sleep(d) }
