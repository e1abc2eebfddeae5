package hal

import (
	"fmt"
	"sync"
	"time"
)

// SimRig is an in-memory implementation of GPIODriver, ServoDriver and
// Clock. It records every rising edge per pin so tests can count step
// pulses, lets tests script input pins, and advances a virtual clock
// instead of sleeping.
type SimRig struct {
	mu sync.Mutex

	outputs map[Pin]bool
	inputs  map[Pin]func() bool
	edges   map[Pin]int

	servoConfigured map[Pin]bool
	servoAngle      map[Pin]float64
	servoEnergized  map[Pin]bool

	now time.Time
}

// NewSimRig creates an empty simulated rig.
func NewSimRig() *SimRig {
	return &SimRig{
		outputs:         make(map[Pin]bool),
		inputs:          make(map[Pin]func() bool),
		edges:           make(map[Pin]int),
		servoConfigured: make(map[Pin]bool),
		servoAngle:      make(map[Pin]float64),
		servoEnergized:  make(map[Pin]bool),
		now:             time.Unix(0, 0),
	}
}

func (r *SimRig) ConfigureOutput(pin Pin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs[pin] = false
	return nil
}

func (r *SimRig) ConfigureInputPullUp(pin Pin) error {
	return nil
}

func (r *SimRig) SetPin(pin Pin, value bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.outputs[pin]; !ok {
		return fmt.Errorf("sim: pin %d not configured as output", pin)
	}
	if value && !r.outputs[pin] {
		r.edges[pin]++
	}
	r.outputs[pin] = value
	return nil
}

func (r *SimRig) ReadPin(pin Pin) bool {
	r.mu.Lock()
	fn := r.inputs[pin]
	r.mu.Unlock()
	if fn == nil {
		return false
	}
	return fn()
}

func (r *SimRig) ConfigureServo(pin Pin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servoConfigured[pin] = true
	return nil
}

func (r *SimRig) SetAngle(pin Pin, deg float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.servoConfigured[pin] {
		return fmt.Errorf("sim: pin %d not configured for servo", pin)
	}
	r.servoAngle[pin] = deg
	r.servoEnergized[pin] = true
	return nil
}

func (r *SimRig) Detach(pin Pin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servoEnergized[pin] = false
	return nil
}

func (r *SimRig) Now() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.now
}

// Sleep advances the virtual clock without blocking.
func (r *SimRig) Sleep(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = r.now.Add(d)
}

// ScriptInput installs a function providing the input state of a pin.
func (r *SimRig) ScriptInput(pin Pin, fn func() bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs[pin] = fn
}

// Edges returns the number of rising edges seen on an output pin.
func (r *SimRig) Edges(pin Pin) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.edges[pin]
}

// PinState returns the last driven level of an output pin.
func (r *SimRig) PinState(pin Pin) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outputs[pin]
}

// ServoAngle returns the last commanded servo angle on a pin.
func (r *SimRig) ServoAngle(pin Pin) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.servoAngle[pin]
}

// ServoEnergized reports whether the servo output on a pin is active.
func (r *SimRig) ServoEnergized(pin Pin) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.servoEnergized[pin]
}
