// Package pwm drives the three LED channels of an RGB strip through a PWM
// backend.
package pwm

import (
	"fmt"
	"sync"
)

// Channel is one of the three color channels.
type Channel int

const (
	Red Channel = iota
	Green
	Blue
)

// Channels lists every channel in wire order.
var Channels = [3]Channel{Red, Green, Blue}

func (c Channel) String() string {
	switch c {
	case Red:
		return "red"
	case Green:
		return "green"
	case Blue:
		return "blue"
	default:
		return fmt.Sprintf("Channel(%d)", int(c))
	}
}

// MinDutyCycle is the smallest duty cycle ever sent to a backend. Some PWM
// peripherals misbehave when a running channel is programmed to zero.
const MinDutyCycle = 1

// Backend is a raw PWM peripheral addressed by pin number. Implementations do
// not need to dedupe repeated calls; Controller does that.
type Backend interface {
	// SetRange sets the value that corresponds to a 100% duty cycle.
	SetRange(pin, max int) error
	// SetFrequency sets the PWM frequency in Hz.
	SetFrequency(pin, hz int) error
	// SetDutyCycle sets the duty cycle in [0, range].
	SetDutyCycle(pin, value int) error
	// Close leaves the outputs in a safe state.
	Close() error
}

// Pins maps each channel to a backend pin.
type Pins [3]int

// Controller wraps a Backend with per-channel bookkeeping: frequencies are only
// reprogrammed when they change and duty cycles are floored to MinDutyCycle.
type Controller struct {
	backend Backend
	pins    Pins

	mu    sync.Mutex
	rng   [3]int
	freqs [3]int // 0 means unknown
}

// NewController creates a new controller.
func NewController(backend Backend, pins Pins) *Controller {
	return &Controller{
		backend: backend,
		pins:    pins,
	}
}

// SetRange sets the maximum duty cycle value of a channel.
func (c *Controller) SetRange(ch Channel, max int) error {
	if max < 1 {
		return fmt.Errorf("invalid range %d for %s", max, ch)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.backend.SetRange(c.pins[ch], max); err != nil {
		return fmt.Errorf("failed to set %s range: %w", ch, err)
	}
	c.rng[ch] = max
	return nil
}

// SetFrequency sets the PWM frequency of a channel. The backend is only called
// when hz differs from the last frequency set.
func (c *Controller) SetFrequency(ch Channel, hz int) error {
	if hz < 1 {
		return fmt.Errorf("invalid frequency %d for %s", hz, ch)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.freqs[ch] == hz {
		return nil
	}
	if err := c.backend.SetFrequency(c.pins[ch], hz); err != nil {
		return fmt.Errorf("failed to set %s frequency: %w", ch, err)
	}
	c.freqs[ch] = hz
	return nil
}

// SetDutyCycle sets the duty cycle of a channel, clamped to
// [MinDutyCycle, range].
func (c *Controller) SetDutyCycle(ch Channel, value int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	value = max(value, MinDutyCycle)
	if c.rng[ch] > 0 {
		value = min(value, c.rng[ch])
	}

	if err := c.backend.SetDutyCycle(c.pins[ch], value); err != nil {
		return fmt.Errorf("failed to set %s duty cycle: %w", ch, err)
	}
	return nil
}

// Frequency returns the last frequency programmed on a channel, or 0.
func (c *Controller) Frequency(ch Channel) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.freqs[ch]
}

// Release forgets the programmed frequencies so that the next SetFrequency
// call always reaches the backend.
func (c *Controller) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.freqs = [3]int{}
}

// Close closes the backend.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.freqs = [3]int{}
	return c.backend.Close()
}
