package fader

import "time"

// Config holds the tunables of an Engine.
type Config struct {
	// Range is the maximum channel level. It also sets the PWM duty cycle
	// resolution.
	Range int
	// TickRate is the number of ramp steps per second.
	TickRate int
	// ContinuousThreshold and StaticThreshold are the minimum aggregate
	// channel change, as a fraction of Range, for SetTarget to accept a new
	// target in that mode.
	ContinuousThreshold float64
	StaticThreshold     float64
	// ProtectionWindow is how long the output has to stay constant before
	// the static PWM frequency is forced.
	ProtectionWindow time.Duration
	// ContinuousFrequency and StaticFrequency are the PWM frequencies in Hz
	// used for each mode.
	ContinuousFrequency int
	StaticFrequency     int
}

// MaxTickRate is the highest tick rate an engine runs at.
const MaxTickRate = 1000

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Range:               20000,
		TickRate:            200,
		ContinuousThreshold: 0.025,
		StaticThreshold:     0,
		ProtectionWindow:    180 * time.Second,
		ContinuousFrequency: 400,
		StaticFrequency:     2000,
	}
}

// normalize replaces unusable values with defaults.
func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.Range < 1 {
		c.Range = def.Range
	}
	if c.TickRate < 1 {
		c.TickRate = def.TickRate
	}
	c.TickRate = min(c.TickRate, MaxTickRate)
	if c.ContinuousThreshold < 0 {
		c.ContinuousThreshold = 0
	}
	if c.StaticThreshold < 0 {
		c.StaticThreshold = 0
	}
	if c.ProtectionWindow <= 0 {
		c.ProtectionWindow = def.ProtectionWindow
	}
	if c.ContinuousFrequency < 1 {
		c.ContinuousFrequency = def.ContinuousFrequency
	}
	if c.StaticFrequency < 1 {
		c.StaticFrequency = def.StaticFrequency
	}
	return c
}

func (c Config) threshold(mode Mode) float64 {
	if mode == Continuous {
		return c.ContinuousThreshold * float64(c.Range)
	}
	return c.StaticThreshold * float64(c.Range)
}

func (c Config) frequency(mode Mode) int {
	if mode == Continuous {
		return c.ContinuousFrequency
	}
	return c.StaticFrequency
}

// steps returns the number of ticks a ramp takes at the given update rate.
// The ramp finishes one tick before the next update is expected.
func (c Config) steps(rate int) int {
	return max(1, c.TickRate/max(1, rate)-1)
}
