// Package fader implements the fade engine: it ramps three PWM channels from
// their current color towards a target color at a fixed tick rate.
package fader

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"dev.acmcsuf.com/ambientd/pwm"
)

// Driver is the PWM hardware used by the engine. *pwm.Controller implements
// it.
type Driver interface {
	// SetRange sets the maximum duty cycle value of a channel.
	SetRange(ch pwm.Channel, max int) error
	// SetFrequency sets the PWM frequency of a channel. Setting the same
	// frequency twice must be cheap.
	SetFrequency(ch pwm.Channel, hz int) error
	// SetDutyCycle sets the duty cycle of a channel.
	SetDutyCycle(ch pwm.Channel, value int) error
	// Release forgets any programmed frequency.
	Release()
}

var _ Driver = (*pwm.Controller)(nil)

// FadeState is a snapshot of the engine's ramp.
type FadeState struct {
	Start   Color
	Target  Color
	Current Color
	// Progress goes from 0 to 1 over StepsTotal ticks.
	Progress       float64
	StepsPerSecond int
	StepsTotal     int
	// Mode is the mode of the last accepted target.
	Mode Mode
	// Frequency is the PWM frequency preset the engine wants programmed.
	Frequency int
	// ConstantSince is when the output last changed.
	ConstantSince time.Time
}

// Held reports whether the ramp has reached its target.
func (s FadeState) Held() bool {
	return s.Progress >= 1
}

// Opts are options for an engine.
type Opts struct {
	Driver Driver
	Config Config
	Logger *slog.Logger
}

// Engine is the fade engine. All of its state is guarded by a single mutex
// that is never held across a Driver call.
type Engine struct {
	driver Driver
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	state   FadeState
	step    int
	written bool // output written since reaching the target

	// applied is only touched by the tick loop.
	applied int

	stop atomic.Bool
	dead atomic.Bool
	done chan struct{}
}

// New creates an engine holding all channels at their minimum and programs the
// channel ranges.
func New(opts Opts) (*Engine, error) {
	cfg := opts.Config.normalize()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	for _, ch := range pwm.Channels {
		if err := opts.Driver.SetRange(ch, cfg.Range); err != nil {
			return nil, fmt.Errorf("failed to set range: %w", err)
		}
	}

	e := &Engine{
		driver: opts.Driver,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		done:   make(chan struct{}),
	}
	e.state = FadeState{
		Progress:       1,
		StepsPerSecond: 1,
		StepsTotal:     1,
		Mode:           Static,
		Frequency:      cfg.StaticFrequency,
		ConstantSince:  e.now(),
	}

	return e, nil
}

// Config returns the normalized configuration of the engine.
func (e *Engine) Config() Config {
	return e.cfg
}

// SetTarget starts a ramp from the current output to c over roughly one
// update period of rate updates per second. It returns false and changes
// nothing if c is closer to the current target than the mode's threshold.
func (e *Engine) SetTarget(c Color, rate int, mode Mode) bool {
	target := c.Clamp(0, float64(e.cfg.Range))
	rate = max(1, rate)

	e.mu.Lock()

	if target.Distance(e.state.Target) < e.cfg.threshold(mode) {
		e.mu.Unlock()
		return false
	}

	from := e.state.Current
	e.state.Start = from
	e.state.Target = target
	e.state.Progress = 0
	e.state.StepsPerSecond = rate
	e.state.StepsTotal = e.cfg.steps(rate)
	e.state.Mode = mode
	e.state.Frequency = e.cfg.frequency(mode)
	e.state.ConstantSince = e.now()
	e.step = 0
	e.written = false

	e.mu.Unlock()

	e.logger.Debug(
		"new fade target",
		"from", from,
		"to", target,
		"rate", rate,
		"mode", mode)

	return true
}

// Current returns the current output color.
func (e *Engine) Current() Color {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state.Current
}

// Color returns the current output rescaled to [0, scale] and rounded.
func (e *Engine) Color(scale int) [3]int {
	c := e.Current()
	f := float64(scale) / float64(e.cfg.Range)
	return [3]int{
		int(math.Round(c.R * f)),
		int(math.Round(c.G * f)),
		int(math.Round(c.B * f)),
	}
}

// State returns a snapshot of the fade state.
func (e *Engine) State() FadeState {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

// Stop makes Run return at its next tick.
func (e *Engine) Stop() {
	e.stop.Store(true)
}

// Alive reports whether the engine is neither stopped nor exited.
func (e *Engine) Alive() bool {
	return !e.stop.Load() && !e.dead.Load()
}

// Done is closed once Run has returned. After that the engine never touches
// the Driver again.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Run runs the tick loop until Stop is called or ctx is done, in which case it
// returns nil. A Driver failure is returned as is; the hardware is then in an
// unknown state and the caller should not keep going. Run must be called at
// most once.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.done)
	defer e.dead.Store(true)
	defer e.driver.Release()

	ticker := time.NewTicker(time.Second / time.Duration(e.cfg.TickRate))
	defer ticker.Stop()

	for !e.stop.Load() {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if e.stop.Load() {
				return nil
			}
			if err := e.tick(e.now()); err != nil {
				e.dead.Store(true)
				return err
			}
		}
	}

	return nil
}

type tickOutput struct {
	duty      [3]int
	write     bool
	frequency int
	protected bool
}

// advance moves the ramp by one tick.
func (e *Engine) advance(now time.Time) tickOutput {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out tickOutput
	s := &e.state

	switch {
	case s.Progress < 1:
		e.step++
		s.Progress = math.Min(1, float64(e.step)/float64(s.StepsTotal))
		s.Current = s.Start.Lerp(s.Target, s.Progress)
		s.ConstantSince = now
		out.write = true
		e.written = s.Progress >= 1

	case !e.written:
		s.Current = s.Target
		out.write = true
		e.written = true

	case s.Frequency != e.cfg.StaticFrequency && now.Sub(s.ConstantSince) >= e.cfg.ProtectionWindow:
		// Flicker only matters while fading. A mid-range frequency held for
		// a long time is worse on the eyes.
		s.Frequency = e.cfg.StaticFrequency
		out.protected = true
	}

	rounded := s.Current.Clamp(1, float64(e.cfg.Range)).Round()
	out.duty = rounded
	out.frequency = s.Frequency
	return out
}

func (e *Engine) tick(now time.Time) error {
	out := e.advance(now)

	if out.protected {
		e.logger.Info(
			"output held constant, switching to static PWM frequency",
			"frequency", out.frequency,
			"window", e.cfg.ProtectionWindow)
	}

	if out.frequency != e.applied {
		for _, ch := range pwm.Channels {
			if err := e.driver.SetFrequency(ch, out.frequency); err != nil {
				return err
			}
		}
		e.applied = out.frequency
		out.write = true
	}

	if !out.write {
		return nil
	}

	for i, ch := range pwm.Channels {
		if err := e.driver.SetDutyCycle(ch, out.duty[i]); err != nil {
			return err
		}
	}

	return nil
}
