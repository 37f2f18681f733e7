package ambientd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dev.acmcsuf.com/ambientd/fader"
	"dev.acmcsuf.com/ambientd/session"
)

// restartDelay is how long the supervisor waits before recreating a stopped
// engine.
const restartDelay = 100 * time.Millisecond

// ControllerOpts are options for a controller.
type ControllerOpts struct {
	// Driver is the PWM hardware shared by every engine.
	Driver fader.Driver
	// Config is called every time an engine is created, so that restarting
	// picks up new settings. If nil, fader.DefaultConfig is used.
	Config func() fader.Config
	// Logger is the logger to use for the controller.
	Logger *slog.Logger
	// Metrics is optional.
	Metrics *Metrics
}

// ColorRequest is a request to fade to a new color.
type ColorRequest struct {
	Color fader.Color
	// Rate is the number of updates per second the source intends to send.
	Rate int
	Mode fader.Mode
	// Source identifies the sender for session arbitration.
	Source string
}

// Controller owns the fade engine and the session arbiter. It recreates the
// engine whenever it is found not running.
type Controller struct {
	opts    ControllerOpts
	arbiter *session.Arbiter

	// reqMu serializes color requests from admission to SetTarget.
	reqMu sync.Mutex

	mu     sync.Mutex
	engine *fader.Engine
	exits  chan error
}

// NewController creates a new controller. Its engine is created on first use.
func NewController(opts ControllerOpts) *Controller {
	if opts.Config == nil {
		opts.Config = fader.DefaultConfig
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Controller{
		opts:    opts,
		arbiter: session.NewArbiter(),
		exits:   make(chan error, 4),
	}
}

// Arbiter returns the session arbiter.
func (c *Controller) Arbiter() *session.Arbiter {
	return c.arbiter
}

// Engine returns the running engine, creating a fresh one if there is none.
func (c *Controller) Engine() (*fader.Engine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.engine != nil && c.engine.Alive() {
		return c.engine, nil
	}

	if c.engine != nil {
		c.opts.Logger.Warn(
			"fade engine not running, recreating it")

		// The old tick loop may be mid-sleep. It must be gone before another
		// engine writes to the same Driver.
		c.engine.Stop()
		<-c.engine.Done()
	}

	e, err := fader.New(fader.Opts{
		Driver: c.opts.Driver,
		Config: c.opts.Config(),
		Logger: c.opts.Logger.With("component", "fader"),
	})
	if err != nil {
		err = fmt.Errorf("failed to create fade engine: %w", err)
		c.reportExit(err)
		return nil, err
	}

	go func() { c.reportExit(e.Run(context.Background())) }()

	c.engine = e
	if c.opts.Metrics != nil {
		c.opts.Metrics.EngineStarts.Inc()
	}

	return e, nil
}

func (c *Controller) reportExit(err error) {
	select {
	case c.exits <- err:
	default:
	}
}

// SetColor runs a color request through the arbiter and, if admitted, hands
// it to the engine. It returns session.ErrFenced if the source has been
// replaced, and false if the engine ignored the color as too similar.
func (c *Controller) SetColor(req ColorRequest) (bool, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	if err := c.arbiter.Admit(req.Source, req.Mode); err != nil {
		if errors.Is(err, session.ErrFenced) {
			c.opts.Logger.Info(
				"rejecting replaced color source",
				"source", req.Source)
		}
		return false, err
	}

	e, err := c.Engine()
	if err != nil {
		return false, err
	}

	return e.SetTarget(req.Color, req.Rate, req.Mode), nil
}

// peekCurrent returns the output of the running engine without creating one.
// It is zero if there is none, which is also where a new engine starts.
func (c *Controller) peekCurrent() fader.Color {
	c.mu.Lock()
	e := c.engine
	c.mu.Unlock()

	if e == nil || !e.Alive() {
		return fader.Color{}
	}
	return e.Current()
}

// Color returns the current output scaled to [0, scale].
func (c *Controller) Color(scale int) ([3]int, error) {
	e, err := c.Engine()
	if err != nil {
		return [3]int{}, err
	}
	return e.Color(scale), nil
}

// Restart stops the engine. The supervisor, or the next request, creates a
// new one with the current configuration.
func (c *Controller) Restart() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.engine != nil {
		c.engine.Stop()
	}

	c.opts.Logger.Info(
		"fade engine restart requested")
}

// Run supervises the engine until ctx is done. It returns an error if the
// engine failed to drive the hardware, in which case the process should exit.
func (c *Controller) Run(ctx context.Context) error {
	if _, err := c.Engine(); err != nil {
		return err
	}

	defer func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		if c.engine != nil {
			c.engine.Stop()
			<-c.engine.Done()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-c.exits:
			if err != nil {
				return err
			}

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(restartDelay):
			}

			if _, err := c.Engine(); err != nil {
				return err
			}
		}
	}
}
