package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dev.acmcsuf.com/christmas/lib/xcolor"
	"libdb.so/ledctl"

	"dev.acmcsuf.com/ambientd/pwm"
)

// RGBController is a controller for RGB LEDs.
type RGBController interface {
	SetRGBAt(i int, color ledctl.RGB)
	Flush() error
}

var ws281xConfig = ledctl.WS281xConfig{
	ColorOrder:   ledctl.BGROrder,
	ColorModel:   ledctl.RGBModel,
	PWMFrequency: 800000,
	DMAChannel:   10,
	GPIOPins:     []int{12},
}

// ws281xBackend paints a whole addressable strip with one color. Pins 0, 1
// and 2 are the red, green and blue components; the PWM frequency is fixed by
// the strip protocol and ignored.
type ws281xBackend struct {
	logger *slog.Logger
	pixels int

	drawCh chan struct{}
	ctrl   RGBController
	ctrlMu sync.Mutex
	rng    [3]int
	duty   [3]int
	stop   context.CancelFunc
}

var _ pwm.Backend = (*ws281xBackend)(nil)

func newWS281xBackend(ctx context.Context, pixels int, logger *slog.Logger) (*ws281xBackend, error) {
	cfg := ws281xConfig
	cfg.NumPixels = pixels

	ws281x, err := ledctl.NewWS281x(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create a WS281x controller: %v", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	b := &ws281xBackend{
		logger: logger,
		pixels: pixels,
		drawCh: make(chan struct{}, 1),
		ctrl:   ws281x,
		rng:    [3]int{255, 255, 255},
		stop:   cancel,
	}

	go b.start(ctx)
	return b, nil
}

func (b *ws281xBackend) start(ctx context.Context) {
	drawCh := b.drawCh

	frameTicker := time.NewTicker(time.Second / frameRate)
	defer frameTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-frameTicker.C:
			drawCh = b.drawCh
			continue
		case <-drawCh:
			drawCh = nil
		}

		b.ctrlMu.Lock()
		if err := b.ctrl.Flush(); err != nil {
			b.logger.Error(
				"error writing LED strip",
				"error", err)
		}
		b.ctrlMu.Unlock()
	}
}

func (b *ws281xBackend) SetRange(pin, max int) error {
	if pin < 0 || pin > 2 {
		return fmt.Errorf("ws281x has no pin %d", pin)
	}

	b.ctrlMu.Lock()
	defer b.ctrlMu.Unlock()

	b.rng[pin] = max
	return nil
}

func (b *ws281xBackend) SetFrequency(pin, hz int) error {
	return nil
}

func (b *ws281xBackend) SetDutyCycle(pin, value int) error {
	if pin < 0 || pin > 2 {
		return fmt.Errorf("ws281x has no pin %d", pin)
	}

	b.ctrlMu.Lock()
	defer b.ctrlMu.Unlock()

	b.duty[pin] = value
	b.paint()
	return nil
}

func (b *ws281xBackend) Close() error {
	b.ctrlMu.Lock()
	defer b.ctrlMu.Unlock()

	b.stop()
	b.duty = [3]int{}
	b.paint()
	return b.ctrl.Flush()
}

// paint must be called with ctrlMu held.
func (b *ws281xBackend) paint() {
	var packed uint32
	for i := range b.duty {
		v := uint32(min(255, max(0, b.duty[i]*255/max(1, b.rng[i]))))
		packed = packed<<8 | v
	}

	color := ledctl.RGB(xcolor.RGBFromUint(packed))
	for i := 0; i < b.pixels; i++ {
		b.ctrl.SetRGBAt(i, color)
	}

	select {
	case b.drawCh <- struct{}{}:
	default:
	}
}
