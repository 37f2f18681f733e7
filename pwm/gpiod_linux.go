//go:build linux

package pwm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// GPIODBackend switches plain GPIO lines through the GPIO character device.
// It is meant for strips switched by a transistor on a pin without hardware
// PWM: a channel is on while its duty cycle is at least half of its range.
// Frequencies are accepted and ignored.
type GPIODBackend struct {
	consumer string

	mu    sync.Mutex
	lines map[int]*gpiodLine
}

type gpiodLine struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
	rng  int
}

var _ Backend = (*GPIODBackend)(nil)

// OpenGPIOD creates a backend that requests BCM GPIO lines on first use.
func OpenGPIOD(consumer string) *GPIODBackend {
	return &GPIODBackend{
		consumer: consumer,
		lines:    make(map[int]*gpiodLine),
	}
}

func (b *GPIODBackend) line(pin int) (*gpiodLine, error) {
	if l, ok := b.lines[pin]; ok {
		return l, nil
	}
	if pin < 0 {
		return nil, fmt.Errorf("pwm: invalid gpio pin %d", pin)
	}

	// Header pins are named "GPIO18" etc. Depending on the board and kernel
	// they can live on any chip.
	lineName := fmt.Sprintf("GPIO%d", pin)

	chipCandidates := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "gpiochip") {
			chipCandidates = append(chipCandidates, filepath.Join("/dev", e.Name()))
		}
	}

	for _, chipPath := range chipCandidates {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(lineName)
		if err != nil {
			_ = chip.Close()
			continue
		}
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer(b.consumer))
		if err != nil {
			_ = chip.Close()
			continue
		}
		l := &gpiodLine{chip: chip, line: line}
		b.lines[pin] = l
		return l, nil
	}

	return nil, fmt.Errorf("pwm: gpio line %q not found (or busy)", lineName)
}

func (b *GPIODBackend) SetRange(pin, max int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	l, err := b.line(pin)
	if err != nil {
		return err
	}
	l.rng = max
	return nil
}

func (b *GPIODBackend) SetFrequency(pin, hz int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, err := b.line(pin)
	return err
}

func (b *GPIODBackend) SetDutyCycle(pin, value int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	l, err := b.line(pin)
	if err != nil {
		return err
	}

	v := 0
	if l.rng > 0 && 2*value >= l.rng {
		v = 1
	}
	return l.line.SetValue(v)
}

// Close switches every line off and releases it.
func (b *GPIODBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for pin, l := range b.lines {
		_ = l.line.SetValue(0)
		if err := l.line.Close(); err != nil {
			errs = append(errs, err)
		}
		_ = l.chip.Close()
		delete(b.lines, pin)
	}
	return errors.Join(errs...)
}
