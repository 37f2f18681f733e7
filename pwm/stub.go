//go:build !linux

package pwm

import "fmt"

// OpenSysfs is unsupported outside of Linux.
func OpenSysfs(chip string) (Backend, error) {
	return nil, fmt.Errorf("pwm: sysfs pwm unsupported on this platform")
}

// OpenGPIOD returns a backend that fails every call outside of Linux.
func OpenGPIOD(consumer string) Backend {
	return unsupportedBackend{}
}

type unsupportedBackend struct{}

func (unsupportedBackend) SetRange(pin, max int) error {
	return fmt.Errorf("pwm: gpio unsupported on this platform")
}

func (unsupportedBackend) SetFrequency(pin, hz int) error {
	return fmt.Errorf("pwm: gpio unsupported on this platform")
}

func (unsupportedBackend) SetDutyCycle(pin, value int) error {
	return fmt.Errorf("pwm: gpio unsupported on this platform")
}

func (unsupportedBackend) Close() error { return nil }
