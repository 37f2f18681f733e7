//go:build linux

package main

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"

	"dev.acmcsuf.com/ambientd/config"
	"dev.acmcsuf.com/ambientd/pwm"
)

func TestSysfsDefaultPins(t *testing.T) {
	dir := t.TempDir()

	chip := filepath.Join(dir, "pwm", "pwmchip0")
	mustWrite(t, filepath.Join(chip, "npwm"), "3\n")
	mustWrite(t, filepath.Join(chip, "export"), "")
	for ch := 0; ch < 3; ch++ {
		for _, name := range []string{"period", "duty_cycle", "enable"} {
			mustWrite(t, filepath.Join(chip, "pwm"+strconv.Itoa(ch), name), "")
		}
	}

	old := pwm.SysfsBase
	pwm.SysfsBase = filepath.Join(dir, "pwm")
	t.Cleanup(func() { pwm.SysfsBase = old })

	store, err := config.Open(filepath.Join(dir, "ambient.cfg"))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Defaults(defaults); err != nil {
		t.Fatal(err)
	}

	pins := backendPins(store, "sysfs")
	assertEq(t, pwm.Pins{0, 1, 2}, pins)

	backend, err := pwm.OpenSysfs("")
	if err != nil {
		t.Fatal("OpenSysfs:", err)
	}

	ctrl := pwm.NewController(backend, pins)
	t.Cleanup(func() { ctrl.Close() })

	for _, ch := range pwm.Channels {
		if err := ctrl.SetRange(ch, 20000); err != nil {
			t.Fatalf("SetRange %s: %v", ch, err)
		}
		if err := ctrl.SetFrequency(ch, 400); err != nil {
			t.Fatalf("SetFrequency %s: %v", ch, err)
		}
		if err := ctrl.SetDutyCycle(ch, 10000); err != nil {
			t.Fatalf("SetDutyCycle %s: %v", ch, err)
		}
	}

	b, err := os.ReadFile(filepath.Join(chip, "pwm2", "duty_cycle"))
	if err != nil {
		t.Fatal(err)
	}
	// 400 Hz is a 2.5ms period, half of which is on.
	assertEq(t, "1250000", string(b))
}

func TestBackendPins(t *testing.T) {
	store, err := config.Open(filepath.Join(t.TempDir(), "ambient.cfg"))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Defaults(defaults); err != nil {
		t.Fatal(err)
	}

	assertEq(t, pwm.Pins{0, 1, 2}, backendPins(store, "sysfs"))
	assertEq(t, pwm.Pins{17, 22, 24}, backendPins(store, "gpiod"))
	assertEq(t, pwm.Pins{0, 1, 2}, backendPins(store, "ws281x"))
	assertEq(t, pwm.Pins{0, 1, 2}, backendPins(store, "memory"))
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func assertEq[T any](t *testing.T, expected, actual T, opts ...cmp.Option) {
	t.Helper()

	if diff := cmp.Diff(expected, actual, opts...); diff != "" {
		t.Errorf("unexpected diff (-want +got):\n%s", diff)
	}
}
