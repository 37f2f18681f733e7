//go:build linux

package pwm

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func fakePWMChip(t *testing.T, channels ...int) string {
	t.Helper()

	dir := t.TempDir()
	base := filepath.Join(dir, "pwm")
	if err := os.MkdirAll(base, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	// Create the chip somewhere else and symlink it, like the kernel does.
	realChip := filepath.Join(dir, "realchip0")
	mustWrite(t, filepath.Join(realChip, "npwm"), "3\n")
	mustWrite(t, filepath.Join(realChip, "export"), "")
	for _, ch := range channels {
		chDir := filepath.Join(realChip, "pwm"+strconv.Itoa(ch))
		for _, name := range []string{"period", "duty_cycle", "enable"} {
			mustWrite(t, filepath.Join(chDir, name), "")
		}
	}

	if err := os.Symlink(realChip, filepath.Join(base, "pwmchip0")); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	old := SysfsBase
	SysfsBase = base
	t.Cleanup(func() { SysfsBase = old })

	return filepath.Join(base, "pwmchip0")
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func readSysfsInt(t *testing.T, path string) uint64 {
	t.Helper()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return n
}

func TestFindPWMChipAcceptsSymlink(t *testing.T) {
	link := fakePWMChip(t, 0)

	chipPath, err := findPWMChip()
	if err != nil {
		t.Fatalf("findPWMChip: %v", err)
	}
	assertEq(t, link, chipPath)
}

func TestSysfsBackendScalesDutyToPeriod(t *testing.T) {
	chip := fakePWMChip(t, 1)

	b, err := OpenSysfs("pwmchip0")
	if err != nil {
		t.Fatalf("OpenSysfs: %v", err)
	}

	if err := b.SetRange(1, 100); err != nil {
		t.Fatalf("SetRange: %v", err)
	}
	if err := b.SetFrequency(1, 1000); err != nil {
		t.Fatalf("SetFrequency: %v", err)
	}
	if err := b.SetDutyCycle(1, 50); err != nil {
		t.Fatalf("SetDutyCycle: %v", err)
	}

	chDir := filepath.Join(chip, "pwm1")
	assertEq(t, uint64(1_000_000), readSysfsInt(t, filepath.Join(chDir, "period")))
	assertEq(t, uint64(500_000), readSysfsInt(t, filepath.Join(chDir, "duty_cycle")))
	assertEq(t, uint64(1), readSysfsInt(t, filepath.Join(chDir, "enable")))
}

func TestSysfsBackendDefersDutyUntilFrequency(t *testing.T) {
	chip := fakePWMChip(t, 0)

	b, err := OpenSysfs("")
	if err != nil {
		t.Fatalf("OpenSysfs: %v", err)
	}
	if err := b.SetRange(0, 100); err != nil {
		t.Fatalf("SetRange: %v", err)
	}
	if err := b.SetDutyCycle(0, 25); err != nil {
		t.Fatalf("SetDutyCycle: %v", err)
	}

	chDir := filepath.Join(chip, "pwm0")
	if b, _ := os.ReadFile(filepath.Join(chDir, "duty_cycle")); len(b) != 0 {
		t.Fatalf("duty_cycle written before period: %q", b)
	}

	if err := b.SetFrequency(0, 2000); err != nil {
		t.Fatalf("SetFrequency: %v", err)
	}
	assertEq(t, uint64(500_000), readSysfsInt(t, filepath.Join(chDir, "period")))
	assertEq(t, uint64(125_000), readSysfsInt(t, filepath.Join(chDir, "duty_cycle")))
}
