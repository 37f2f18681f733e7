//go:build linux

package pwm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

// SysfsBase is where the kernel exposes PWM chips.
var SysfsBase = "/sys/class/pwm"

// SysfsBackend drives hardware PWM channels through /sys/class/pwm. Pins are
// channel numbers of a single pwmchip.
//
// On a Raspberry Pi the channels only show up once an overlay such as
// dtoverlay=pwm-2chan is enabled.
type SysfsBackend struct {
	chipPath string

	mu       sync.Mutex
	channels map[int]*sysfsChannel
}

type sysfsChannel struct {
	path     string
	periodNS uint64
	rng      int
	value    int
	enabled  bool
}

var _ Backend = (*SysfsBackend)(nil)

// OpenSysfs opens the named pwmchip (e.g. "pwmchip0"). An empty name picks
// the first chip that reports channels.
func OpenSysfs(chip string) (*SysfsBackend, error) {
	var chipPath string
	if chip != "" {
		chipPath = filepath.Join(SysfsBase, chip)
		if _, err := os.Stat(chipPath); err != nil {
			return nil, fmt.Errorf("pwm: %w", err)
		}
	} else {
		p, err := findPWMChip()
		if err != nil {
			return nil, err
		}
		chipPath = p
	}

	return &SysfsBackend{
		chipPath: chipPath,
		channels: make(map[int]*sysfsChannel),
	}, nil
}

func findPWMChip() (string, error) {
	entries, err := os.ReadDir(SysfsBase)
	if err != nil {
		return "", fmt.Errorf("pwm: read %s: %w", SysfsBase, err)
	}

	// pwmchipN entries are usually symlinks, so don't filter on IsDir.
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "pwmchip") {
			continue
		}
		chip := filepath.Join(SysfsBase, name)
		n, err := readInt(filepath.Join(chip, "npwm"))
		if err != nil || n <= 0 {
			continue
		}
		return chip, nil
	}

	return "", fmt.Errorf("pwm: no sysfs pwmchip found (is the pwm overlay enabled?)")
}

func (b *SysfsBackend) channel(pin int) (*sysfsChannel, error) {
	if ch, ok := b.channels[pin]; ok {
		return ch, nil
	}

	ch := &sysfsChannel{
		path: filepath.Join(b.chipPath, fmt.Sprintf("pwm%d", pin)),
	}
	if err := b.export(pin, ch.path); err != nil {
		return nil, err
	}

	b.channels[pin] = ch
	return ch, nil
}

func (b *SysfsBackend) export(pin int, path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := writeSysfs(filepath.Join(b.chipPath, "export"), strconv.Itoa(pin)); err != nil {
		// Someone else may have exported it in the meantime.
		if _, statErr := os.Stat(path); statErr == nil {
			return nil
		}
		return fmt.Errorf("pwm: export channel %d: %w", pin, err)
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("pwm: channel %d not created after export: %w", pin, err)
	}
	return nil
}

func (b *SysfsBackend) SetRange(pin, max int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, err := b.channel(pin)
	if err != nil {
		return err
	}
	ch.rng = max
	if ch.periodNS == 0 {
		return nil
	}
	return ch.writeDuty()
}

func (b *SysfsBackend) SetFrequency(pin, hz int) error {
	if hz <= 0 {
		return fmt.Errorf("pwm: invalid frequency %d", hz)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ch, err := b.channel(pin)
	if err != nil {
		return err
	}

	periodNS := uint64(1_000_000_000 / hz)
	if periodNS == 0 {
		periodNS = 1
	}

	// The kernel rejects a period shorter than the current duty cycle, so
	// zero the duty cycle first and restore it afterwards.
	if ch.periodNS != 0 {
		if err := ch.writeUint("duty_cycle", 0); err != nil {
			return err
		}
	}
	if err := ch.writeUint("period", periodNS); err != nil {
		return err
	}
	ch.periodNS = periodNS

	if err := ch.writeDuty(); err != nil {
		return err
	}
	return ch.enable()
}

func (b *SysfsBackend) SetDutyCycle(pin, value int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, err := b.channel(pin)
	if err != nil {
		return err
	}
	ch.value = value

	if ch.periodNS == 0 {
		// Nothing can be written until the frequency is known.
		return nil
	}
	if err := ch.writeDuty(); err != nil {
		return err
	}
	return ch.enable()
}

// Close turns every channel off and disables it.
func (b *SysfsBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for pin, ch := range b.channels {
		if ch.periodNS != 0 {
			if err := ch.writeUint("duty_cycle", 0); err != nil {
				errs = append(errs, err)
			}
		}
		if err := ch.writeBool("enable", false); err != nil {
			errs = append(errs, err)
		}
		delete(b.channels, pin)
	}
	return errors.Join(errs...)
}

func (ch *sysfsChannel) writeDuty() error {
	var duty uint64
	if ch.rng > 0 {
		value := min(max(ch.value, 0), ch.rng)
		duty = ch.periodNS * uint64(value) / uint64(ch.rng)
	}
	return ch.writeUint("duty_cycle", min(duty, ch.periodNS))
}

func (ch *sysfsChannel) enable() error {
	if ch.enabled {
		return nil
	}
	if err := ch.writeBool("enable", true); err != nil {
		return err
	}
	ch.enabled = true
	return nil
}

func (ch *sysfsChannel) writeUint(name string, v uint64) error {
	return writeSysfs(filepath.Join(ch.path, name), strconv.FormatUint(v, 10))
}

func (ch *sysfsChannel) writeBool(name string, v bool) error {
	val := "0"
	if v {
		val = "1"
	}
	return writeSysfs(filepath.Join(ch.path, name), val)
}

func writeSysfs(path string, value string) error {
	// Open without O_TRUNC/O_CREATE: some sysfs attributes reject them.
	// Right after an export udev may still be fixing permissions, so retry
	// EACCES/ENOENT for a short while.
	deadline := time.Now().Add(2 * time.Second)
	for {
		err := writeSysfsOnce(path, value)
		if err == nil {
			return nil
		}
		if time.Now().Before(deadline) && isRetryableSysfsErr(err) {
			time.Sleep(25 * time.Millisecond)
			continue
		}
		return fmt.Errorf("pwm: write %s: %w", path, err)
	}
}

func writeSysfsOnce(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	_, werr := f.WriteString(value)
	cerr := f.Close()
	return errors.Join(werr, cerr)
}

func isRetryableSysfsErr(err error) bool {
	return os.IsPermission(err) ||
		os.IsNotExist(err) ||
		errors.Is(err, syscall.EACCES) ||
		errors.Is(err, syscall.EPERM) ||
		errors.Is(err, syscall.ENOENT)
}

func readInt(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, fmt.Errorf("%s is empty", path)
	}
	return strconv.Atoi(s)
}
