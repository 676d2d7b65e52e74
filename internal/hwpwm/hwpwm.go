// Package hwpwm drives a hardware PWM channel via /sys/class/pwm. When a
// pin maps onto a hardware channel this is preferred over the software
// engine in internal/softpwm; the toggling then costs no CPU and has no
// scheduler jitter.
//
// On Raspberry Pi a dtoverlay (e.g. pwm-2chan) is typically needed for the
// channels to appear under /sys/class/pwm.
package hwpwm

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"
)

var sysfsBase = "/sys/class/pwm"

// PWM is one exported sysfs PWM channel. It exposes the same dimmer surface
// as *softpwm.Channel so callers can mix the two per pin.
type PWM struct {
	mu sync.Mutex

	chipPath string // <base>/pwmchipN
	pwmPath  string // <base>/pwmchipN/pwmM
	channel  int

	periodNS uint64
	value    float64
	enabled  bool
	closed   bool
}

// Open exports the given channel on the named chip (e.g. "pwmchip0", 0)
// and leaves it disabled.
func Open(chip string, channel int) (*PWM, error) {
	if chip == "" {
		return nil, fmt.Errorf("hwpwm: chip name is required")
	}
	if channel < 0 {
		return nil, fmt.Errorf("hwpwm: invalid channel %d", channel)
	}

	chipPath := filepath.Join(sysfsBase, chip)
	if _, err := os.Stat(chipPath); err != nil {
		return nil, fmt.Errorf("hwpwm: %s: %w", chip, err)
	}

	p := &PWM{
		chipPath: chipPath,
		channel:  channel,
		pwmPath:  filepath.Join(chipPath, fmt.Sprintf("pwm%d", channel)),
	}
	if err := p.ensureExported(); err != nil {
		return nil, err
	}
	_ = p.writeBool("enable", false)
	return p, nil
}

func (p *PWM) ensureExported() error {
	if _, err := os.Stat(p.pwmPath); err == nil {
		return nil
	}
	exportPath := filepath.Join(p.chipPath, "export")
	if err := writeSysfs(exportPath, strconv.Itoa(p.channel)); err != nil {
		// Already exported by someone else is fine.
		if _, statErr := os.Stat(p.pwmPath); statErr == nil {
			return nil
		}
		return fmt.Errorf("hwpwm: export channel %d: %w", p.channel, err)
	}

	// Wait briefly for the sysfs node to appear.
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(p.pwmPath); err == nil {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := os.Stat(p.pwmPath); err != nil {
		return fmt.Errorf("hwpwm: pwm path not created after export: %w", err)
	}
	return nil
}

// SetFrequency reprograms the channel period. The sysfs interface requires
// the channel disabled while the period changes; a running channel is
// re-enabled afterwards.
func (p *PWM) SetFrequency(hz float64) error {
	if !(hz > 0) || math.IsInf(hz, 1) {
		return fmt.Errorf("hwpwm: invalid frequency %v", hz)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("hwpwm: channel closed")
	}

	periodNS := uint64(float64(time.Second) / hz)
	if periodNS == 0 {
		periodNS = 1
	}

	wasEnabled := p.enabled
	_ = p.writeBool("enable", false)
	p.enabled = false

	if err := p.writeUint("period", periodNS); err != nil {
		return err
	}
	p.periodNS = periodNS
	if err := p.applyValueLocked(); err != nil {
		return err
	}

	if wasEnabled {
		if err := p.writeBool("enable", true); err != nil {
			return err
		}
		p.enabled = true
	}
	return nil
}

// SetValue sets the duty cycle in [0,1].
func (p *PWM) SetValue(v float64) error {
	if v < 0 || v > 1 || math.IsNaN(v) {
		return fmt.Errorf("hwpwm: invalid value %v", v)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("hwpwm: channel closed")
	}
	p.value = v
	return p.applyValueLocked()
}

func (p *PWM) applyValueLocked() error {
	if p.periodNS == 0 {
		// Applied once the period is programmed.
		return nil
	}
	duty := uint64(math.Round(float64(p.periodNS) * p.value))
	if duty > p.periodNS {
		duty = p.periodNS
	}
	return p.writeUint("duty_cycle", duty)
}

// Start enables the channel output. A period must have been set first.
func (p *PWM) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("hwpwm: channel closed")
	}
	if p.periodNS == 0 {
		return fmt.Errorf("hwpwm: frequency not set")
	}
	if p.enabled {
		return nil
	}
	// Stop zeroes the duty register; restore it before enabling.
	if err := p.applyValueLocked(); err != nil {
		return err
	}
	if err := p.writeBool("enable", true); err != nil {
		return err
	}
	p.enabled = true
	return nil
}

// Stop drives the output low and disables the channel. Idempotent.
func (p *PWM) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || !p.enabled {
		return
	}
	_ = p.writeUint("duty_cycle", 0)
	_ = p.writeBool("enable", false)
	p.enabled = false
}

// Close disables the channel and unexports it (best-effort). Idempotent.
func (p *PWM) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	_ = p.writeUint("duty_cycle", 0)
	err := p.writeBool("enable", false)
	p.enabled = false
	_ = writeSysfs(filepath.Join(p.chipPath, "unexport"), strconv.Itoa(p.channel))
	return err
}

func (p *PWM) writeUint(name string, v uint64) error {
	return writeSysfs(filepath.Join(p.pwmPath, name), strconv.FormatUint(v, 10))
}

func (p *PWM) writeBool(name string, v bool) error {
	val := "0"
	if v {
		val = "1"
	}
	return writeSysfs(filepath.Join(p.pwmPath, name), val)
}

// writeSysfs writes one attribute value. It opens with bare O_WRONLY (some
// sysfs attributes reject truncation flags) and retries transient
// EACCES/EPERM/ENOENT: right after export, udev may still be adjusting
// permissions on the freshly created files.
func writeSysfs(path, value string) error {
	deadline := time.Now().Add(2 * time.Second)
	var lastErr error
	for {
		f, err := os.OpenFile(path, os.O_WRONLY, 0)
		if err != nil {
			lastErr = err
			if time.Now().Before(deadline) && isRetryableSysfsErr(err) {
				time.Sleep(25 * time.Millisecond)
				continue
			}
			return err
		}
		_, werr := f.WriteString(value)
		cerr := f.Close()
		if werr == nil && cerr == nil {
			return nil
		}
		if werr != nil {
			lastErr = werr
		} else {
			lastErr = cerr
		}
		if time.Now().Before(deadline) && isRetryableSysfsErr(lastErr) {
			time.Sleep(25 * time.Millisecond)
			continue
		}
		if werr != nil && cerr != nil {
			return errors.Join(werr, cerr)
		}
		if werr != nil {
			return werr
		}
		return cerr
	}
}

func isRetryableSysfsErr(err error) bool {
	return os.IsPermission(err) || os.IsNotExist(err) ||
		errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.ENOENT)
}
