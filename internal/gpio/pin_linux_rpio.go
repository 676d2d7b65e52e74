//go:build linux && (arm || arm64)

package gpio

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"

	"glowd/internal/softpwm"
)

// The rpio backend memory-maps the BCM GPIO registers once per process;
// pins share that mapping, so opens/closes are refcounted.
var (
	rpioMu   sync.Mutex
	rpioRefs int
)

// openRpio acquires the BCM GPIO through /dev/gpiomem. This is the legacy
// Raspberry Pi path; it does not work on Pi 5.
func openRpio(pin int) (softpwm.Pin, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("gpio: invalid gpio pin %d", pin)
	}

	rpioMu.Lock()
	defer rpioMu.Unlock()
	if rpioRefs == 0 {
		if err := rpio.Open(); err != nil {
			return nil, fmt.Errorf("gpio: rpio open: %w", err)
		}
	}
	rpioRefs++
	return &rpioPin{pin: rpio.Pin(pin)}, nil
}

type rpioPin struct {
	mu     sync.Mutex
	pin    rpio.Pin
	closed bool
}

func (p *rpioPin) SetOutput() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("gpio: pin closed")
	}
	p.pin.Output()
	return nil
}

func (p *rpioPin) High() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("gpio: pin closed")
	}
	p.pin.High()
	return nil
}

func (p *rpioPin) Low() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("gpio: pin closed")
	}
	p.pin.Low()
	return nil
}

func (p *rpioPin) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.pin.Low()
	p.mu.Unlock()

	rpioMu.Lock()
	defer rpioMu.Unlock()
	rpioRefs--
	if rpioRefs == 0 {
		return rpio.Close()
	}
	return nil
}
