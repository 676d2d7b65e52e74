// Package gpio provides digital output pins for the software PWM engine,
// backed by either the Linux GPIO character device or the memory-mapped
// Raspberry Pi register interface.
package gpio

import (
	"fmt"

	"glowd/internal/softpwm"
)

// Backend names accepted by Open.
const (
	BackendGpiod = "gpiod"
	BackendRpio  = "rpio"
)

// Open acquires the given BCM GPIO as an exclusively owned digital output.
// An empty backend selects gpiod.
func Open(pin int, backend string) (softpwm.Pin, error) {
	switch backend {
	case "", BackendGpiod:
		return openGpiod(pin)
	case BackendRpio:
		return openRpio(pin)
	default:
		return nil, fmt.Errorf("gpio: unknown backend %q", backend)
	}
}
