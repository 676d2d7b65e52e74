//go:build !linux

package gpio

import (
	"fmt"

	"glowd/internal/softpwm"
)

// Stub for non-Linux platforms.
func openGpiod(pin int) (softpwm.Pin, error) {
	return nil, fmt.Errorf("gpio: gpiod backend unsupported on this platform")
}
