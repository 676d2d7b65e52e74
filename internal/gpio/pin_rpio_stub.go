//go:build !linux || (!arm && !arm64)

package gpio

import (
	"fmt"

	"glowd/internal/softpwm"
)

// Stub for platforms without the memory-mapped BCM register interface.
func openRpio(pin int) (softpwm.Pin, error) {
	return nil, fmt.Errorf("gpio: rpio backend unsupported on this platform")
}
