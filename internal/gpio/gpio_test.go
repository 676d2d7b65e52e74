package gpio

import (
	"strings"
	"testing"
)

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(17, "sysfs"); err == nil || !strings.Contains(err.Error(), "unknown backend") {
		t.Fatalf("err = %v, want unknown backend", err)
	}
}

func TestOpenInvalidPin(t *testing.T) {
	// Both backends reject the pin (or the platform) before touching
	// hardware.
	for _, backend := range []string{BackendGpiod, BackendRpio} {
		if _, err := Open(-1, backend); err == nil {
			t.Errorf("backend %q: expected error for pin -1", backend)
		}
	}
}
