package softpwm

import "errors"

var (
	// ErrInvalidParameter rejects a frequency <= 0 or a duty-cycle value
	// outside [0,1]. The channel state is left unchanged.
	ErrInvalidParameter = errors.New("softpwm: invalid parameter")

	// ErrNilPin rejects channel construction without a pin.
	ErrNilPin = errors.New("softpwm: pin is required")

	// ErrAlreadyRunning rejects Start on a channel whose loop is active.
	ErrAlreadyRunning = errors.New("softpwm: already running")

	// ErrClosed rejects any operation after Close (repeat Close excepted).
	ErrClosed = errors.New("softpwm: channel closed")
)
