package softpwm

import (
	"math"
	"runtime"
	"sync"
	"time"
)

// Pin is the digital output a channel drives. The channel owns its pin
// exclusively from New until Close; nothing else may write to it in between.
// Writes are expected to be synchronous.
type Pin interface {
	SetOutput() error
	High() error
	Low() error
	Close() error
}

// Attribute names used in Change records.
const (
	AttrFrequency = "frequency"
	AttrPeriod    = "period"
	AttrValue     = "value"
	AttrHighWidth = "high_width"
	AttrLowWidth  = "low_width"
)

// Change describes one committed parameter mutation. Attr names the changed
// attribute; the remaining fields are the channel state after the mutation,
// so handlers never need to call back into the channel.
type Change struct {
	Attr  string
	Freq  float64
	Value float64
	High  time.Duration
	Low   time.Duration
}

// DefaultFrequencyHz is used when a channel is constructed with a zero
// frequency.
const DefaultFrequencyHz = 100

// Test seam, mirrors time.Sleep.
var sleepFn = time.Sleep

// Config holds the initial parameters for a channel.
type Config struct {
	// FrequencyHz is the pulse frequency. Defaults to DefaultFrequencyHz.
	FrequencyHz float64
	// Value is the initial duty cycle in [0,1]. Defaults to 0 (pin low).
	Value float64
}

// Channel drives one digital output pin with a software-timed PWM signal.
//
// Frequency and value may be mutated at any time, including while the loop
// runs. A mutation takes effect at the next phase boundary: the loop copies
// the parameters it needs under the channel mutex at the start of each phase,
// so reads are never torn, but an in-flight phase wait is never shortened or
// lengthened.
type Channel struct {
	mu sync.Mutex

	pin    Pin
	freqHz float64
	value  float64
	high   time.Duration
	low    time.Duration

	state RunState
	stop  chan struct{}
	done  chan struct{}

	pulses  uint64
	lastErr error

	onChange []func(Change)
	onPulse  []func(uint64)
}

// New creates a channel owning pin. The pin is not touched until Start.
func New(pin Pin, cfg Config) (*Channel, error) {
	if pin == nil {
		return nil, ErrNilPin
	}
	if cfg.FrequencyHz == 0 {
		cfg.FrequencyHz = DefaultFrequencyHz
	}
	if !validFrequency(cfg.FrequencyHz) || !validValue(cfg.Value) {
		return nil, ErrInvalidParameter
	}

	c := &Channel{
		pin:    pin,
		freqHz: cfg.FrequencyHz,
		value:  cfg.Value,
		state:  StateCreated,
	}
	c.high, c.low = Phases(c.freqHz, c.value)
	return c, nil
}

func validFrequency(hz float64) bool {
	// NaN fails the comparison, so it is rejected here too.
	return hz > 0 && !math.IsInf(hz, 1)
}

func validValue(v float64) bool {
	return v >= 0 && v <= 1
}

// SetFrequency updates the pulse frequency and recomputes the phase widths.
// The running loop picks the new widths up at its next phase boundary.
func (c *Channel) SetFrequency(hz float64) error {
	if !validFrequency(hz) {
		return ErrInvalidParameter
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return ErrClosed
	}
	c.freqHz = hz
	c.high, c.low = Phases(c.freqHz, c.value)
	c.emitLocked(AttrFrequency, AttrPeriod, AttrHighWidth, AttrLowWidth)
	return nil
}

// SetValue updates the duty cycle and recomputes the phase widths. The
// running loop picks the new widths up at its next phase boundary.
func (c *Channel) SetValue(v float64) error {
	if !validValue(v) {
		return ErrInvalidParameter
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return ErrClosed
	}
	c.value = v
	c.high, c.low = Phases(c.freqHz, c.value)
	c.emitLocked(AttrValue, AttrHighWidth, AttrLowWidth)
	return nil
}

// OnChange registers fn for parameter-change records. Handlers run
// synchronously on the mutating goroutine, in mutation order, and must not
// call back into the channel.
func (c *Channel) OnChange(fn func(Change)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = append(c.onChange, fn)
}

// OnPulse registers fn to be called once per completed high+low cycle with
// the running pulse count. Handlers run on the loop goroutine; anything
// slow here adds jitter to the signal, and handlers must not call back into
// the channel.
func (c *Channel) OnPulse(fn func(uint64)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPulse = append(c.onPulse, fn)
}

func (c *Channel) emitLocked(attrs ...string) {
	if len(c.onChange) == 0 {
		return
	}
	for _, attr := range attrs {
		rec := Change{Attr: attr, Freq: c.freqHz, Value: c.value, High: c.high, Low: c.low}
		for _, fn := range c.onChange {
			fn(rec)
		}
	}
}

// Start puts the pin into output mode, drives it low (the idle default) and
// launches the toggle loop.
func (c *Channel) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateClosed:
		return ErrClosed
	case StateRunning, StateStopRequested:
		return ErrAlreadyRunning
	}

	if err := c.pin.SetOutput(); err != nil {
		return err
	}
	if err := c.pin.Low(); err != nil {
		return err
	}

	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.state = StateRunning
	go c.run(c.pin, c.stop, c.done)
	return nil
}

// Stop requests cooperative cancellation and blocks until the loop has
// exited. When Stop returns, no further pin writes occur and the pin is low.
// Stop on a channel that is not running is a no-op. The loop observes the
// request only at its two per-cycle checkpoints, so Stop can take up to the
// remainder of the current phase plus one more phase.
func (c *Channel) Stop() {
	c.mu.Lock()
	switch c.state {
	case StateRunning:
		c.state = StateStopRequested
		close(c.stop)
	case StateStopRequested:
		// Another Stop is in flight; wait for the same loop exit.
	default:
		c.mu.Unlock()
		return
	}
	done := c.done
	c.mu.Unlock()

	<-done

	c.mu.Lock()
	if c.state == StateStopRequested {
		c.state = StateStopped
	}
	c.mu.Unlock()
}

// Close stops the loop if it is running, then releases the pin. The pin is
// released exactly once; repeated Close is a no-op success. Close must not
// be called from an OnChange or OnPulse handler (it would deadlock waiting
// for the loop).
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	// Release strictly after the loop has exited so a closed pin is never
	// written to.
	c.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return nil
	}
	pin := c.pin
	c.pin = nil
	c.state = StateClosed
	if pin == nil {
		return nil
	}
	return pin.Close()
}

// Frequency returns the current pulse frequency in Hz.
func (c *Channel) Frequency() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.freqHz
}

// Value returns the current duty cycle in [0,1].
func (c *Channel) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// PulsePeriod returns the current full-cycle duration.
func (c *Channel) PulsePeriod() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.high + c.low
}

// Widths returns the current high and low phase durations.
func (c *Channel) Widths() (high, low time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.high, c.low
}

// State returns the channel's lifecycle state.
func (c *Channel) State() RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pulses returns the number of completed high+low cycles across all runs.
func (c *Channel) Pulses() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pulses
}

// LastLoopErr returns the most recent pin write error observed by the loop,
// if any. Write errors do not stop the loop.
func (c *Channel) LastLoopErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// run is the toggle loop. It takes its own copies of pin/stop/done so a
// concurrent Close (which nils the pin after the loop exits) can never race
// with it. The two sleeps are the only suspension points; cancellation is
// observed only at the two checkpoints before the pin writes.
func (c *Channel) run(pin Pin, stop <-chan struct{}, done chan<- struct{}) {
	// Pin the loop to an OS thread so the priority bump (Linux only)
	// applies to this loop alone. The thread is discarded on exit.
	runtime.LockOSThread()
	elevateLoopThread()

	defer func() {
		// Idle default: the pin ends up low once the loop stops toggling.
		c.recordWriteErr(pin.Low())
		close(done)
	}()

	for {
		select {
		case <-stop:
			return
		default:
		}
		value, width := c.phaseSnapshot(true)
		if value != 0 {
			// value == 0 means constant low; skipping the write avoids a
			// zero-width glitch pulse.
			c.recordWriteErr(pin.High())
		}
		sleepFn(width)

		select {
		case <-stop:
			return
		default:
		}
		value, width = c.phaseSnapshot(false)
		if value != 1 {
			// value == 1 means constant high; same glitch avoidance. The
			// loop still paces itself at the configured period so frequency
			// changes land on cycle boundaries.
			c.recordWriteErr(pin.Low())
		}
		sleepFn(width)

		c.completePulse()
	}
}

// phaseSnapshot returns the duty value and the width of the phase about to
// start, read atomically under the channel mutex.
func (c *Channel) phaseSnapshot(high bool) (float64, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if high {
		return c.value, c.high
	}
	return c.value, c.low
}

func (c *Channel) recordWriteErr(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

func (c *Channel) completePulse() {
	c.mu.Lock()
	c.pulses++
	n := c.pulses
	handlers := c.onPulse
	c.mu.Unlock()
	for _, fn := range handlers {
		fn(n)
	}
}
