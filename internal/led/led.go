// Package led runs an RGB LED over three independently dimmed channels and
// optionally "breathes" the overall brightness at a configurable rate.
package led

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"glowd/internal/softpwm"
)

// Dimmer is the per-channel brightness surface. Both *softpwm.Channel and
// *hwpwm.PWM satisfy it.
type Dimmer interface {
	SetFrequency(hz float64) error
	SetValue(v float64) error
	Start() error
	Stop()
	Close() error
}

// Optional surfaces the software engine offers beyond Dimmer.
type (
	pulseEmitter  interface{ OnPulse(func(uint64)) }
	changeEmitter interface{ OnChange(func(softpwm.Change)) }
)

var afterFn = time.After

const (
	defaultFrequencyHz = 100
	defaultBreatheHz   = 0.5
	defaultSteps       = 64
)

// Color is an 8-bit-per-component RGB color.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

type BreatheConfig struct {
	Enable bool
	// RateHz is full dark->bright->dark cycles per second.
	RateHz float64
	// Steps is the number of brightness steps per half cycle.
	Steps int
}

type Config struct {
	FrequencyHz float64
	Breathe     BreatheConfig
}

// ChannelStatus mirrors one channel's engine state. For software channels it
// is fed by the engine's change/pulse notifications; for hardware channels
// it reflects the last applied parameters.
type ChannelStatus struct {
	FrequencyHz float64 `json:"frequency_hz"`
	Value       float64 `json:"value"`
	HighWidth   string  `json:"high_width,omitempty"`
	LowWidth    string  `json:"low_width,omitempty"`
	Pulses      uint64  `json:"pulses,omitempty"`
}

type Snapshot struct {
	Running       bool                     `json:"running"`
	Color         Color                    `json:"color"`
	Breathe       bool                     `json:"breathe"`
	BreatheRateHz float64                  `json:"breathe_rate_hz"`
	FrequencyHz   float64                  `json:"frequency_hz"`
	Scale         float64                  `json:"scale"`
	Channels      map[string]ChannelStatus `json:"channels"`
	LastUpdateAt  time.Time                `json:"last_update_utc,omitempty"`
	LastError     string                   `json:"last_error,omitempty"`
}

// Controller owns the three channels for its lifetime; Close releases them.
type Controller struct {
	steps int

	mu        sync.RWMutex
	color     Color
	scale     float64 // current breathe brightness scale, 1 when breathe is off
	breatheOn bool
	rateHz    float64
	freqHz    float64
	running   bool
	released  bool
	chanStat  map[string]ChannelStatus
	lastErr   string
	updatedAt time.Time

	names    []string
	channels map[string]Dimmer
	reported map[string]bool // channels that self-report via change events

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
	reconfig chan struct{}
}

// New wires the three channels into a controller. The controller takes
// ownership; the channels are released on Close.
func New(red, green, blue Dimmer, cfg Config) (*Controller, error) {
	if red == nil || green == nil || blue == nil {
		return nil, fmt.Errorf("led: all three channels are required")
	}
	if cfg.FrequencyHz == 0 {
		cfg.FrequencyHz = defaultFrequencyHz
	}
	if cfg.FrequencyHz < 0 {
		return nil, fmt.Errorf("led: invalid frequency %v", cfg.FrequencyHz)
	}
	if cfg.Breathe.RateHz == 0 {
		cfg.Breathe.RateHz = defaultBreatheHz
	}
	if cfg.Breathe.RateHz < 0 {
		return nil, fmt.Errorf("led: invalid breathe rate %v", cfg.Breathe.RateHz)
	}
	if cfg.Breathe.Steps <= 0 {
		cfg.Breathe.Steps = defaultSteps
	}

	c := &Controller{
		steps:     cfg.Breathe.Steps,
		scale:     1,
		breatheOn: cfg.Breathe.Enable,
		rateHz:    cfg.Breathe.RateHz,
		freqHz:    cfg.FrequencyHz,
		chanStat:  make(map[string]ChannelStatus, 3),
		names:     []string{"red", "green", "blue"},
		channels:  map[string]Dimmer{"red": red, "green": green, "blue": blue},
		reported:  make(map[string]bool, 3),
		stopCh:    make(chan struct{}),
		reconfig:  make(chan struct{}, 1),
	}

	// Software channels report their committed state through the engine's
	// notification surface; hook it into the snapshot.
	for _, name := range c.names {
		name := name
		if ce, ok := c.channels[name].(changeEmitter); ok {
			c.reported[name] = true
			ce.OnChange(func(rec softpwm.Change) {
				c.mu.Lock()
				st := c.chanStat[name]
				st.FrequencyHz = rec.Freq
				st.Value = rec.Value
				st.HighWidth = rec.High.String()
				st.LowWidth = rec.Low.String()
				c.chanStat[name] = st
				c.mu.Unlock()
			})
		}
		if pe, ok := c.channels[name].(pulseEmitter); ok {
			pe.OnPulse(func(n uint64) {
				c.mu.Lock()
				st := c.chanStat[name]
				st.Pulses = n
				c.chanStat[name] = st
				c.mu.Unlock()
			})
		}
	}
	return c, nil
}

// Start configures and starts the three channels and launches the breathe
// loop. Non-blocking; the controller is shut down when ctx is canceled.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.RLock()
	freq := c.freqHz
	c.mu.RUnlock()

	started := make([]Dimmer, 0, len(c.names))
	for _, name := range c.names {
		d := c.channels[name]
		if err := d.SetFrequency(freq); err != nil {
			stopAll(started)
			return fmt.Errorf("led: %s channel frequency: %w", name, err)
		}
		if err := d.Start(); err != nil {
			stopAll(started)
			return fmt.Errorf("led: %s channel start: %w", name, err)
		}
		started = append(started, d)
	}

	c.mu.Lock()
	c.running = true
	c.updatedAt = time.Now().UTC()
	color := c.color
	scale := c.scale
	c.mu.Unlock()
	c.apply(color, scale)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.breatheLoop(ctx)
	}()

	// Release the channels if the runtime context is canceled.
	go func() {
		<-ctx.Done()
		c.Close()
	}()
	return nil
}

// SetColor updates the target color; the applied duty per channel is the
// component scaled by the current breathe brightness.
func (c *Controller) SetColor(col Color) error {
	c.mu.Lock()
	c.color = col
	scale := c.scale
	c.mu.Unlock()
	return c.apply(col, scale)
}

// SetBreathe enables or disables brightness modulation. rateHz is ignored
// when disabling.
func (c *Controller) SetBreathe(enable bool, rateHz float64) error {
	if enable && rateHz <= 0 {
		return fmt.Errorf("led: invalid breathe rate %v", rateHz)
	}

	c.mu.Lock()
	c.breatheOn = enable
	if enable {
		c.rateHz = rateHz
	}
	col := c.color
	var scale float64
	if !enable {
		c.scale = 1
		scale = 1
	} else {
		scale = c.scale
	}
	c.mu.Unlock()

	// Wake the loop so the new rate takes effect now rather than after the
	// next step.
	select {
	case c.reconfig <- struct{}{}:
	default:
	}

	if !enable {
		return c.apply(col, scale)
	}
	return nil
}

// SetFrequency reprograms the pulse frequency on all three channels.
func (c *Controller) SetFrequency(hz float64) error {
	if hz <= 0 {
		return fmt.Errorf("led: invalid frequency %v", hz)
	}
	var errs []error
	for _, name := range c.names {
		if err := c.channels[name].SetFrequency(hz); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	c.mu.Lock()
	c.freqHz = hz
	c.updatedAt = time.Now().UTC()
	c.mu.Unlock()
	return nil
}

func (c *Controller) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	channels := make(map[string]ChannelStatus, len(c.chanStat))
	for k, v := range c.chanStat {
		channels[k] = v
	}
	return Snapshot{
		Running:       c.running,
		Color:         c.color,
		Breathe:       c.breatheOn,
		BreatheRateHz: c.rateHz,
		FrequencyHz:   c.freqHz,
		Scale:         c.scale,
		Channels:      channels,
		LastUpdateAt:  c.updatedAt,
		LastError:     c.lastErr,
	}
}

// Close stops the breathe loop, then stops and releases the three channels.
// Idempotent.
func (c *Controller) Close() {
	if c == nil {
		return
	}
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()

	c.mu.Lock()
	released := c.released
	c.released = true
	c.running = false
	c.mu.Unlock()
	if released {
		return
	}
	for _, name := range c.names {
		d := c.channels[name]
		d.Stop()
		_ = d.Close()
	}
}

func stopAll(ds []Dimmer) {
	for _, d := range ds {
		d.Stop()
	}
}

func (c *Controller) breatheLoop(ctx context.Context) {
	phase := 0 // step index within the triangle wave, 0..2*steps-1
	for {
		c.mu.RLock()
		on := c.breatheOn
		rate := c.rateHz
		c.mu.RUnlock()

		if !on {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-c.reconfig:
				continue
			}
		}

		interval := time.Duration(float64(time.Second) / (rate * float64(2*c.steps)))
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-c.reconfig:
			continue
		case <-afterFn(interval):
		}

		phase = (phase + 1) % (2 * c.steps)
		scale := triangle(phase, c.steps)

		c.mu.Lock()
		if !c.breatheOn {
			c.mu.Unlock()
			continue
		}
		c.scale = scale
		col := c.color
		c.mu.Unlock()
		c.apply(col, scale)

		// If breathing was disabled while this step was applying, converge
		// back to full brightness instead of parking on a stale dim level.
		c.mu.Lock()
		on = c.breatheOn
		col = c.color
		c.mu.Unlock()
		if !on {
			c.apply(col, 1)
		}
	}
}

// triangle maps a step index to a 0->1->0 brightness ramp.
func triangle(phase, steps int) float64 {
	if phase <= steps {
		return float64(phase) / float64(steps)
	}
	return float64(2*steps-phase) / float64(steps)
}

func (c *Controller) apply(col Color, scale float64) error {
	var errs []error
	applied := make(map[string]float64, 3)
	for name, component := range map[string]uint8{"red": col.R, "green": col.G, "blue": col.B} {
		v := duty(component, scale)
		if err := c.channels[name].SetValue(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		applied[name] = v
	}
	err := errors.Join(errs...)

	c.mu.Lock()
	// Channels without a change-event surface (hardware PWM) get their
	// snapshot state from what was applied here.
	for name, v := range applied {
		if c.reported[name] {
			continue
		}
		st := c.chanStat[name]
		st.FrequencyHz = c.freqHz
		st.Value = v
		c.chanStat[name] = st
	}
	if err != nil {
		c.lastErr = err.Error()
	} else {
		c.lastErr = ""
	}
	c.updatedAt = time.Now().UTC()
	c.mu.Unlock()
	return err
}

func duty(component uint8, scale float64) float64 {
	v := float64(component) / 255.0 * scale
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
