package led

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"
)

type fakeDimmer struct {
	mu     sync.Mutex
	freqs  []float64
	values []float64
	starts int
	stops  int
	closes int
}

func (d *fakeDimmer) SetFrequency(hz float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.freqs = append(d.freqs, hz)
	return nil
}

func (d *fakeDimmer) SetValue(v float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.values = append(d.values, v)
	return nil
}

func (d *fakeDimmer) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.starts++
	return nil
}

func (d *fakeDimmer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops++
}

func (d *fakeDimmer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
	return nil
}

func (d *fakeDimmer) lastValue() (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.values) == 0 {
		return 0, false
	}
	return d.values[len(d.values)-1], true
}

func (d *fakeDimmer) allValues() []float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]float64, len(d.values))
	copy(out, d.values)
	return out
}

func (d *fakeDimmer) counts() (starts, stops, closes int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.starts, d.stops, d.closes
}

func newTestController(t *testing.T, cfg Config) (*Controller, *fakeDimmer, *fakeDimmer, *fakeDimmer) {
	t.Helper()
	r, g, b := &fakeDimmer{}, &fakeDimmer{}, &fakeDimmer{}
	c, err := New(r, g, b, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, r, g, b
}

func TestNewRequiresAllChannels(t *testing.T) {
	if _, err := New(&fakeDimmer{}, nil, &fakeDimmer{}, Config{}); err == nil {
		t.Fatal("expected error for missing channel")
	}
}

func TestStartConfiguresChannels(t *testing.T) {
	c, r, g, b := newTestController(t, Config{FrequencyHz: 200})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Close()

	for _, d := range []*fakeDimmer{r, g, b} {
		starts, _, _ := d.counts()
		if starts != 1 {
			t.Errorf("starts = %d, want 1", starts)
		}
		d.mu.Lock()
		freqs := d.freqs
		d.mu.Unlock()
		if len(freqs) == 0 || freqs[0] != 200 {
			t.Errorf("freqs = %v, want [200]", freqs)
		}
	}

	snap := c.Snapshot()
	if !snap.Running || snap.FrequencyHz != 200 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestSetColorMapsComponentsToDuty(t *testing.T) {
	c, r, g, b := newTestController(t, Config{})

	if err := c.SetColor(Color{R: 255, G: 128, B: 0}); err != nil {
		t.Fatalf("SetColor: %v", err)
	}

	if v, ok := r.lastValue(); !ok || v != 1 {
		t.Errorf("red duty = %v, want 1", v)
	}
	if v, ok := g.lastValue(); !ok || math.Abs(v-128.0/255.0) > 1e-9 {
		t.Errorf("green duty = %v, want ~0.502", v)
	}
	if v, ok := b.lastValue(); !ok || v != 0 {
		t.Errorf("blue duty = %v, want 0", v)
	}

	snap := c.Snapshot()
	if snap.Color != (Color{R: 255, G: 128, B: 0}) {
		t.Errorf("snapshot color = %+v", snap.Color)
	}
}

func TestBreatheModulatesBrightness(t *testing.T) {
	// Fast breathe so a short test sees a full ramp: 20 Hz over 5 steps
	// gives a 5ms step interval.
	c, r, _, _ := newTestController(t, Config{
		Breathe: BreatheConfig{Enable: true, RateHz: 20, Steps: 5},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.SetColor(Color{R: 255}); err != nil {
		t.Fatalf("SetColor: %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	c.Close()

	values := r.allValues()
	var sawLow, sawHigh bool
	for _, v := range values {
		if v <= 0.21 {
			sawLow = true
		}
		if v >= 0.79 {
			sawHigh = true
		}
	}
	if !sawLow || !sawHigh {
		t.Fatalf("breathing did not span brightness range, values = %v", values)
	}
}

func TestSetBreatheDisableRestoresFullBrightness(t *testing.T) {
	c, r, _, _ := newTestController(t, Config{
		Breathe: BreatheConfig{Enable: true, RateHz: 20, Steps: 5},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Close()

	if err := c.SetColor(Color{R: 255}); err != nil {
		t.Fatalf("SetColor: %v", err)
	}
	if err := c.SetBreathe(false, 0); err != nil {
		t.Fatalf("SetBreathe: %v", err)
	}

	// Let any in-flight breathe step land, then check steady state.
	time.Sleep(50 * time.Millisecond)
	if v, ok := r.lastValue(); !ok || v != 1 {
		t.Fatalf("red duty after disable = %v, want 1", v)
	}
	snap := c.Snapshot()
	if snap.Breathe || snap.Scale != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestSetBreatheRejectsBadRate(t *testing.T) {
	c, _, _, _ := newTestController(t, Config{})
	if err := c.SetBreathe(true, 0); err == nil {
		t.Fatal("expected error for rate 0")
	}
	if err := c.SetBreathe(true, -1); err == nil {
		t.Fatal("expected error for negative rate")
	}
}

func TestCloseReleasesChannelsOnce(t *testing.T) {
	c, r, g, b := newTestController(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	c.Close()
	c.Close()

	for _, d := range []*fakeDimmer{r, g, b} {
		_, stops, closes := d.counts()
		if stops != 1 || closes != 1 {
			t.Errorf("stops=%d closes=%d, want 1 each", stops, closes)
		}
	}
	if snap := c.Snapshot(); snap.Running {
		t.Error("still running after Close")
	}
}

func TestCloseWithoutStartReleasesChannels(t *testing.T) {
	c, r, _, _ := newTestController(t, Config{})
	c.Close()
	if _, _, closes := r.counts(); closes != 1 {
		t.Fatalf("closes = %d, want 1", closes)
	}
}
