package softpwm

import (
	"math"
	"testing"
	"time"
)

func TestPhasesSumToPeriod(t *testing.T) {
	freqs := []float64{0.5, 1, 60, 100, 700, 1000, 12345}
	values := []float64{0, 0.1, 0.25, 0.5, 0.9, 1}
	for _, f := range freqs {
		for _, v := range values {
			high, low := Phases(f, v)
			if high < 0 || low < 0 {
				t.Errorf("Phases(%v, %v) = %v, %v: negative phase", f, v, high, low)
			}
			if high+low != Period(f) {
				t.Errorf("Phases(%v, %v): high+low = %v, want period %v", f, v, high+low, Period(f))
			}
		}
	}
}

func TestPhasesDutyRatio(t *testing.T) {
	for _, v := range []float64{0.1, 0.25, 0.5, 0.75, 0.9} {
		high, low := Phases(700, v)
		period := high + low
		got := float64(high) / float64(period)
		// The only rounding is truncating the high width to whole
		// nanoseconds.
		if math.Abs(got-v) > 2.0/float64(period) {
			t.Errorf("value %v: high/period = %v", v, got)
		}
	}
}

func TestPhases700HzHalf(t *testing.T) {
	if p := Period(700); p != 1428571*time.Nanosecond {
		t.Fatalf("period = %v, want 1.428571ms", p)
	}
	high, low := Phases(700, 0.5)
	if high != 714285*time.Nanosecond || low != 714286*time.Nanosecond {
		t.Fatalf("phases = %v, %v; want ~714.285us each", high, low)
	}
}

func TestPhases1kHzQuarter(t *testing.T) {
	high, low := Phases(1000, 0.25)
	if high != 250*time.Microsecond {
		t.Fatalf("high = %v, want 250us", high)
	}
	if low != 750*time.Microsecond {
		t.Fatalf("low = %v, want 750us", low)
	}
}

func TestPhasesExtremes(t *testing.T) {
	high, low := Phases(100, 0)
	if high != 0 || low != Period(100) {
		t.Fatalf("value 0: phases = %v, %v", high, low)
	}
	high, low = Phases(100, 1)
	if high != Period(100) || low != 0 {
		t.Fatalf("value 1: phases = %v, %v", high, low)
	}
}
