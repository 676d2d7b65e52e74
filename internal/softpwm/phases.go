// Package softpwm emulates pulse-width modulation on a plain digital output
// pin by toggling it high/low on a timed schedule. It is meant for pins (or
// platforms) without hardware PWM; when a hardware channel is available,
// prefer internal/hwpwm.
package softpwm

import "time"

// Period returns the full high+low cycle duration for the given frequency.
// Callers validate freqHz > 0.
func Period(freqHz float64) time.Duration {
	return time.Duration(float64(time.Second) / freqHz)
}

// Phases splits one period into its high and low phase durations for the
// given duty-cycle value in [0,1]. The low phase is derived by subtraction,
// so high+low always equals the period exactly at nanosecond resolution.
func Phases(freqHz, value float64) (high, low time.Duration) {
	period := Period(freqHz)
	high = time.Duration(float64(period) * value)
	low = period - high
	return high, low
}
