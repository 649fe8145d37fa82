package recite

import (
	"fmt"
	"math"
)

// RateSteps are the discrete playback rates offered in the player.
var RateSteps = []float64{0.5, 0.75, 1.0, 1.25, 1.5, 2.0}

const (
	// MinRate is the slowest supported rate.
	MinRate = 0.5
	// MaxRate is the fastest supported rate.
	MaxRate = 2.0
	// DefaultRate is normal speed.
	DefaultRate = 1.0
)

// RateController steps the playback rate through RateSteps.
type RateController struct {
	current float64
}

// NewRateController creates a controller at normal speed.
func NewRateController() *RateController {
	return &RateController{current: DefaultRate}
}

// Current returns the current rate.
func (rc *RateController) Current() float64 {
	return rc.current
}

// Set snaps rate to the nearest step and makes it current.
func (rc *RateController) Set(rate float64) error {
	if rate < MinRate || rate > MaxRate || math.IsNaN(rate) {
		return fmt.Errorf("%w: rate %.2f outside [%.2f, %.2f]", ErrInvalidConfig, rate, MinRate, MaxRate)
	}
	rc.current = nearestStep(rate)
	return nil
}

// Faster moves one step up and returns the new rate.
func (rc *RateController) Faster() float64 {
	for _, s := range RateSteps {
		if s > rc.current+0.001 {
			rc.current = s
			return s
		}
	}
	return rc.current
}

// Slower moves one step down and returns the new rate.
func (rc *RateController) Slower() float64 {
	for i := len(RateSteps) - 1; i >= 0; i-- {
		if RateSteps[i] < rc.current-0.001 {
			rc.current = RateSteps[i]
			return rc.current
		}
	}
	return rc.current
}

// String formats the rate for display, e.g. "1.25x".
func (rc *RateController) String() string {
	return FormatRate(rc.current)
}

// FormatRate formats a rate for display.
func FormatRate(rate float64) string {
	if rate == math.Trunc(rate) {
		return fmt.Sprintf("%.0fx", rate)
	}
	if rate*10 == math.Trunc(rate*10) {
		return fmt.Sprintf("%.1fx", rate)
	}
	return fmt.Sprintf("%.2fx", rate)
}

func nearestStep(rate float64) float64 {
	best := RateSteps[0]
	for _, s := range RateSteps[1:] {
		if math.Abs(s-rate) < math.Abs(best-rate) {
			best = s
		}
	}
	return best
}
