package anomaly

import (
	"fmt"
)

// Detector flags implausible meter reading values against a meter's recent
// history using configurable thresholds.
type Detector struct {
	spikeThreshold float64
	minDataPoints  int
}

// NewDetector creates a new detector. spikeThreshold is the multiple of the
// rolling average above which a value counts as a spike; minDataPoints is
// the minimum history length before spike detection kicks in.
func NewDetector(spikeThreshold float64, minDataPoints int) *Detector {
	return &Detector{
		spikeThreshold: spikeThreshold,
		minDataPoints:  minDataPoints,
	}
}

// Check reports whether the value is implausible given the meter's recent
// values, with a human-readable reason.
func (d *Detector) Check(value float64, recent []float64) (bool, string) {
	if value < 0 {
		return true, "negative reading value"
	}

	// Spike detection needs enough history to be meaningful.
	if len(recent) < d.minDataPoints {
		return false, ""
	}

	sum := 0.0
	for _, v := range recent {
		sum += v
	}
	average := sum / float64(len(recent))

	if average > 0 && value > d.spikeThreshold*average {
		return true, fmt.Sprintf("value %.2f exceeds %.1fx the rolling average %.2f",
			value, d.spikeThreshold, average)
	}

	return false, ""
}
