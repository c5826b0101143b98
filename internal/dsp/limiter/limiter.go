// Package limiter implements the look-ahead-free peak limiter, applied
// only when the neural suppressor path is active.
package limiter

import "math"

const (
	// Threshold is the peak magnitude above which the limiter engages.
	Threshold = 0.95
	// AttackRetain and AttackNew are the one-pole coefficients used when
	// gain must fall (target_gain < current_gain).
	AttackRetain = 0.9792
	AttackNew    = 0.0208
	// ReleaseStep is the per-sample fractional recovery toward unity gain.
	ReleaseStep = 0.0002
)

// State holds the limiter's current gain, starting at unity.
type State struct {
	Gain float64
}

// New returns a limiter with unity gain.
func New() *State {
	return &State{Gain: 1.0}
}

// Process applies the limiter to samples in-place, sample by sample.
func (s *State) Process(samples []float32) {
	for i, v := range samples {
		mag := math.Abs(float64(v))
		target := 1.0
		if mag > Threshold {
			target = Threshold / mag
		}

		if target < s.Gain {
			s.Gain = s.Gain*AttackRetain + target*AttackNew
		} else {
			s.Gain = math.Min(s.Gain+(1-s.Gain)*ReleaseStep, 1.0)
		}

		samples[i] = float32(float64(v) * s.Gain)
	}
}
