// Package agc implements the automatic gain control block: target-RMS
// gain tracking with pause detection and hold, a startup bypass window,
// and asymmetric attack/release smoothing.
package agc

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	// Target is the desired RMS level (linear amplitude).
	Target = 0.12
	// MinRMS floors the RMS used to compute desired gain, preventing a
	// near-silent block from requesting an enormous gain.
	MinRMS = 0.0005
	// MinGain and MaxGain bound the smoothed gain.
	MinGain = 0.5
	MaxGain = 3.0
	// PauseThreshold is the RMS below which a block is treated as a pause.
	PauseThreshold = 0.006
	// HoldBlocks is the number of blocks gain is held at unity after a pause.
	HoldBlocks = 20
	// AttackAlpha, ReleaseAlpha, PauseAlpha are the smoothing coefficients.
	AttackAlpha  = 0.3
	ReleaseAlpha = 0.08
	PauseAlpha   = 0.3
	// Clip bounds output sample magnitude after gain is applied.
	Clip = 0.98
	// StartupBypassMs is the duration, from session creation, during which
	// AGC holds gain at unity regardless of signal level.
	StartupBypassMs = 1500.0
)

// State holds the AGC's per-session mutable state.
type State struct {
	CurrentGain               float64
	PostPauseHoldBlocksRemain int
	StartupBypassMsRemaining  float64
}

// New returns a State with unity gain and a fresh startup bypass window.
func New() *State {
	return &State{CurrentGain: 1.0, StartupBypassMsRemaining: StartupBypassMs}
}

// Process applies AGC to samples in-place (interleaved, any channel count)
// and advances the gain state by one block of duration blockDurationMs.
func (s *State) Process(samples []float32, blockDurationMs float64) {
	if len(samples) == 0 {
		return
	}

	rms := RMS(samples)

	var desired, alpha float64
	switch {
	case s.StartupBypassMsRemaining > 0:
		s.StartupBypassMsRemaining -= blockDurationMs
		desired = 1.0
		alpha = 0 // gain is explicitly held, not smoothed, during bypass
		s.CurrentGain = 1.0
	case rms <= PauseThreshold:
		desired = 1.0
		alpha = PauseAlpha
		s.PostPauseHoldBlocksRemain = HoldBlocks
	case s.PostPauseHoldBlocksRemain > 0:
		desired = 1.0
		alpha = PauseAlpha
		s.PostPauseHoldBlocksRemain--
	default:
		r := rms
		if r < MinRMS {
			r = MinRMS
		}
		desired = clamp(Target/r, MinGain, MaxGain)
		if desired < s.CurrentGain {
			alpha = AttackAlpha
		} else {
			alpha = ReleaseAlpha
		}
	}

	if alpha > 0 {
		s.CurrentGain = s.CurrentGain*(1-alpha) + desired*alpha
	}

	gain := float32(s.CurrentGain)
	for i, v := range samples {
		out := v * gain
		if out > Clip {
			out = Clip
		} else if out < -Clip {
			out = -Clip
		}
		samples[i] = out
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RMS computes the root-mean-square of an interleaved float32 PCM block
// using gonum's float64 sum-of-squares for numerical stability.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	sq := make([]float64, len(samples))
	for i, s := range samples {
		sq[i] = float64(s) * float64(s)
	}
	return math.Sqrt(floats.Sum(sq) / float64(len(sq)))
}
