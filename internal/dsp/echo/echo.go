package echo

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	// MaxSubtraction bounds the single-tap subtraction coefficient so the
	// canceller cannot cancel talk-over near-end speech entirely.
	MaxSubtraction = 0.85
	// MinReferenceEnergy below which the block is skipped as
	// uninformative.
	MinReferenceEnergy = 1e-6
	// NearDominantRatio and NearLeadingRatio are the near/reference RMS
	// ratio thresholds at which subtraction is reduced because the
	// near-end signal appears to dominate.
	NearDominantRatio = 1.35
	NearLeadingRatio  = 1.1
)

// Ducking gain tiers, selected by how loud the reference is relative to the
// near-end signal.
const (
	DuckHeavy  = 0.55
	DuckMedium = 0.72
	DuckLight  = 0.86
	DuckNone   = 1.0
)

// Process subtracts ref from near in place using the adaptive single-tap
// subtraction-and-duck algorithm. near and ref must be equal length. It
// returns false (leaving near unmodified) when the reference block
// carries too little energy to be informative.
func Process(near, ref []float32) bool {
	if len(ref) == 0 || len(near) != len(ref) {
		return false
	}

	nearF := toFloat64(near)
	refF := toFloat64(ref)

	nearEnergy := floats.Dot(nearF, nearF)
	refEnergy := floats.Dot(refF, refF)
	if refEnergy <= MinReferenceEnergy {
		return false
	}
	dot := floats.Dot(nearF, refF)

	subtraction := clamp(dot/refEnergy, 0, MaxSubtraction)

	n := float64(len(near))
	nearRMS := math.Sqrt(nearEnergy / n)
	refRMS := math.Sqrt(refEnergy / n)

	ratio := nearRMS / (refRMS + 1e-6)
	switch {
	case ratio > NearDominantRatio:
		subtraction *= 0.5
	case ratio > NearLeadingRatio:
		subtraction *= 0.75
	}

	var ducking float64
	switch {
	case refRMS > 0.8*nearRMS:
		ducking = DuckHeavy
	case refRMS > 0.55*nearRMS:
		ducking = DuckMedium
	case refRMS > 0.35*nearRMS:
		ducking = DuckLight
	default:
		ducking = DuckNone
	}

	for i, v := range near {
		near[i] = float32((float64(v) - float64(ref[i])*subtraction) * ducking)
	}
	return true
}

func toFloat64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
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
