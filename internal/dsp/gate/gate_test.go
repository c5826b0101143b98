package gate

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestGateOpensAboveThreshold(t *testing.T) {
	s := New()
	for i := 0; i < 200; i++ {
		s.Update(10.0) // well above threshold
	}
	require.Greater(t, s.Gain, 0.99)
}

func TestGateClosesBelowThreshold(t *testing.T) {
	s := New()
	s.Gain = 1.0
	for i := 0; i < 2000; i++ {
		s.Update(-20.0)
	}
	require.Less(t, s.Gain, 0.01)
}

// TestGainStaysWithinUnitRange checks the invariant that gate gain stays
// in [0, 1] at all times.
func TestGainStaysWithinUnitRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := New()
		steps := rapid.IntRange(1, 500).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			lsnr := rapid.Float64Range(-60, 60).Draw(t, "lsnr")
			s.Update(lsnr)
			if s.Gain < 0 || s.Gain > 1 {
				t.Fatalf("gain %v out of [0,1]", s.Gain)
			}
		}
	})
}

func TestMonotoneTowardTargetUnderRepeatedLSNR(t *testing.T) {
	s := New()
	prev := s.Gain
	for i := 0; i < 50; i++ {
		g := s.Update(5.0)
		require.GreaterOrEqual(t, g, prev)
		prev = g
	}
}
