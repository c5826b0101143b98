package agc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func silentState() *State {
	s := New()
	s.StartupBypassMsRemaining = 0
	return s
}

func TestStartupBypassHoldsUnityGain(t *testing.T) {
	s := New()
	samples := make([]float32, 960)
	for i := range samples {
		samples[i] = 0.9
	}
	s.Process(samples, 20)
	require.InDelta(t, 1.0, s.CurrentGain, 1e-9)
	require.InDelta(t, StartupBypassMs-20, s.StartupBypassMsRemaining, 1e-9)
}

func TestPauseHoldsGainNearUnity(t *testing.T) {
	s := silentState()
	silence := make([]float32, 960)
	for i := 0; i < 5; i++ {
		s.Process(silence, 20)
	}
	require.InDelta(t, 1.0, s.CurrentGain, 0.05)
	require.Equal(t, HoldBlocks, s.PostPauseHoldBlocksRemain)
}

func TestGainConvergesTowardTarget(t *testing.T) {
	s := silentState()
	quiet := make([]float32, 960)
	// Run enough blocks past the pause hold window to reach steady state.
	// Process scales in place, so each block is refilled with fresh input.
	for i := 0; i < HoldBlocks+200; i++ {
		for j := range quiet {
			quiet[j] = 0.01
		}
		s.Process(quiet, 20)
	}
	require.Greater(t, s.CurrentGain, 1.0)
	require.LessOrEqual(t, s.CurrentGain, MaxGain)
}

// TestGainStaysWithinBounds checks the invariant that AGC current_gain
// stays in [0.5, 3.0] after every block, regardless of input.
func TestGainStaysWithinBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := silentState()
		blocks := rapid.IntRange(1, 50).Draw(t, "blocks")
		for b := 0; b < blocks; b++ {
			amp := float32(rapid.Float64Range(0, 1).Draw(t, "amp"))
			samples := make([]float32, 960)
			for i := range samples {
				samples[i] = amp
			}
			s.Process(samples, 20)
			if s.CurrentGain < MinGain-1e-9 || s.CurrentGain > MaxGain+1e-9 {
				t.Fatalf("gain %v out of bounds after block %d", s.CurrentGain, b)
			}
		}
	})
}

// TestOutputNeverExceedsClip checks the invariant that output samples'
// absolute value stays <= 0.98 when AGC is active.
func TestOutputNeverExceedsClip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := silentState()
		amp := float32(rapid.Float64Range(0, 5).Draw(t, "amp"))
		samples := make([]float32, 960)
		for i := range samples {
			samples[i] = amp
		}
		s.Process(samples, 20)
		for _, v := range samples {
			if math.Abs(float64(v)) > Clip+1e-6 {
				t.Fatalf("sample %v exceeds clip %v", v, Clip)
			}
		}
	})
}
