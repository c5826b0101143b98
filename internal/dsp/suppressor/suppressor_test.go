package suppressor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTuningForKnownTiers(t *testing.T) {
	low := TuningFor(LevelLow)
	require.Equal(t, float32(24.0), low.AttenLimDB)

	aggressive := TuningFor(LevelAggressive)
	require.Equal(t, float32(70.0), aggressive.AttenLimDB)
	require.Equal(t, float32(-20.0), aggressive.MinDBThresh)
}

func TestTuningForUnknownDefaultsToBalanced(t *testing.T) {
	require.Equal(t, tuningTable[LevelBalanced], TuningFor(Level("bogus")))
}

func TestValidLevel(t *testing.T) {
	require.True(t, ValidLevel(LevelHigh))
	require.False(t, ValidLevel(Level("bogus")))
}

func TestWarmupDoesNotAffectRings(t *testing.T) {
	engine := NewStubEngine(2, 480)
	p := NewProcessor(engine)
	require.NoError(t, p.Warmup(WarmupBlocks))
	require.Equal(t, 0.0, p.lastLSNR)
	for _, r := range p.outputRings {
		require.Empty(t, r)
	}
}

func TestProcessPassesThroughOnSilenceWithGateClosed(t *testing.T) {
	engine := NewStubEngine(1, 480)
	p := NewProcessor(engine)
	require.NoError(t, p.Warmup(WarmupBlocks))

	silence := make([]float32, 480)
	var out []float32
	var err error
	for i := 0; i < 2000; i++ {
		out, err = p.Process(silence)
		require.NoError(t, err)
	}
	require.Less(t, p.GateGain(), 0.01)
	for _, v := range out {
		require.InDelta(t, 0.0, v, 1e-3)
	}
}

func TestProcessOpensGateOnLoudInput(t *testing.T) {
	engine := NewStubEngine(1, 480)
	p := NewProcessor(engine)

	loud := make([]float32, 480)
	for i := range loud {
		loud[i] = 0.5
	}
	for i := 0; i < 200; i++ {
		_, err := p.Process(loud)
		require.NoError(t, err)
	}
	require.Greater(t, p.GateGain(), 0.99)
}

func TestProcessHandlesArbitraryBlockSizes(t *testing.T) {
	engine := NewStubEngine(2, 480)
	p := NewProcessor(engine)

	// Push a block smaller than one hop; output should be the unchanged
	// input since no hop has completed yet.
	small := make([]float32, 2*100)
	for i := range small {
		small[i] = float32(i)
	}
	out, err := p.Process(small)
	require.NoError(t, err)
	require.Equal(t, small, out)
}
