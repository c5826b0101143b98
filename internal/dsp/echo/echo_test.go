package echo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRingCapacitySamples(t *testing.T) {
	require.Equal(t, int(48000*1.2)*2, RingCapacitySamples(48000, 2))
	require.Equal(t, 960*1, RingCapacitySamples(100, 1)) // floor of 960 frames
}

func TestRingTrimsFromHead(t *testing.T) {
	r := NewRing(48000, 1)
	cap := r.capacity
	big := make([]float32, cap+100)
	for i := range big {
		big[i] = float32(i)
	}
	r.Push(big[:cap], 1)
	r.Push(big[cap:], 1)
	require.LessOrEqual(t, r.Len(), cap)
}

func TestRingPushMonoToStereoDuplicates(t *testing.T) {
	r := NewRing(48000, 2)
	r.Push([]float32{1, 2, 3}, 1)
	require.Equal(t, []float32{1, 1, 2, 2, 3, 3}, r.buf)
}

func TestRingPushStereoToMonoAverages(t *testing.T) {
	r := NewRing(48000, 1)
	r.Push([]float32{1, 3, 2, 4}, 2)
	require.Equal(t, []float32{2, 3}, r.buf)
}

func TestRingOversizedPushDiscarded(t *testing.T) {
	r := NewRing(100, 1) // capacity = 960 frames
	huge := make([]float32, r.capacity+1)
	r.Push(huge, 1)
	require.Equal(t, 0, r.Len())
}

func TestWindowRequiresEnoughMaterial(t *testing.T) {
	r := NewRing(48000, 1)
	r.Push(make([]float32, 100), 1)
	_, ok := r.Window(960)
	require.False(t, ok)
}

func TestWindowReturnsDelayedSlice(t *testing.T) {
	r := NewRing(1000, 1) // 1000 Hz -> 80ms delay = 80 frames
	buf := make([]float32, 1000)
	for i := range buf {
		buf[i] = float32(i)
	}
	r.Push(buf, 1)
	win, ok := r.Window(50)
	require.True(t, ok)
	require.Len(t, win, 50)
	// window ends 80 samples before the tail.
	expectedStart := len(buf) - 80 - 50
	require.Equal(t, buf[expectedStart:expectedStart+50], win)
}

func TestProcessSkipsOnLowReferenceEnergy(t *testing.T) {
	near := []float32{0.5, 0.5, 0.5}
	ref := []float32{0, 0, 0}
	orig := append([]float32(nil), near...)
	ok := Process(near, ref)
	require.False(t, ok)
	require.Equal(t, orig, near)
}

func TestProcessReducesEnergyWhenNearEqualsReference(t *testing.T) {
	near := make([]float32, 480)
	ref := make([]float32, 480)
	for i := range near {
		v := float32(math.Sin(float64(i) * 0.1))
		near[i] = v
		ref[i] = v
	}
	inEnergy := energy(near)
	ok := Process(near, ref)
	require.True(t, ok)
	outEnergy := energy(near)
	require.Less(t, outEnergy, inEnergy)
}

func energy(samples []float32) float64 {
	var sum float64
	for _, v := range samples {
		sum += float64(v) * float64(v)
	}
	return sum
}

// TestSubtractionNeverExceedsBound checks that the subtraction
// coefficient derived internally stays within [0, 0.85] regardless of
// input: since ducking only attenuates, every output sample must stay
// within |near| + 0.85*|ref| of zero.
func TestSubtractionNeverExceedsBound(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 200).Draw(t, "n")
		near := make([]float32, n)
		ref := make([]float32, n)
		for i := 0; i < n; i++ {
			near[i] = float32(rapid.Float64Range(-1, 1).Draw(t, "near"))
			ref[i] = float32(rapid.Float64Range(-1, 1).Draw(t, "ref"))
		}
		orig := append([]float32(nil), near...)
		// Process must not panic and must leave finite, bounded output.
		Process(near, ref)
		for i, v := range near {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				t.Fatalf("non-finite output sample %v", v)
			}
			bound := math.Abs(float64(orig[i])) + MaxSubtraction*math.Abs(float64(ref[i])) + 1e-6
			if math.Abs(float64(v)) > bound {
				t.Fatalf("output sample %v exceeds bound %v", v, bound)
			}
		}
	})
}
