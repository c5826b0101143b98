// Package echo implements the reference-based echo subtraction block,
// together with the bounded interleaved reference ring buffer a
// voice-filter session accumulates loopback audio into.
package echo

import "math"

// RingCapacitySamples returns the ring's capacity in interleaved samples
// (frames * channels) for the given sample rate and channel count:
// capacity = max(sampleRate*1.2, 960) frames, times channels.
func RingCapacitySamples(sampleRate, channels int) int {
	frames := int(math.Max(float64(sampleRate)*1.2, 960))
	return frames * channels
}

// Ring is a bounded interleaved queue of reference PCM samples. It is not
// safe for concurrent use; callers hold their own lock (the voice-filter
// session's session mutex).
type Ring struct {
	buf        []float32
	channels   int
	sampleRate int
	capacity   int
}

// NewRing returns an empty ring sized for sampleRate/channels.
func NewRing(sampleRate, channels int) *Ring {
	return &Ring{
		channels:   channels,
		sampleRate: sampleRate,
		capacity:   RingCapacitySamples(sampleRate, channels),
	}
}

// Len reports the number of buffered interleaved samples.
func (r *Ring) Len() int { return len(r.buf) }

// Frames reports the number of buffered frames (samples / channels).
func (r *Ring) Frames() int {
	if r.channels == 0 {
		return 0
	}
	return len(r.buf) / r.channels
}

// Push appends samples (interleaved, srcChannels channels) to the ring,
// converting to the ring's channel count first. Oversized pushes (larger
// than the ring's capacity) are silently discarded in full; otherwise the
// ring is trimmed from the head down to capacity after the append.
func (r *Ring) Push(samples []float32, srcChannels int) {
	converted := convertChannels(samples, srcChannels, r.channels)
	if len(converted) > r.capacity {
		return
	}
	r.buf = append(r.buf, converted...)
	if excess := len(r.buf) - r.capacity; excess > 0 {
		r.buf = r.buf[excess:]
	}
}

// delayDefaultMs is the fixed far-end delay assumed when locating the
// reference window — kept constant rather than device-measured.
const delayDefaultMs = 80.0

// Window returns the n-frame reference window ending delayDefaultMs before
// the most recently pushed sample, or false if the ring does not yet hold
// at least 80ms plus n frames of material.
func (r *Ring) Window(n int) ([]float32, bool) {
	delayFrames := int(delayDefaultMs / 1000.0 * float64(r.sampleRate))
	need := (delayFrames + n) * r.channels
	if len(r.buf) < need {
		return nil, false
	}
	windowLen := n * r.channels
	start := len(r.buf) - need
	return r.buf[start : start+windowLen], true
}

// convertChannels adapts an interleaved block from srcChannels to
// dstChannels: mono is duplicated to stereo, stereo is averaged to mono,
// matching channel counts pass through unchanged. Any other combination is
// passed through unchanged as well, since no defined conversion exists for
// uncorrelated stereo-to-stereo mismatches.
func convertChannels(samples []float32, srcChannels, dstChannels int) []float32 {
	if srcChannels == dstChannels || srcChannels <= 0 || dstChannels <= 0 {
		return samples
	}
	switch {
	case srcChannels == 1 && dstChannels == 2:
		out := make([]float32, len(samples)*2)
		for i, v := range samples {
			out[2*i] = v
			out[2*i+1] = v
		}
		return out
	case srcChannels == 2 && dstChannels == 1:
		out := make([]float32, len(samples)/2)
		for i := range out {
			out[i] = (samples[2*i] + samples[2*i+1]) / 2
		}
		return out
	default:
		return samples
	}
}
