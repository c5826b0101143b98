package suppressor

import "math"

// StubEngine is a deterministic, model-free Engine: it passes audio through
// unchanged and derives an lsnr estimate directly from block RMS, loud
// enough to open the gate on speech-level input and closed on near-silence.
// It mirrors the role of the stub engine used elsewhere in this codebase's
// neighboring voice pipeline for testing without a packaged model file.
type StubEngine struct {
	channels int
	hopSize  int

	// SilenceRMS is the RMS threshold below which lsnr reports as closed
	// (-60 dB); above it, lsnr reports open (+20 dB).
	SilenceRMS float64
}

// NewStubEngine returns a stub suppressor for the given channel count and
// hop size.
func NewStubEngine(channels, hopSize int) *StubEngine {
	return &StubEngine{channels: channels, hopSize: hopSize, SilenceRMS: 0.01}
}

func (e *StubEngine) HopSize() int  { return e.hopSize }
func (e *StubEngine) Channels() int { return e.channels }

func (e *StubEngine) Process(noisy [][]float32) (Result, error) {
	enhanced := make([][]float32, len(noisy))
	var sumSq float64
	var n int
	for c, ch := range noisy {
		out := make([]float32, len(ch))
		copy(out, ch)
		enhanced[c] = out
		for _, v := range ch {
			sumSq += float64(v) * float64(v)
			n++
		}
	}
	rms := 0.0
	if n > 0 {
		rms = math.Sqrt(sumSq / float64(n))
	}
	lsnr := -60.0
	if rms > e.SilenceRMS {
		lsnr = 20.0
	}
	return Result{Enhanced: enhanced, LSNRDB: lsnr}, nil
}

func (e *StubEngine) Reset() error { return nil }
func (e *StubEngine) Close() error { return nil }
