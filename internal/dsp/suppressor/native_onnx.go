//go:build onnx

package suppressor

import (
	"fmt"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ortInitOnce guards one-time ONNX Runtime environment initialization.
var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// OnnxEngine runs the neural suppression model via ONNX Runtime. Tensors
// are allocated once and reused across Process calls; recurrent state is
// carried forward by copying the state-out tensor back into the state-in
// tensor after every inference.
type OnnxEngine struct {
	session *ort.AdvancedSession

	noisyTensor *ort.Tensor[float32] // [channels, hopSize]
	stateTensor *ort.Tensor[float32] // [stateSize]

	enhancedTensor *ort.Tensor[float32] // [channels, hopSize]
	lsnrTensor     *ort.Tensor[float32] // [1]
	stateNTensor   *ort.Tensor[float32] // [stateSize]

	channels  int
	hopSize   int
	stateSize int

	tuning   Tuning
	postPrev [][]float32 // per-channel previous post-filtered hop, for the post-filter's frame-to-frame smoothing
}

// NewOnnxEngine loads the model at modelPath and allocates its tensors for
// the given channel count, hop size, and recurrent state size. The model
// graph itself only exposes a fixed noisy/state -> enhanced/lsnr/stateN
// signature with no tuning inputs, so tuning's five knobs (post-filter
// strength, attenuation limit, local-SNR gating thresholds) are applied in
// Process as a post-inference stage around the raw model output, the way
// the suppression runtime around DeepFilterNet's own network applies them.
func NewOnnxEngine(modelPath string, channels, hopSize, stateSize int, tuning Tuning) (*OnnxEngine, error) {
	ortInitOnce.Do(func() {
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("suppressor: initialize onnxruntime: %w", ortInitErr)
	}

	noisyTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(channels), int64(hopSize)))
	if err != nil {
		return nil, fmt.Errorf("suppressor: create noisy tensor: %w", err)
	}
	stateTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(stateSize)))
	if err != nil {
		noisyTensor.Destroy()
		return nil, fmt.Errorf("suppressor: create state tensor: %w", err)
	}
	enhancedTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(channels), int64(hopSize)))
	if err != nil {
		noisyTensor.Destroy()
		stateTensor.Destroy()
		return nil, fmt.Errorf("suppressor: create enhanced tensor: %w", err)
	}
	lsnrTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1))
	if err != nil {
		noisyTensor.Destroy()
		stateTensor.Destroy()
		enhancedTensor.Destroy()
		return nil, fmt.Errorf("suppressor: create lsnr tensor: %w", err)
	}
	stateNTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(stateSize)))
	if err != nil {
		noisyTensor.Destroy()
		stateTensor.Destroy()
		enhancedTensor.Destroy()
		lsnrTensor.Destroy()
		return nil, fmt.Errorf("suppressor: create stateN tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"noisy", "state"},
		[]string{"enhanced", "lsnr", "stateN"},
		[]ort.Value{noisyTensor, stateTensor},
		[]ort.Value{enhancedTensor, lsnrTensor, stateNTensor},
		nil,
	)
	if err != nil {
		noisyTensor.Destroy()
		stateTensor.Destroy()
		enhancedTensor.Destroy()
		lsnrTensor.Destroy()
		stateNTensor.Destroy()
		return nil, fmt.Errorf("suppressor: create session: %w", err)
	}

	postPrev := make([][]float32, channels)
	for c := range postPrev {
		postPrev[c] = make([]float32, hopSize)
	}

	return &OnnxEngine{
		session:        session,
		noisyTensor:    noisyTensor,
		stateTensor:    stateTensor,
		enhancedTensor: enhancedTensor,
		lsnrTensor:     lsnrTensor,
		stateNTensor:   stateNTensor,
		channels:       channels,
		hopSize:        hopSize,
		stateSize:      stateSize,
		tuning:         tuning,
		postPrev:       postPrev,
	}, nil
}

// NativeAvailable reports that the onnxruntime backend is compiled in.
func NativeAvailable() bool { return true }

// NewNativeEngine is NewOnnxEngine widened to the Engine interface, so
// callers that select an engine at runtime don't need the onnx build tag.
func NewNativeEngine(modelPath string, channels, hopSize, stateSize int, tuning Tuning) (Engine, error) {
	return NewOnnxEngine(modelPath, channels, hopSize, stateSize, tuning)
}

func (e *OnnxEngine) HopSize() int  { return e.hopSize }
func (e *OnnxEngine) Channels() int { return e.channels }

func (e *OnnxEngine) Process(noisy [][]float32) (Result, error) {
	data := e.noisyTensor.GetData()
	for c := 0; c < e.channels; c++ {
		copy(data[c*e.hopSize:(c+1)*e.hopSize], noisy[c])
	}

	if err := e.session.Run(); err != nil {
		return Result{}, fmt.Errorf("suppressor: inference: %w", err)
	}

	out := e.enhancedTensor.GetData()
	lsnr := float64(e.lsnrTensor.GetData()[0])

	enhanced := make([][]float32, e.channels)
	for c := 0; c < e.channels; c++ {
		hop := make([]float32, e.hopSize)
		copy(hop, out[c*e.hopSize:(c+1)*e.hopSize])
		e.applyTuning(c, noisy[c], hop, lsnr)
		enhanced[c] = hop
	}

	copy(e.stateTensor.GetData(), e.stateNTensor.GetData())

	return Result{Enhanced: enhanced, LSNRDB: lsnr}, nil
}

// applyTuning reshapes the raw model output in place for channel c
// according to the engine's Tuning, the same three controls
// RuntimeParams::with_atten_lim/with_thresholds/with_post_filter expose
// around DeepFilterNet's network:
//
//   - attenuation limit: caps how far the enhanced hop may fall below the
//     noisy input, so suppression never exceeds tuning.AttenLimDB.
//   - local-SNR gating: blends enhanced back toward the noisy input as the
//     estimated local SNR (lsnr) rises above MinDBThresh, so a
//     already-clean signal is left alone instead of over-processed.
//   - post-filter: a one-pole smoothing across hops, weighted by
//     PostFilterBeta, that damps the frame-to-frame gain jitter
//     responsible for musical noise.
func (e *OnnxEngine) applyTuning(c int, noisy, hop []float32, lsnr float64) {
	t := e.tuning
	floor := float32(math.Pow(10, -float64(t.AttenLimDB)/20))

	span := float64(t.MaxDBDFThresh - t.MinDBThresh)
	wet := float32(1)
	if span > 0 {
		wet = float32((float64(t.MaxDBDFThresh) - lsnr) / span)
	}
	if wet < 0 {
		wet = 0
	} else if wet > 1 {
		wet = 1
	}

	prev := e.postPrev[c]
	for i := range hop {
		n := noisy[i]
		bounded := hop[i]
		if a := float32(math.Abs(float64(bounded))); a < float32(math.Abs(float64(n)))*floor {
			if bounded < 0 {
				bounded = -float32(math.Abs(float64(n))) * floor
			} else {
				bounded = float32(math.Abs(float64(n))) * floor
			}
		}

		mixed := n*(1-wet) + bounded*wet
		smoothed := mixed*(1-t.PostFilterBeta) + prev[i]*t.PostFilterBeta

		hop[i] = smoothed
		prev[i] = smoothed
	}
}

func (e *OnnxEngine) Reset() error {
	data := e.stateTensor.GetData()
	for i := range data {
		data[i] = 0
	}
	for _, prev := range e.postPrev {
		for i := range prev {
			prev[i] = 0
		}
	}
	return nil
}

func (e *OnnxEngine) Close() error {
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	if e.noisyTensor != nil {
		e.noisyTensor.Destroy()
		e.noisyTensor = nil
	}
	if e.stateTensor != nil {
		e.stateTensor.Destroy()
		e.stateTensor = nil
	}
	if e.enhancedTensor != nil {
		e.enhancedTensor.Destroy()
		e.enhancedTensor = nil
	}
	if e.lsnrTensor != nil {
		e.lsnrTensor.Destroy()
		e.lsnrTensor = nil
	}
	if e.stateNTensor != nil {
		e.stateNTensor.Destroy()
		e.stateNTensor = nil
	}
	return nil
}
