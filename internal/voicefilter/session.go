// Package voicefilter implements the voice-filter session: the DSP chain
// for one microphone pipeline, ordering AGC, the neural-or-pass-through
// processor variant, echo subtraction, and the limiter, then encoding and
// enqueuing the result as a voice_filter.frame event.
package voicefilter

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonocairns/swsh/internal/dsp/agc"
	"github.com/jonocairns/swsh/internal/dsp/echo"
	"github.com/jonocairns/swsh/internal/dsp/limiter"
	"github.com/jonocairns/swsh/internal/dsp/suppressor"
	"github.com/jonocairns/swsh/internal/eventbus"
	"github.com/jonocairns/swsh/internal/pcm"
	"github.com/jonocairns/swsh/internal/protocol"
	"github.com/jonocairns/swsh/internal/queue"
)

// Config configures a new Session.
type Config struct {
	SampleRate uint32
	Channels   uint16

	AGCEnabled bool

	SuppressionEnabled bool
	SuppressionLevel   suppressor.Level
	// Engine backs the neural suppressor when SuppressionEnabled is true.
	// Callers own its lifecycle choice (native ONNX binding or stub).
	Engine suppressor.Engine

	EchoEnabled bool
}

// Session holds the DSP chain's state for one microphone pipeline. Exactly
// one Session is active at a time; the supervisor replaces it atomically
// on a new start.
type Session struct {
	mu sync.Mutex

	id         uuid.UUID
	sampleRate uint32
	channels   uint16

	agcEnabled bool
	agc        *agc.State

	echoEnabled bool
	echoRing    *echo.Ring

	processor *suppressor.Processor
	limiter   *limiter.State

	sequence uint64
	ended    atomic.Bool

	queue *queue.FrameQueue
	log   *zap.Logger
}

// New constructs a Session, warming the neural suppressor (if enabled) by
// running WarmupBlocks silent hops before returning.
func New(cfg Config, q *queue.FrameQueue, log *zap.Logger) (*Session, error) {
	if cfg.Channels != 1 && cfg.Channels != 2 {
		return nil, fmt.Errorf("voicefilter: unsupported channel count %d", cfg.Channels)
	}

	s := &Session{
		id:          uuid.New(),
		sampleRate:  cfg.SampleRate,
		channels:    cfg.Channels,
		agcEnabled:  cfg.AGCEnabled,
		echoEnabled: cfg.EchoEnabled,
		agc:         agc.New(),
		queue:       q,
		log:         log,
	}

	if cfg.EchoEnabled {
		s.echoRing = echo.NewRing(int(cfg.SampleRate), int(cfg.Channels))
	}

	if cfg.SuppressionEnabled {
		if cfg.Engine == nil {
			return nil, fmt.Errorf("voicefilter: suppression enabled without an engine")
		}
		s.processor = suppressor.NewProcessor(cfg.Engine)
		if err := s.processor.Warmup(suppressor.WarmupBlocks); err != nil {
			return nil, fmt.Errorf("voicefilter: warm up suppressor: %w", err)
		}
		s.limiter = limiter.New()
	}

	return s, nil
}

// ID returns the session's identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// SampleRate and Channels report the session's configured format.
func (s *Session) SampleRate() uint32 { return s.sampleRate }
func (s *Session) Channels() uint16   { return s.channels }

// Push validates the incoming block, runs the DSP chain in order, encodes
// the result, and enqueues a voice_filter.frame event.
func (s *Session) Push(samples []float32, sampleRate uint32, channels uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if channels != s.channels {
		return fmt.Errorf("voicefilter: channel count %d does not match session channel count %d", channels, s.channels)
	}
	if sampleRate != s.sampleRate {
		return fmt.Errorf("voicefilter: sample rate %d does not match session sample rate %d", sampleRate, s.sampleRate)
	}
	if channels != 1 && channels != 2 {
		return fmt.Errorf("voicefilter: unsupported channel count %d", channels)
	}
	if len(samples)%int(channels) != 0 {
		return fmt.Errorf("voicefilter: sample count %d not divisible by channel count %d", len(samples), channels)
	}
	frameCount := len(samples) / int(channels)

	block := make([]float32, len(samples))
	copy(block, samples)

	blockDurationMs := float64(frameCount) * 1000.0 / float64(s.sampleRate)

	if s.agcEnabled {
		s.agc.Process(block, blockDurationMs)
	}

	neuralActive := s.processor != nil
	if neuralActive {
		out, err := s.processor.Process(block)
		if err != nil {
			return fmt.Errorf("voicefilter: suppressor: %w", err)
		}
		block = out
	}

	if s.echoEnabled && s.echoRing != nil {
		if ref, ok := s.echoRing.Window(frameCount); ok {
			echo.Process(block, ref)
		}
	}

	if neuralActive {
		s.limiter.Process(block)
	}

	seq := s.sequence
	s.sequence++

	dropped := uint32(s.queue.TakeDropped())

	eventbus.Enqueue(s.queue, protocol.EventVoiceFilterFrame, protocol.VoiceFilterFrameParams{
		SessionID:         s.id.String(),
		Sequence:          seq,
		SampleRate:        s.sampleRate,
		Channels:          channels,
		FrameCount:        uint32(frameCount),
		ProtocolVersion:   pcm.ProtocolVersion,
		Encoding:          pcm.Encoding,
		PCM:               pcm.EncodeF32LEBase64(block),
		DroppedFrameCount: dropped,
	})

	return nil
}

// PushReference validates the sample rate, converts channel layout,
// appends to the echo reference ring, and trims it to capacity.
func (s *Session) PushReference(samples []float32, sampleRate uint32, channels uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.echoRing == nil {
		return fmt.Errorf("voicefilter: echo cancellation not enabled for this session")
	}
	if sampleRate != s.sampleRate {
		return fmt.Errorf("voicefilter: reference sample rate %d does not match session sample rate %d", sampleRate, s.sampleRate)
	}
	s.echoRing.Push(samples, int(channels))
	return nil
}

// End emits the session's terminal voice_filter.ended event. Idempotent:
// only the first call emits, since the session can be torn down either by
// its own capture worker (device loss) or by the supervisor (explicit
// stop/replacement), and exactly one terminal event must reach the
// parent process per session.
func (s *Session) End(reason protocol.CaptureEndedReason, errMsg string) {
	if !s.ended.CompareAndSwap(false, true) {
		return
	}
	eventbus.Enqueue(s.queue, protocol.EventVoiceFilterEnded, protocol.VoiceFilterEndedParams{
		SessionID: s.id.String(),
		Reason:    reason,
		Error:     errMsg,
	})
}

// Close releases the neural suppressor's resources, if any.
func (s *Session) Close() error {
	if s.processor != nil {
		return s.processor.Close()
	}
	return nil
}
