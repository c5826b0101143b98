// Package mic implements the microphone capture session: one worker
// thread feeding a voice-filter session under the shared session lock,
// verifying session identity on every block.
package mic

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonocairns/swsh/internal/eventbus"
	"github.com/jonocairns/swsh/internal/platform"
	"github.com/jonocairns/swsh/internal/protocol"
	"github.com/jonocairns/swsh/internal/queue"
	"github.com/jonocairns/swsh/internal/voicefilter"
)

// BlockFrames is the 480-frame (10ms at 48kHz) block size the worker
// reads and pushes at a time.
const BlockFrames = 480

// Registry exposes the supervisor-owned shared session lock and the
// currently active voice-filter session, resolving the cyclic coupling
// between the capture worker and the supervisor: the worker holds a
// target session identifier and verifies it against the registry's
// current session on every block.
type Registry interface {
	Lock()
	Unlock()
	Current() *voicefilter.Session
}

// Session owns one microphone capture worker.
type Session struct {
	id              uuid.UUID
	targetSessionID uuid.UUID
	deviceID        string
	rawMode         bool

	client   platform.Client
	stream   platform.CaptureStream
	registry Registry
	queue    *queue.FrameQueue
	log      *zap.Logger

	stopSignal atomic.Bool
	done       chan struct{}
	wg         sync.WaitGroup
}

// Start resolves deviceID (empty for the system default), attempts raw
// mode, emits mic_capture.status, and spawns the capture worker feeding
// targetSessionID.
func Start(ctx context.Context, client platform.Client, deviceID string, targetSessionID uuid.UUID, registry Registry, q *queue.FrameQueue, log *zap.Logger) (*Session, error) {
	stream, err := client.ActivateCapture(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("mic: activate capture: %w", err)
	}

	rawMode, err := client.SetRawMode(stream)
	if err != nil {
		log.Warn("mic: set raw mode failed", zap.Error(err))
	}

	s := &Session{
		id:              uuid.New(),
		targetSessionID: targetSessionID,
		deviceID:        deviceID,
		rawMode:         rawMode,
		client:          client,
		stream:          stream,
		registry:        registry,
		queue:           q,
		log:             log,
		done:            make(chan struct{}),
	}

	eventbus.Enqueue(q, protocol.EventMicCaptureStatus, protocol.MicCaptureStatusParams{
		SessionID: targetSessionID.String(),
		DeviceID:  deviceID,
		RawMode:   rawMode,
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run()
	}()

	return s, nil
}

// Stop signals the worker to stop and waits for it to exit.
func (s *Session) Stop() {
	s.stopSignal.Store(true)
	s.wg.Wait()
}

// Done is closed whenever the worker exits: after Stop, on device loss, or
// on session mismatch.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) run() {
	defer close(s.done)

	buf := make([]float32, BlockFrames*platform.CaptureChannels)
	for {
		if s.stopSignal.Load() {
			s.stream.Close()
			return
		}

		if err := s.stream.Read(buf); err != nil {
			s.stream.Close()
			s.handleDeviceLoss(err)
			return
		}

		s.registry.Lock()
		current := s.registry.Current()
		if current == nil || current.ID() != s.targetSessionID {
			s.registry.Unlock()
			s.stream.Close()
			return
		}
		pushErr := current.Push(buf, platform.CaptureSampleRate, platform.CaptureChannels)
		s.registry.Unlock()

		if pushErr != nil {
			s.log.Warn("mic: push to voice filter failed", zap.Error(pushErr))
		}
	}
}

func (s *Session) handleDeviceLoss(err error) {
	s.registry.Lock()
	current := s.registry.Current()
	matches := current != nil && current.ID() == s.targetSessionID
	s.registry.Unlock()
	if !matches {
		return
	}
	current.End(protocol.ReasonCaptureError, err.Error())
}
