// Package loopback implements the loopback capture session: one worker
// thread per session, pacing frame emission off a platform loopback
// client and monitoring target-process liveness.
package loopback

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonocairns/swsh/internal/eventbus"
	"github.com/jonocairns/swsh/internal/pcm"
	"github.com/jonocairns/swsh/internal/platform"
	"github.com/jonocairns/swsh/internal/protocol"
	"github.com/jonocairns/swsh/internal/queue"
)

const (
	// FrameSize is the 960-frame (20ms at 48kHz) block each session emits.
	FrameSize = 960
	// Channels is the canonical loopback channel count.
	Channels = 2

	livenessInterval = 300 * time.Millisecond
	idleSleep         = 4 * time.Millisecond
)

// Egress is the subset of the binary egress transport a Session needs: an
// attempt to hand a frame to a connected external peer, reporting whether
// one was connected to receive it. Defined here (not imported from the
// transport package) so this package has no dependency on the transport
// wire format.
type Egress interface {
	TryWrite(sessionID, targetID string, sequence uint64, channels uint16, frameCount uint32, dropped uint32, samples []float32) bool
}

// Session owns one loopback capture worker.
type Session struct {
	id       uuid.UUID
	targetID string

	client platform.Client
	stream platform.LoopbackStream
	handle platform.ProcessHandle

	egress Egress
	queue  *queue.FrameQueue
	log    *zap.Logger

	sequence   uint64
	stopSignal atomic.Bool
	done       chan struct{}
	wg         sync.WaitGroup
}

// Start activates a loopback capture for targetPID and spawns its worker
// goroutine.
func Start(ctx context.Context, client platform.Client, targetPID int, egress Egress, q *queue.FrameQueue, log *zap.Logger) (*Session, error) {
	stream, handle, err := client.ActivateLoopback(ctx, targetPID)
	if err != nil {
		return nil, fmt.Errorf("loopback: activate: %w", err)
	}

	s := &Session{
		id:       uuid.New(),
		targetID: fmt.Sprintf("pid:%d", targetPID),
		client:   client,
		stream:   stream,
		handle:   handle,
		egress:   egress,
		queue:    q,
		log:      log,
		done:     make(chan struct{}),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run()
	}()

	return s, nil
}

// ID returns the session's identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// TargetID returns the session's "pid:<N>" target identifier.
func (s *Session) TargetID() string { return s.targetID }

// Stop signals the worker to stop and blocks until it has terminated and
// emitted its terminal event.
func (s *Session) Stop() {
	s.stopSignal.Store(true)
	s.wg.Wait()
}

// Done reports when the worker has terminated, for callers that want to
// observe termination without requesting it.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) run() {
	defer close(s.done)

	var reason protocol.CaptureEndedReason
	var errMsg string

	buf := make([]float32, 0, FrameSize*Channels*4)
	lastLiveness := time.Now()

loop:
	for {
		if s.stopSignal.Load() {
			reason = protocol.ReasonCaptureStopped
			break loop
		}

		if time.Since(lastLiveness) >= livenessInterval {
			lastLiveness = time.Now()
			if !s.handle.Alive() {
				reason = protocol.ReasonAppExited
				break loop
			}
		}

		n, err := s.stream.NextPacketSize()
		if err != nil {
			reason = protocol.ReasonDeviceLost
			errMsg = err.Error()
			break loop
		}
		if n == 0 {
			time.Sleep(idleSleep)
			continue
		}

		chunk := make([]float32, n*Channels)
		read, err := s.stream.Read(chunk)
		if err != nil {
			reason = protocol.ReasonDeviceLost
			errMsg = err.Error()
			break loop
		}
		buf = append(buf, chunk[:read*Channels]...)

		for len(buf) >= FrameSize*Channels {
			block := buf[:FrameSize*Channels]
			s.emit(block)
			buf = buf[FrameSize*Channels:]
		}
	}

	s.stream.Close()
	if s.handle != nil {
		s.handle.Close()
	}
	s.emitEnded(reason, errMsg)
}

func (s *Session) emit(block []float32) {
	seq := s.sequence
	s.sequence++
	dropped := uint32(s.queue.TakeDropped())

	if s.egress != nil && s.egress.TryWrite(s.id.String(), s.targetID, seq, Channels, FrameSize, dropped, block) {
		return
	}

	eventbus.Enqueue(s.queue, protocol.EventAudioCaptureFrame, protocol.AudioCaptureFrameParams{
		SessionID:         s.id.String(),
		TargetID:          s.targetID,
		Sequence:          seq,
		SampleRate:        platform.CaptureSampleRate,
		Channels:          Channels,
		FrameCount:        FrameSize,
		ProtocolVersion:   pcm.ProtocolVersion,
		Encoding:          pcm.Encoding,
		PCM:               pcm.EncodeF32LEBase64(block),
		DroppedFrameCount: dropped,
	})
}

func (s *Session) emitEnded(reason protocol.CaptureEndedReason, errMsg string) {
	eventbus.Enqueue(s.queue, protocol.EventAudioCaptureEnded, protocol.AudioCaptureEndedParams{
		SessionID: s.id.String(),
		TargetID:  s.targetID,
		Reason:    reason,
		Error:     errMsg,
	})
}
