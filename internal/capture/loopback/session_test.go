package loopback

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jonocairns/swsh/internal/platform"
	"github.com/jonocairns/swsh/internal/protocol"
	"github.com/jonocairns/swsh/internal/queue"
)

type fakeHandle struct {
	mu    sync.Mutex
	alive bool
}

func (h *fakeHandle) Alive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.alive
}
func (h *fakeHandle) Close() error { return nil }
func (h *fakeHandle) setAlive(v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.alive = v
}

type fakeStream struct {
	mu       sync.Mutex
	pending  []float32
	failNext bool
}

func (s *fakeStream) push(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, samples...)
}

func (s *fakeStream) NextPacketSize() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		return 0, errors.New("device error")
	}
	return len(s.pending) / Channels, nil
}

func (s *fakeStream) Read(buf []float32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(buf)
	if n > len(s.pending) {
		n = len(s.pending)
	}
	copy(buf, s.pending[:n])
	s.pending = s.pending[n:]
	return n / Channels, nil
}

func (s *fakeStream) Close() error { return nil }

type fakeClient struct {
	stream *fakeStream
	handle *fakeHandle
}

func (c *fakeClient) ActivateLoopback(ctx context.Context, pid int) (platform.LoopbackStream, platform.ProcessHandle, error) {
	return c.stream, c.handle, nil
}
func (c *fakeClient) ActivateCapture(ctx context.Context, deviceID string) (platform.CaptureStream, error) {
	return nil, errors.New("not implemented")
}
func (c *fakeClient) EnumerateTargets(ctx context.Context) ([]platform.Target, error) { return nil, nil }
func (c *fakeClient) EnumerateInputDevices(ctx context.Context) ([]platform.InputDevice, error) {
	return nil, nil
}
func (c *fakeClient) SetRawMode(stream platform.CaptureStream) (bool, error) { return false, nil }

func TestSessionEmitsFrameEventsWhenNoEgress(t *testing.T) {
	q := queue.New(queue.DefaultCapacity)
	stream := &fakeStream{}
	handle := &fakeHandle{alive: true}
	client := &fakeClient{stream: stream, handle: handle}

	s, err := Start(context.Background(), client, 1234, nil, q, zap.NewNop())
	require.NoError(t, err)

	stream.push(make([]float32, FrameSize*Channels))

	line, ok := q.Pop()
	require.True(t, ok)
	var evt protocol.Event
	require.NoError(t, json.Unmarshal([]byte(line), &evt))
	require.Equal(t, protocol.EventAudioCaptureFrame, evt.Event)

	s.Stop()

	line2, ok := q.Pop()
	require.True(t, ok)
	var evt2 protocol.Event
	require.NoError(t, json.Unmarshal([]byte(line2), &evt2))
	require.Equal(t, protocol.EventAudioCaptureEnded, evt2.Event)
}

func TestSessionEndsOnTargetExit(t *testing.T) {
	q := queue.New(queue.DefaultCapacity)
	stream := &fakeStream{}
	handle := &fakeHandle{alive: true}
	client := &fakeClient{stream: stream, handle: handle}

	s, err := Start(context.Background(), client, 1234, nil, q, zap.NewNop())
	require.NoError(t, err)

	handle.setAlive(false)

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate after target exit")
	}

	var evt protocol.Event
	var endedParams protocol.AudioCaptureEndedParams
	for {
		line, ok := q.Pop()
		require.True(t, ok)
		require.NoError(t, json.Unmarshal([]byte(line), &evt))
		if evt.Event == protocol.EventAudioCaptureEnded {
			raw, _ := json.Marshal(evt.Params)
			require.NoError(t, json.Unmarshal(raw, &endedParams))
			break
		}
	}
	require.Equal(t, protocol.ReasonAppExited, endedParams.Reason)
}

type fakeEgress struct {
	accept bool
	calls  int
}

func (e *fakeEgress) TryWrite(sessionID, targetID string, sequence uint64, channels uint16, frameCount uint32, dropped uint32, samples []float32) bool {
	e.calls++
	return e.accept
}

func TestSessionPrefersEgressWhenConnected(t *testing.T) {
	q := queue.New(queue.DefaultCapacity)
	stream := &fakeStream{}
	handle := &fakeHandle{alive: true}
	client := &fakeClient{stream: stream, handle: handle}
	egress := &fakeEgress{accept: true}

	s, err := Start(context.Background(), client, 1234, egress, q, zap.NewNop())
	require.NoError(t, err)

	stream.push(make([]float32, FrameSize*Channels))
	require.Eventually(t, func() bool { return egress.calls > 0 }, time.Second, 5*time.Millisecond)

	s.Stop()
}
