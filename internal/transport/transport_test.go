package transport

import (
	"encoding/binary"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jonocairns/swsh/internal/pcm"
)

func TestLoopbackEgressReturnsFalseWithNoClient(t *testing.T) {
	e, err := NewLoopbackEgress(0, zap.NewNop())
	require.NoError(t, err)
	defer e.Close()

	ok := e.TryWrite("sess", "pid:1", 0, 2, 960, 0, make([]float32, 1920))
	require.False(t, ok)
}

func TestLoopbackEgressDeliversFrameToConnectedClient(t *testing.T) {
	e, err := NewLoopbackEgress(0, zap.NewNop())
	require.NoError(t, err)
	defer e.Close()

	conn, err := net.Dial("tcp", e.listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return e.TryWrite("sess", "pid:1", 7, 2, 960, 3, make([]float32, 1920))
	}, time.Second, 5*time.Millisecond)

	var lenBuf [4]byte
	_, err = readFull(conn, lenBuf[:])
	require.NoError(t, err)
	payloadLen := binary.LittleEndian.Uint32(lenBuf[:])
	payload := make([]byte, payloadLen)
	_, err = readFull(conn, payload)
	require.NoError(t, err)

	frame := append(lenBuf[:], payload...)
	env, err := pcm.DecodeLoopbackEgress(frame)
	require.NoError(t, err)
	require.Equal(t, "sess", env.SessionID)
	require.Equal(t, "pid:1", env.TargetID)
	require.Equal(t, uint64(7), env.Sequence)
	require.Equal(t, uint32(3), env.DroppedFrameCount)
}

func TestLoopbackEgressNewConnectionReplacesPrevious(t *testing.T) {
	e, err := NewLoopbackEgress(0, zap.NewNop())
	require.NoError(t, err)
	defer e.Close()

	first, err := net.Dial("tcp", e.listener.Addr().String())
	require.NoError(t, err)
	defer first.Close()

	require.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.conn != nil
	}, time.Second, 5*time.Millisecond)

	second, err := net.Dial("tcp", e.listener.Addr().String())
	require.NoError(t, err)
	defer second.Close()

	require.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.conn != nil && e.conn.RemoteAddr() != nil
	}, time.Second, 5*time.Millisecond)

	buf := make([]byte, 1)
	first.SetReadDeadline(time.Now().Add(time.Second))
	_, err = first.Read(buf)
	require.Error(t, err)
	var netErr net.Error
	require.False(t, errors.As(err, &netErr) && netErr.Timeout(), "first connection was not closed: %v", err)
}

type fakePusher struct {
	mu    sync.Mutex
	calls int
	last  []float32
}

func (p *fakePusher) Push(samples []float32, sampleRate uint32, channels uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.last = samples
	return nil
}

type fakeMicRegistry struct {
	mu      sync.Mutex
	current Pusher
}

func (r *fakeMicRegistry) Lock()   { r.mu.Lock() }
func (r *fakeMicRegistry) Unlock() { r.mu.Unlock() }
func (r *fakeMicRegistry) Current() Pusher {
	return r.current
}

func TestMicIngressPushesDecodedFramesToCurrentSession(t *testing.T) {
	pusher := &fakePusher{}
	reg := &fakeMicRegistry{current: pusher}

	m, err := NewMicIngress(0, reg, zap.NewNop())
	require.NoError(t, err)
	defer m.Close()

	conn, err := net.Dial("tcp", m.listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	samples := []float32{0.1, -0.2, 0.3, -0.4}
	frame := pcm.EncodeMicIngress(pcm.Envelope{
		SessionID:       "sess",
		Sequence:        1,
		SampleRate:      48000,
		Channels:        2,
		FrameCount:      2,
		ProtocolVersion: pcm.ProtocolVersion,
		PCM:             pcm.EncodeF32LE(samples),
	})
	_, err = conn.Write(frame)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		pusher.mu.Lock()
		defer pusher.mu.Unlock()
		return pusher.calls == 1
	}, time.Second, 5*time.Millisecond)
}

func TestMicIngressClosesConnectionOnProtocolViolation(t *testing.T) {
	reg := &fakeMicRegistry{current: &fakePusher{}}
	m, err := NewMicIngress(0, reg, zap.NewNop())
	require.NoError(t, err)
	defer m.Close()

	conn, err := net.Dial("tcp", m.listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], pcm.MaxPayloadBytes+1)
	_, err = conn.Write(lenBuf[:])
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	require.Error(t, err)
	var netErr net.Error
	require.False(t, errors.As(err, &netErr) && netErr.Timeout(), "connection was not closed: %v", err)
}

func TestLoopbackEgressBindsRequestedPort(t *testing.T) {
	first, err := NewLoopbackEgress(0, zap.NewNop())
	require.NoError(t, err)
	port := first.Port()
	first.Close()

	e, err := NewLoopbackEgress(port, zap.NewNop())
	require.NoError(t, err)
	defer e.Close()
	require.Equal(t, port, e.Port())
}

func TestMicIngressBindsRequestedPort(t *testing.T) {
	reg := &fakeMicRegistry{current: &fakePusher{}}

	first, err := NewMicIngress(0, reg, zap.NewNop())
	require.NoError(t, err)
	port := first.Port()
	first.Close()

	m, err := NewMicIngress(port, reg, zap.NewNop())
	require.NoError(t, err)
	defer m.Close()
	require.Equal(t, port, m.Port())
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
