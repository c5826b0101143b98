// Package transport implements the optional binary egress/ingress TCP
// listeners: a loopback-only listener for each direction, serving at most
// one connected client at a time, with plain newline-JSON events as the
// always-available fallback.
package transport

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jonocairns/swsh/internal/pcm"
	"github.com/jonocairns/swsh/internal/platform"
)

// writeTimeout bounds how long a single egress write may block before the
// frame is considered undeliverable and the connection is dropped.
const writeTimeout = 15 * time.Millisecond

// LoopbackEgress binds the requested loopback TCP port (ephemeral when 0)
// and hands each
// accepted connection length-prefixed binary frames (internal/pcm's wire
// format). Only the most recently accepted connection is served; a new
// connection replaces whatever was previously attached.
type LoopbackEgress struct {
	listener net.Listener
	log      *zap.Logger

	mu   sync.Mutex
	conn net.Conn

	closed atomic.Bool
	done   chan struct{}
}

// NewLoopbackEgress binds the loopback egress TCP port and starts accepting
// connections in the background. port 0 binds an ephemeral port; Port()
// reports whatever port was actually bound.
func NewLoopbackEgress(port int, log *zap.Logger) (*LoopbackEgress, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	e := &LoopbackEgress{listener: ln, log: log, done: make(chan struct{})}
	go e.acceptLoop()
	return e, nil
}

// Port returns the bound TCP port, reported to clients via
// audio_capture.binary_egress_info.
func (e *LoopbackEgress) Port() int {
	return e.listener.Addr().(*net.TCPAddr).Port
}

func (e *LoopbackEgress) acceptLoop() {
	defer close(e.done)
	for {
		conn, err := e.listener.Accept()
		if err != nil {
			if e.closed.Load() {
				return
			}
			e.log.Warn("transport: loopback egress accept error", zap.Error(err))
			return
		}

		e.mu.Lock()
		if e.conn != nil {
			e.conn.Close()
		}
		e.conn = conn
		e.mu.Unlock()
	}
}

// TryWrite implements the loopback capture session's Egress interface: it
// attempts to hand one frame to the currently connected client, returning
// false (no client connected, or the write failed) so the caller falls back
// to a newline-JSON event. SampleRate is always the canonical loopback
// capture rate (platform.CaptureSampleRate); the Egress contract used by
// internal/capture/loopback has no sample-rate parameter because only one
// rate is ever produced.
func (e *LoopbackEgress) TryWrite(sessionID, targetID string, sequence uint64, channels uint16, frameCount uint32, dropped uint32, samples []float32) bool {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return false
	}

	frame := pcm.EncodeLoopbackEgress(pcm.Envelope{
		SessionID:         sessionID,
		TargetID:          targetID,
		Sequence:          sequence,
		SampleRate:        platform.CaptureSampleRate,
		Channels:          channels,
		FrameCount:        frameCount,
		ProtocolVersion:   pcm.ProtocolVersion,
		DroppedFrameCount: dropped,
		PCM:               pcm.EncodeF32LE(samples),
	})

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := conn.Write(frame); err != nil {
		e.mu.Lock()
		if e.conn == conn {
			e.conn = nil
		}
		e.mu.Unlock()
		conn.Close()
		return false
	}
	return true
}

// Close stops accepting new connections and closes the currently attached
// client, if any.
func (e *LoopbackEgress) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := e.listener.Close()

	e.mu.Lock()
	if e.conn != nil {
		e.conn.Close()
		e.conn = nil
	}
	e.mu.Unlock()

	<-e.done
	return err
}
