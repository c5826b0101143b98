package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/jonocairns/swsh/internal/pcm"
)

// Pusher is the subset of the voice-filter session a connected mic-ingress
// client drives: one accepted frame in, under the caller's own locking.
type Pusher interface {
	Push(samples []float32, sampleRate uint32, channels uint16) error
}

// Registry resolves which voice-filter session (if any) ingress frames are
// routed to, mirroring internal/capture/mic's coupling to the supervisor's
// shared session lock.
type Registry interface {
	Lock()
	Unlock()
	Current() Pusher
}

// MicIngress binds the requested loopback TCP port (ephemeral when 0) and
// feeds each accepted
// connection's length-prefixed binary frames into the active voice-filter
// session. Only one client is served at a time; a new connection replaces
// whatever was previously attached.
type MicIngress struct {
	listener net.Listener
	registry Registry
	log      *zap.Logger

	mu   sync.Mutex
	conn net.Conn

	closed atomic.Bool
	done   chan struct{}
}

// NewMicIngress binds the mic ingress TCP port and starts accepting
// connections in the background. port 0 binds an ephemeral port; Port()
// reports whatever port was actually bound.
func NewMicIngress(port int, registry Registry, log *zap.Logger) (*MicIngress, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	m := &MicIngress{listener: ln, registry: registry, log: log, done: make(chan struct{})}
	go m.acceptLoop()
	return m, nil
}

// Port returns the bound TCP port, reported to clients via
// voice_filter.binary_ingress_info.
func (m *MicIngress) Port() int {
	return m.listener.Addr().(*net.TCPAddr).Port
}

func (m *MicIngress) acceptLoop() {
	defer close(m.done)
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			if m.closed.Load() {
				return
			}
			m.log.Warn("transport: mic ingress accept error", zap.Error(err))
			return
		}

		m.mu.Lock()
		if m.conn != nil {
			m.conn.Close()
		}
		m.conn = conn
		m.mu.Unlock()

		go m.serve(conn)
	}
}

// serve reads length-prefixed frames from conn until it closes or a
// protocol violation is seen. Frames that parse but fail semantic
// validation are logged and skipped without closing the connection;
// malformed framing (bad length prefix, truncated payload) closes it.
func (m *MicIngress) serve(conn net.Conn) {
	r := bufio.NewReader(conn)
	for {
		frame, err := readFrame(r)
		if err != nil {
			if err != io.EOF {
				m.log.Debug("transport: mic ingress connection closed", zap.Error(err))
			}
			m.clear(conn)
			conn.Close()
			return
		}

		env, err := pcm.DecodeMicIngress(frame)
		if err != nil {
			m.log.Warn("transport: mic ingress frame rejected", zap.Error(err))
			m.clear(conn)
			conn.Close()
			return
		}

		samples, err := pcm.DecodeF32LE(env.PCM)
		if err != nil {
			m.log.Warn("transport: mic ingress pcm decode failed", zap.Error(err))
			continue
		}

		m.registry.Lock()
		current := m.registry.Current()
		if current == nil {
			m.registry.Unlock()
			continue
		}
		pushErr := current.Push(samples, env.SampleRate, env.Channels)
		m.registry.Unlock()

		if pushErr != nil {
			m.log.Warn("transport: mic ingress push failed", zap.Error(pushErr))
		}
	}
}

func (m *MicIngress) clear(conn net.Conn) {
	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
	}
	m.mu.Unlock()
}

// readFrame reads one length-prefixed frame (4-byte little-endian payload
// length, then the payload), including the prefix in the returned bytes so
// it can be handed directly to pcm.DecodeMicIngress.
func readFrame(r *bufio.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	payloadLen := binary.LittleEndian.Uint32(lenBuf[:])
	if payloadLen > pcm.MaxPayloadBytes {
		return nil, fmt.Errorf("transport: payload length %d exceeds max %d", payloadLen, pcm.MaxPayloadBytes)
	}

	frame := make([]byte, 4+payloadLen)
	copy(frame, lenBuf[:])
	if _, err := io.ReadFull(r, frame[4:]); err != nil {
		return nil, err
	}
	return frame, nil
}

// Close stops accepting new connections and closes the currently attached
// client, if any.
func (m *MicIngress) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := m.listener.Close()

	m.mu.Lock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.mu.Unlock()

	<-m.done
	return err
}
