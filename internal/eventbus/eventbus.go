// Package eventbus drains the bounded frame queue onto the shared output
// sink and serializes those writes against synchronous command responses
// written on the command-loop goroutine.
package eventbus

import (
	"bufio"
	"encoding/json"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/jonocairns/swsh/internal/protocol"
	"github.com/jonocairns/swsh/internal/queue"
)

// Sink is the shared, lock-guarded output stream. Both the Writer goroutine
// and synchronous command responses go through WriteLine so stdout never
// interleaves partial lines.
type Sink struct {
	mu  sync.Mutex
	out *bufio.Writer
}

// NewSink wraps w in a buffered, lock-guarded line sink.
func NewSink(w io.Writer) *Sink {
	return &Sink{out: bufio.NewWriter(w)}
}

// WriteLine writes line followed by a newline and flushes, holding the sink
// lock for the duration so concurrent writers never interleave.
func (s *Sink) WriteLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.out.WriteString(line); err != nil {
		return err
	}
	if err := s.out.WriteByte('\n'); err != nil {
		return err
	}
	return s.out.Flush()
}

// Writer is the dedicated goroutine draining (A) onto (Sink), one line per
// item.
type Writer struct {
	queue *queue.FrameQueue
	sink  *Sink
	log   *zap.Logger
	done  chan struct{}
}

// NewWriter returns a Writer reading from q and writing to sink.
func NewWriter(q *queue.FrameQueue, sink *Sink, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{queue: q, sink: sink, log: log, done: make(chan struct{})}
}

// Run drains q until it is closed. Intended to be run in its own goroutine;
// returns when the queue is closed and drained.
func (w *Writer) Run() {
	defer close(w.done)
	for {
		line, ok := w.queue.Pop()
		if !ok {
			return
		}
		if err := w.sink.WriteLine(line); err != nil {
			w.log.Warn("event writer: write failed", zap.Error(err))
		}
	}
}

// Done returns a channel closed once Run has returned.
func (w *Writer) Done() <-chan struct{} {
	return w.done
}

// Enqueue marshals an event and pushes it onto q. Marshal failures are
// dropped (there is no recoverable action the producer can take; logging
// is the caller's responsibility since Enqueue has no logger of its own).
func Enqueue(q *queue.FrameQueue, eventName string, params interface{}) {
	data, err := json.Marshal(protocol.Event{Event: eventName, Params: params})
	if err != nil {
		return
	}
	q.Push(string(data))
}

// WriteResponse writes resp directly to sink, serializing with the event
// writer via the shared sink lock: responses to synchronous commands are
// written directly on the command thread, while holding the same lock the
// writer goroutine uses, so stdout never interleaves partial lines.
func WriteResponse(sink *Sink, resp protocol.Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return sink.WriteLine(string(data))
}
