package eventbus

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jonocairns/swsh/internal/protocol"
	"github.com/jonocairns/swsh/internal/queue"
)

func TestWriterDrainsQueueInOrder(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSink(&buf)
	q := queue.New(10)
	w := NewWriter(q, sink, nil)
	go w.Run()

	Enqueue(q, "voice_filter.frame", map[string]int{"sequence": 0})
	Enqueue(q, "voice_filter.frame", map[string]int{"sequence": 1})
	q.Close()

	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("writer did not finish")
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var e0, e1 protocol.Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &e0))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &e1))
	require.Equal(t, "voice_filter.frame", e0.Event)
	require.Equal(t, "voice_filter.frame", e1.Event)
	require.Equal(t, float64(0), e0.Params.(map[string]interface{})["sequence"])
	require.Equal(t, float64(1), e1.Params.(map[string]interface{})["sequence"])
}

func TestWriteResponseSerializesWithSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSink(&buf)
	require.NoError(t, WriteResponse(sink, protocol.OK("1", map[string]bool{"ok": true})))
	require.Contains(t, buf.String(), `"id":"1"`)
}
