package voicefilter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jonocairns/swsh/internal/dsp/suppressor"
	"github.com/jonocairns/swsh/internal/pcm"
	"github.com/jonocairns/swsh/internal/protocol"
	"github.com/jonocairns/swsh/internal/queue"
)

func newTestQueue() *queue.FrameQueue {
	return queue.New(queue.DefaultCapacity)
}

// TestPassThroughEmitsIdenticalFrame covers AGC and suppression both off:
// silence in, identical frame out.
func TestPassThroughEmitsIdenticalFrame(t *testing.T) {
	q := newTestQueue()
	s, err := New(Config{SampleRate: 48000, Channels: 2}, q, zap.NewNop())
	require.NoError(t, err)

	samples := make([]float32, 960*2)
	require.NoError(t, s.Push(samples, 48000, 2))

	line, ok := q.Pop()
	require.True(t, ok)
	var evt protocol.Event
	require.NoError(t, json.Unmarshal([]byte(line), &evt))
	require.Equal(t, protocol.EventVoiceFilterFrame, evt.Event)

	raw, err := json.Marshal(evt.Params)
	require.NoError(t, err)
	var params protocol.VoiceFilterFrameParams
	require.NoError(t, json.Unmarshal(raw, &params))

	decoded, err := pcm.DecodeF32LEBase64(params.PCM)
	require.NoError(t, err)
	require.Equal(t, samples, decoded)
	require.EqualValues(t, 0, params.Sequence)
	require.EqualValues(t, 960, params.FrameCount)
}

func TestSequenceIncrementsPerFrame(t *testing.T) {
	q := newTestQueue()
	s, err := New(Config{SampleRate: 48000, Channels: 1}, q, zap.NewNop())
	require.NoError(t, err)

	samples := make([]float32, 960)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Push(samples, 48000, 1))
	}

	for want := uint64(0); want < 3; want++ {
		line, ok := q.Pop()
		require.True(t, ok)
		var evt protocol.Event
		require.NoError(t, json.Unmarshal([]byte(line), &evt))
		raw, _ := json.Marshal(evt.Params)
		var params protocol.VoiceFilterFrameParams
		require.NoError(t, json.Unmarshal(raw, &params))
		require.Equal(t, want, params.Sequence)
	}
}

func TestPushRejectsChannelMismatch(t *testing.T) {
	q := newTestQueue()
	s, err := New(Config{SampleRate: 48000, Channels: 2}, q, zap.NewNop())
	require.NoError(t, err)
	require.Error(t, s.Push(make([]float32, 960), 48000, 1))
}

func TestPushRejectsSampleRateMismatch(t *testing.T) {
	q := newTestQueue()
	s, err := New(Config{SampleRate: 48000, Channels: 2}, q, zap.NewNop())
	require.NoError(t, err)
	require.Error(t, s.Push(make([]float32, 1920), 44100, 2))
}

// TestSuppressionSettlesGateOnSilence checks the gate closes on sustained
// silence once suppression is enabled.
func TestSuppressionSettlesGateOnSilence(t *testing.T) {
	q := newTestQueue()
	engine := suppressor.NewStubEngine(1, 480)
	s, err := New(Config{
		SampleRate:          48000,
		Channels:            1,
		SuppressionEnabled:  true,
		Engine:              engine,
	}, q, zap.NewNop())
	require.NoError(t, err)

	silence := make([]float32, 480)
	for i := 0; i < 2000; i++ {
		require.NoError(t, s.Push(silence, 48000, 1))
	}
	require.Less(t, s.processor.GateGain(), 0.01)
}

func TestPushReferenceRequiresEchoEnabled(t *testing.T) {
	q := newTestQueue()
	s, err := New(Config{SampleRate: 48000, Channels: 2}, q, zap.NewNop())
	require.NoError(t, err)
	require.Error(t, s.PushReference(make([]float32, 960), 48000, 2))
}

func TestPushReferenceAccumulatesIntoRing(t *testing.T) {
	q := newTestQueue()
	s, err := New(Config{SampleRate: 48000, Channels: 2, EchoEnabled: true}, q, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.PushReference(make([]float32, 960*2), 48000, 2))
	require.Greater(t, s.echoRing.Len(), 0)
}

func TestEndEmitsTerminalEvent(t *testing.T) {
	q := newTestQueue()
	s, err := New(Config{SampleRate: 48000, Channels: 2}, q, zap.NewNop())
	require.NoError(t, err)
	s.End(protocol.ReasonCaptureStopped, "")

	line, ok := q.Pop()
	require.True(t, ok)
	var evt protocol.Event
	require.NoError(t, json.Unmarshal([]byte(line), &evt))
	require.Equal(t, protocol.EventVoiceFilterEnded, evt.Event)
}
