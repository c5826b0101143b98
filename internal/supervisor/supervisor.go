// Package supervisor implements the command dispatch and session lifecycle
// owner: the sink, the frame queue, the event-writer thread, the shared
// session mutex, and the two transport threads. At most one CaptureSession
// (loopback) and one VoiceFilterSession exist at a time; starting either
// implicitly stops — and emits the terminal event for — whatever was
// previously active.
package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jonocairns/swsh/internal/capture/loopback"
	"github.com/jonocairns/swsh/internal/capture/mic"
	"github.com/jonocairns/swsh/internal/dsp/suppressor"
	"github.com/jonocairns/swsh/internal/eventbus"
	"github.com/jonocairns/swsh/internal/pcm"
	"github.com/jonocairns/swsh/internal/platform"
	"github.com/jonocairns/swsh/internal/protocol"
	"github.com/jonocairns/swsh/internal/queue"
	"github.com/jonocairns/swsh/internal/transport"
	"github.com/jonocairns/swsh/internal/voicefilter"
)

// EngineFactory builds the suppressor engine backing a new voice-filter
// session's neural path. Supplied by cmd/sidecar so the supervisor itself
// stays agnostic to native-vs-stub engine selection.
type EngineFactory func(level suppressor.Level) (suppressor.Engine, error)

// Supervisor owns every long-lived resource the sidecar needs and
// dispatches its command surface.
type Supervisor struct {
	client        platform.Client
	engineFactory EngineFactory
	log           *zap.Logger

	queue  *queue.FrameQueue
	sink   *eventbus.Sink
	writer *eventbus.Writer

	egress  *transport.LoopbackEgress
	ingress *transport.MicIngress

	mu             sync.Mutex
	loopbackSess   *loopback.Session
	voiceFilter    *voicefilter.Session
	voiceFilterMic *mic.Session
}

// New constructs a Supervisor: binds both binary transports (egressPort and
// ingressPort select fixed ports, or 0 for an ephemeral port), starts the
// event writer, and is ready to dispatch commands.
func New(client platform.Client, q *queue.FrameQueue, sink *eventbus.Sink, engineFactory EngineFactory, egressPort, ingressPort int, log *zap.Logger) (*Supervisor, error) {
	if log == nil {
		log = zap.NewNop()
	}

	sup := &Supervisor{
		client:        client,
		engineFactory: engineFactory,
		log:           log,
		queue:         q,
		sink:          sink,
	}

	egress, err := transport.NewLoopbackEgress(egressPort, log.With(zap.String("component", "loopback_egress")))
	if err != nil {
		return nil, fmt.Errorf("supervisor: bind loopback egress: %w", err)
	}
	sup.egress = egress

	ingress, err := transport.NewMicIngress(ingressPort, &ingressRegistry{sup: sup}, log.With(zap.String("component", "mic_ingress")))
	if err != nil {
		egress.Close()
		return nil, fmt.Errorf("supervisor: bind mic ingress: %w", err)
	}
	sup.ingress = ingress

	sup.writer = eventbus.NewWriter(q, sink, log.With(zap.String("component", "event_writer")))
	go sup.writer.Run()

	return sup, nil
}

// micRegistry adapts the supervisor's shared mutex and current voice-filter
// session to internal/capture/mic's Registry contract.
type micRegistry struct{ sup *Supervisor }

func (r *micRegistry) Lock()   { r.sup.mu.Lock() }
func (r *micRegistry) Unlock() { r.sup.mu.Unlock() }
func (r *micRegistry) Current() *voicefilter.Session {
	return r.sup.voiceFilter
}

// ingressRegistry adapts the same shared state to internal/transport's
// Registry contract (a narrower Pusher view, so the transport package
// doesn't need to import voicefilter).
type ingressRegistry struct{ sup *Supervisor }

func (r *ingressRegistry) Lock()   { r.sup.mu.Lock() }
func (r *ingressRegistry) Unlock() { r.sup.mu.Unlock() }
func (r *ingressRegistry) Current() transport.Pusher {
	if r.sup.voiceFilter == nil {
		return nil
	}
	return r.sup.voiceFilter
}

// HandleRequest dispatches one parsed command and returns its response.
// Requests without an ID still run for their side effects; callers should
// skip writing the response when req.ID == "".
func (sup *Supervisor) HandleRequest(ctx context.Context, req protocol.Request) protocol.Response {
	switch req.Method {
	case protocol.MethodHealthPing:
		return protocol.OK(req.ID, protocol.HealthPingResult{
			Status:          "ok",
			TimestampMs:     time.Now().UnixMilli(),
			ProtocolVersion: pcm.ProtocolVersion,
		})

	case protocol.MethodCapabilitiesGet:
		return protocol.OK(req.ID, protocol.CapabilitiesResult{
			Platform:        runtime.GOOS,
			PerAppAudio:     platform.PerAppAudioSupported(),
			VoiceFilter:     true,
			ProtocolVersion: pcm.ProtocolVersion,
			Encoding:        pcm.Encoding,
		})

	case protocol.MethodAudioTargetsList:
		return sup.handleAudioTargetsList(ctx, req)
	case protocol.MethodAudioCaptureStart:
		return sup.handleAudioCaptureStart(ctx, req)
	case protocol.MethodAudioCaptureStop:
		return sup.handleAudioCaptureStop(req)
	case protocol.MethodAudioCaptureBinaryEgress:
		return protocol.OK(req.ID, protocol.BinaryTransportInfoResult{
			Port: sup.egress.Port(), Framing: protocol.BinaryFraming, ProtocolVersion: pcm.ProtocolVersion,
		})

	case protocol.MethodVoiceFilterStart:
		return sup.handleVoiceFilterStart(ctx, req, false)
	case protocol.MethodVoiceFilterStartWithCapture:
		return sup.handleVoiceFilterStart(ctx, req, true)
	case protocol.MethodVoiceFilterPushFrame:
		return sup.handlePushFrame(req, false)
	case protocol.MethodVoiceFilterPushReference:
		return sup.handlePushFrame(req, true)
	case protocol.MethodVoiceFilterStop:
		return sup.handleVoiceFilterStop(req)
	case protocol.MethodVoiceFilterBinaryIngress:
		return protocol.OK(req.ID, protocol.BinaryTransportInfoResult{
			Port: sup.ingress.Port(), Framing: protocol.BinaryFraming, ProtocolVersion: pcm.ProtocolVersion,
		})

	case protocol.MethodMicDevicesList:
		return sup.handleMicDevicesList(ctx, req)
	case protocol.MethodPushKeybindsSet:
		return sup.handlePushKeybindsSet(req)

	default:
		return protocol.Error(req.ID, protocol.ErrUnsupported, fmt.Sprintf("unknown method %q", req.Method))
	}
}

func (sup *Supervisor) handleAudioTargetsList(ctx context.Context, req protocol.Request) protocol.Response {
	targets, err := sup.client.EnumerateTargets(ctx)
	if err != nil {
		return protocol.Error(req.ID, protocol.ErrPlatformInitFailed, err.Error())
	}

	result := protocol.AudioTargetsListResult{ProtocolVersion: pcm.ProtocolVersion}
	for _, t := range targets {
		result.Targets = append(result.Targets, protocol.AudioTarget{
			ID:          platform.TargetID(t.PID),
			Label:       t.Label,
			PID:         t.PID,
			ProcessName: t.ProcessName,
		})
	}
	if len(result.Targets) > 0 {
		result.SuggestedTargetID = result.Targets[0].ID
	}
	return protocol.OK(req.ID, result)
}

func (sup *Supervisor) handleAudioCaptureStart(ctx context.Context, req protocol.Request) protocol.Response {
	var p protocol.AudioCaptureStartParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return protocol.Error(req.ID, protocol.ErrInvalidParams, err.Error())
	}
	pid, ok := platform.ParseTargetPID(p.TargetID)
	if !ok {
		return protocol.Error(req.ID, protocol.ErrInvalidParams, fmt.Sprintf("invalid target id %q", p.TargetID))
	}

	sup.stopLoopback()

	sess, err := loopback.Start(ctx, sup.client, pid, sup.egress, sup.queue, sup.log.With(zap.String("component", "loopback")))
	if err != nil {
		return protocol.Error(req.ID, protocol.ErrPlatformInitFailed, err.Error())
	}

	sup.mu.Lock()
	sup.loopbackSess = sess
	sup.mu.Unlock()

	return protocol.OK(req.ID, protocol.AudioCaptureStartResult{
		SessionID:       sess.ID().String(),
		TargetID:        sess.TargetID(),
		SampleRate:      platform.CaptureSampleRate,
		Channels:        loopback.Channels,
		FramesPerBuffer: loopback.FrameSize,
	})
}

func (sup *Supervisor) handleAudioCaptureStop(req protocol.Request) protocol.Response {
	stopped := sup.stopLoopback()
	return protocol.OK(req.ID, protocol.StoppedResult{Stopped: stopped})
}

// stopLoopback clears the active loopback session (if any) and stops it
// outside the shared mutex, since its worker never needs that mutex and
// Stop() blocks until the worker has joined.
func (sup *Supervisor) stopLoopback() bool {
	sup.mu.Lock()
	old := sup.loopbackSess
	sup.loopbackSess = nil
	sup.mu.Unlock()

	if old == nil {
		return false
	}
	old.Stop()
	return true
}

func (sup *Supervisor) handleVoiceFilterStart(ctx context.Context, req protocol.Request, withCapture bool) protocol.Response {
	var p protocol.VoiceFilterStartParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return protocol.Error(req.ID, protocol.ErrInvalidParams, err.Error())
	}
	if p.SampleRate == 0 {
		p.SampleRate = platform.CaptureSampleRate
	}
	if p.Channels != 1 && p.Channels != 2 {
		return protocol.Error(req.ID, protocol.ErrUnsupported, fmt.Sprintf("unsupported channel count %d", p.Channels))
	}

	level := suppressor.Level(p.SuppressionLevel)
	if p.SuppressionEnabled {
		if level == "" {
			level = suppressor.LevelBalanced
		}
		if !suppressor.ValidLevel(level) {
			return protocol.Error(req.ID, protocol.ErrInvalidParams, fmt.Sprintf("unknown suppression level %q", p.SuppressionLevel))
		}
	}

	var engine suppressor.Engine
	if p.SuppressionEnabled {
		var err error
		engine, err = sup.engineFactory(level)
		if err != nil {
			return protocol.Error(req.ID, protocol.ErrPlatformInitFailed, err.Error())
		}
	}

	session, err := voicefilter.New(voicefilter.Config{
		SampleRate:         p.SampleRate,
		Channels:           p.Channels,
		AGCEnabled:         p.AGCEnabled,
		SuppressionEnabled: p.SuppressionEnabled,
		SuppressionLevel:   level,
		Engine:             engine,
		EchoEnabled:        p.EchoEnabled,
	}, sup.queue, sup.log.With(zap.String("component", "voicefilter")))
	if err != nil {
		return protocol.Error(req.ID, protocol.ErrInvalidParams, err.Error())
	}

	sup.stopVoiceFilter(protocol.ReasonCaptureStopped, "")

	var micSess *mic.Session
	if withCapture {
		micSess, err = mic.Start(ctx, sup.client, p.DeviceID, session.ID(), &micRegistry{sup: sup}, sup.queue, sup.log.With(zap.String("component", "mic")))
		if err != nil {
			session.Close()
			return protocol.Error(req.ID, protocol.ErrPlatformInitFailed, err.Error())
		}
	}

	sup.mu.Lock()
	sup.voiceFilter = session
	sup.voiceFilterMic = micSess
	sup.mu.Unlock()

	return protocol.OK(req.ID, protocol.VoiceFilterStartResult{
		SessionID:       session.ID().String(),
		SampleRate:      p.SampleRate,
		Channels:        p.Channels,
		FramesPerBuffer: p.FramesPerBuffer,
	})
}

func (sup *Supervisor) handleVoiceFilterStop(req protocol.Request) protocol.Response {
	stopped := sup.stopVoiceFilter(protocol.ReasonCaptureStopped, "")
	return protocol.OK(req.ID, protocol.StoppedResult{Stopped: stopped})
}

// stopVoiceFilter clears the active voice-filter session (and its own
// capture worker, if any) and tears both down outside the shared mutex —
// the mic worker acquires that same mutex per block, so holding it across
// a blocking Stop() would deadlock against a worker waiting to take it.
func (sup *Supervisor) stopVoiceFilter(reason protocol.CaptureEndedReason, errMsg string) bool {
	sup.mu.Lock()
	oldMic := sup.voiceFilterMic
	oldVF := sup.voiceFilter
	sup.voiceFilterMic = nil
	sup.voiceFilter = nil
	sup.mu.Unlock()

	if oldMic != nil {
		oldMic.Stop()
	}
	if oldVF == nil {
		return false
	}
	oldVF.End(reason, errMsg)
	oldVF.Close()
	return true
}

func (sup *Supervisor) handlePushFrame(req protocol.Request, reference bool) protocol.Response {
	var p protocol.PushFrameParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return protocol.Error(req.ID, protocol.ErrInvalidParams, err.Error())
	}

	sup.mu.Lock()
	session := sup.voiceFilter
	sup.mu.Unlock()
	if session == nil {
		return protocol.Error(req.ID, protocol.ErrSessionMismatch, "no active voice-filter session")
	}
	if p.SessionID != session.ID().String() {
		return protocol.Error(req.ID, protocol.ErrSessionMismatch, "session_id does not match the active session")
	}

	samples, err := pcm.DecodeF32LEBase64(p.PCM)
	if err != nil {
		return protocol.Error(req.ID, protocol.ErrInvalidParams, err.Error())
	}

	if reference {
		err = session.PushReference(samples, p.SampleRate, p.Channels)
	} else {
		err = session.Push(samples, p.SampleRate, p.Channels)
	}
	if err != nil {
		return protocol.Error(req.ID, protocol.ErrUnsupported, err.Error())
	}
	return protocol.OK(req.ID, protocol.AcceptedResult{Accepted: true})
}

func (sup *Supervisor) handleMicDevicesList(ctx context.Context, req protocol.Request) protocol.Response {
	devices, err := sup.client.EnumerateInputDevices(ctx)
	if err != nil {
		return protocol.Error(req.ID, protocol.ErrPlatformInitFailed, err.Error())
	}
	result := protocol.MicDevicesListResult{}
	for _, d := range devices {
		result.Devices = append(result.Devices, protocol.MicDevice{ID: d.ID, Label: d.Label})
	}
	return protocol.OK(req.ID, result)
}

// handlePushKeybindsSet acknowledges a hotkey registration request. The
// global hotkey watcher lives in the parent process; this core has nothing
// to wire a hook into, so any requested binding is reported registered
// with no errors.
func (sup *Supervisor) handlePushKeybindsSet(req protocol.Request) protocol.Response {
	var p protocol.PushKeybindsSetParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return protocol.Error(req.ID, protocol.ErrInvalidParams, err.Error())
	}
	return protocol.OK(req.ID, protocol.PushKeybindsSetResult{
		TalkRegistered: p.Talk != "",
		MuteRegistered: p.Mute != "",
	})
}

// Shutdown tears the supervisor down: stop transports, close the frame
// queue, join the event writer, join session workers.
func (sup *Supervisor) Shutdown() error {
	var errs []error

	if err := sup.egress.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := sup.ingress.Close(); err != nil {
		errs = append(errs, err)
	}

	sup.stopLoopback()
	sup.stopVoiceFilter(protocol.ReasonCaptureStopped, "")

	sup.queue.Close()
	<-sup.writer.Done()

	return errors.Join(errs...)
}
