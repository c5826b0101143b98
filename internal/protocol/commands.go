package protocol

// Method names understood by the supervisor's command dispatch.
const (
	MethodHealthPing                  = "health.ping"
	MethodCapabilitiesGet             = "capabilities.get"
	MethodAudioTargetsList            = "audio_targets.list"
	MethodAudioCaptureStart           = "audio_capture.start"
	MethodAudioCaptureStop            = "audio_capture.stop"
	MethodAudioCaptureBinaryEgress    = "audio_capture.binary_egress_info"
	MethodVoiceFilterStart            = "voice_filter.start"
	MethodVoiceFilterStartWithCapture = "voice_filter.start_with_capture"
	MethodVoiceFilterPushFrame        = "voice_filter.push_frame"
	MethodVoiceFilterPushReference    = "voice_filter.push_reference_frame"
	MethodVoiceFilterStop             = "voice_filter.stop"
	MethodVoiceFilterBinaryIngress    = "voice_filter.binary_ingress_info"
	MethodMicDevicesList              = "mic_devices.list"
	MethodPushKeybindsSet             = "push_keybinds.set"
)

// BinaryFraming is the wire-framing tag reported by the two
// *_binary_*_info commands.
const BinaryFraming = "length_prefixed_f32le_v1"

// HealthPingResult is the result of health.ping.
type HealthPingResult struct {
	Status          string `json:"status"`
	TimestampMs     int64  `json:"timestampMs"`
	ProtocolVersion int    `json:"protocolVersion"`
}

// CapabilitiesResult is the result of capabilities.get.
type CapabilitiesResult struct {
	Platform        string `json:"platform"`
	PerAppAudio     bool   `json:"perAppAudio"`
	VoiceFilter     bool   `json:"voiceFilter"`
	ProtocolVersion int    `json:"protocolVersion"`
	Encoding        string `json:"encoding"`
}

// AudioTarget is one enumerable loopback source.
type AudioTarget struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	PID         int    `json:"pid"`
	ProcessName string `json:"processName"`
}

// AudioTargetsListResult is the result of audio_targets.list.
type AudioTargetsListResult struct {
	Targets          []AudioTarget `json:"targets"`
	SuggestedTargetID string       `json:"suggestedTargetId,omitempty"`
	ProtocolVersion  int           `json:"protocolVersion"`
}

// AudioCaptureStartParams is the body of an audio_capture.start command.
type AudioCaptureStartParams struct {
	TargetID string `json:"targetId"`
}

// AudioCaptureStartResult is the result of audio_capture.start.
type AudioCaptureStartResult struct {
	SessionID       string `json:"sessionId"`
	TargetID        string `json:"targetId"`
	SampleRate      uint32 `json:"sampleRate"`
	Channels        uint16 `json:"channels"`
	FramesPerBuffer uint32 `json:"framesPerBuffer"`
}

// StoppedResult is the result of *.stop commands.
type StoppedResult struct {
	Stopped bool `json:"stopped"`
}

// BinaryTransportInfoResult is the result of the two *_binary_*_info
// commands.
type BinaryTransportInfoResult struct {
	Port            int    `json:"port"`
	Framing         string `json:"framing"`
	ProtocolVersion int    `json:"protocolVersion"`
}

// VoiceFilterStartParams is the body of voice_filter.start and
// voice_filter.start_with_capture.
type VoiceFilterStartParams struct {
	SampleRate         uint32 `json:"sampleRate"`
	Channels           uint16 `json:"channels"`
	FramesPerBuffer    uint32 `json:"framesPerBuffer,omitempty"`
	AGCEnabled         bool   `json:"agcEnabled"`
	SuppressionEnabled bool   `json:"suppressionEnabled"`
	SuppressionLevel   string `json:"suppressionLevel,omitempty"`
	EchoEnabled        bool   `json:"echoEnabled"`
	DeviceID           string `json:"deviceId,omitempty"`
}

// VoiceFilterStartResult is the result of voice_filter.start and
// voice_filter.start_with_capture.
type VoiceFilterStartResult struct {
	SessionID       string `json:"sessionId"`
	SampleRate      uint32 `json:"sampleRate"`
	Channels        uint16 `json:"channels"`
	FramesPerBuffer uint32 `json:"framesPerBuffer,omitempty"`
}

// PushFrameParams is the body of voice_filter.push_frame and
// voice_filter.push_reference_frame.
type PushFrameParams struct {
	SessionID  string `json:"sessionId"`
	SampleRate uint32 `json:"sampleRate"`
	Channels   uint16 `json:"channels"`
	Encoding   string `json:"encoding"`
	PCM        string `json:"pcm"`
}

// AcceptedResult is the result of the push_frame/push_reference_frame
// commands.
type AcceptedResult struct {
	Accepted bool `json:"accepted"`
}

// MicDevice is one enumerable microphone endpoint.
type MicDevice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// MicDevicesListResult is the result of mic_devices.list.
type MicDevicesListResult struct {
	Devices []MicDevice `json:"devices"`
}

// PushKeybindsSetParams is the body of push_keybinds.set.
type PushKeybindsSetParams struct {
	Talk string `json:"talk,omitempty"`
	Mute string `json:"mute,omitempty"`
}

// PushKeybindsSetResult is the result of push_keybinds.set. The hotkey
// watcher lives in the parent process; this core only reports the shape
// of its registration outcome.
type PushKeybindsSetResult struct {
	TalkRegistered bool     `json:"talkRegistered"`
	MuteRegistered bool     `json:"muteRegistered"`
	Errors         []string `json:"errors,omitempty"`
}
