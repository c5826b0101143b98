package protocol

// Event names emitted on the output stream.
const (
	EventAudioCaptureFrame  = "audio_capture.frame"
	EventAudioCaptureEnded  = "audio_capture.ended"
	EventVoiceFilterFrame   = "voice_filter.frame"
	EventVoiceFilterEnded   = "voice_filter.ended"
	EventMicCaptureStatus   = "mic_capture.status"
	EventPushKeybindState   = "push_keybind.state"
)

// CaptureEndedReason is the closed set of terminal reasons a capture
// session's `.ended` event carries.
type CaptureEndedReason string

const (
	ReasonCaptureStopped CaptureEndedReason = "capture_stopped"
	ReasonAppExited      CaptureEndedReason = "app_exited"
	ReasonCaptureError   CaptureEndedReason = "capture_error"
	ReasonDeviceLost     CaptureEndedReason = "device_lost"
)

// AudioCaptureFrameParams is the payload of an audio_capture.frame event —
// a base64-encoded loopback PCM block, emitted when no binary egress
// client is connected.
type AudioCaptureFrameParams struct {
	SessionID         string `json:"sessionId"`
	TargetID          string `json:"targetId"`
	Sequence          uint64 `json:"sequence"`
	SampleRate        uint32 `json:"sampleRate"`
	Channels          uint16 `json:"channels"`
	FrameCount        uint32 `json:"frameCount"`
	ProtocolVersion   uint32 `json:"protocolVersion"`
	Encoding          string `json:"encoding"`
	PCM               string `json:"pcm"`
	DroppedFrameCount uint32 `json:"droppedFrameCount,omitempty"`
}

// AudioCaptureEndedParams is the terminal event for a loopback capture
// session.
type AudioCaptureEndedParams struct {
	SessionID string             `json:"sessionId"`
	TargetID  string             `json:"targetId"`
	Reason    CaptureEndedReason `json:"reason"`
	Error     string             `json:"error,omitempty"`
}

// VoiceFilterFrameParams is the payload of a voice_filter.frame event.
type VoiceFilterFrameParams struct {
	SessionID         string `json:"sessionId"`
	Sequence          uint64 `json:"sequence"`
	SampleRate        uint32 `json:"sampleRate"`
	Channels          uint16 `json:"channels"`
	FrameCount        uint32 `json:"frameCount"`
	ProtocolVersion   uint32 `json:"protocolVersion"`
	Encoding          string `json:"encoding"`
	PCM               string `json:"pcm"`
	DroppedFrameCount uint32 `json:"droppedFrameCount,omitempty"`
}

// VoiceFilterEndedParams is the terminal event for a voice-filter session.
type VoiceFilterEndedParams struct {
	SessionID string             `json:"sessionId"`
	Reason    CaptureEndedReason `json:"reason"`
	Error     string             `json:"error,omitempty"`
}

// MicCaptureStatusParams reports whether raw mode was achieved on the
// selected input device.
type MicCaptureStatusParams struct {
	SessionID string `json:"sessionId"`
	DeviceID  string `json:"deviceId,omitempty"`
	RawMode   bool   `json:"rawMode"`
}

// PushKeybindStateParams reports the external hotkey watcher's current
// registration state. The watcher itself lives outside this core; this
// package only carries the wire shape it reports through.
type PushKeybindStateParams struct {
	TalkActive bool `json:"talkActive"`
	MuteActive bool `json:"muteActive"`
}
