package platform

import "runtime"

// defaultClient is the production Client backed by portaudio for
// microphone capture everywhere, and by a direct WASAPI
// ActivateAudioInterfaceAsync process-loopback activation on Windows only.
type defaultClient struct{}

// NewClient returns the default platform client for this build.
func NewClient() Client {
	return &defaultClient{}
}

// PerAppAudioSupported reports whether this build's platform client can
// activate per-process loopback capture — Windows (WASAPI) only. Backs
// capabilities.get's perAppAudio field.
func PerAppAudioSupported() bool {
	return runtime.GOOS == "windows"
}
