// Package platform defines the external audio-capture client contract —
// loopback activation, microphone activation, process liveness, device
// enumeration, and raw-mode toggling — plus the concrete implementations
// the rest of the repo is built and tested against.
package platform

import "context"

// CaptureSampleRate and CaptureChannels are the canonical format every
// platform stream is converted to.
const (
	CaptureSampleRate = 48000
	CaptureChannels   = 2
)

// Target is one enumerated loopback source: a process currently rendering
// audio.
type Target struct {
	PID         int
	Label       string
	ProcessName string
}

// InputDevice is one enumerated microphone endpoint.
type InputDevice struct {
	ID    string
	Label string
}

// LoopbackStream yields PCM packets rendered by a target process, already
// converted to 48kHz stereo float32 by the platform client.
type LoopbackStream interface {
	// NextPacketSize reports the number of interleaved frames available
	// without blocking, or an error if the stream has failed.
	NextPacketSize() (int, error)
	// Read drains up to len(buf)/channels available frames into buf,
	// returning the number of frames written. Silent packets materialize
	// as zero samples.
	Read(buf []float32) (frames int, err error)
	// Close releases the stream's platform resources.
	Close() error
}

// CaptureStream yields PCM blocks from a microphone endpoint, already
// converted to 48kHz stereo float32 by the platform client.
type CaptureStream interface {
	// Read blocks until exactly len(buf)/channels frames are available or
	// an error occurs.
	Read(buf []float32) error
	// Close releases the stream's platform resources.
	Close() error
}

// ProcessHandle is an opaque liveness probe handle for a target process.
type ProcessHandle interface {
	// Alive reports whether the process is still running.
	Alive() bool
	// Close releases any OS resources the handle holds.
	Close() error
}

// Client is the platform audio-capture abstraction the rest of the
// sidecar is built against.
type Client interface {
	ActivateLoopback(ctx context.Context, pid int) (LoopbackStream, ProcessHandle, error)
	ActivateCapture(ctx context.Context, deviceID string) (CaptureStream, error)
	EnumerateTargets(ctx context.Context) ([]Target, error)
	EnumerateInputDevices(ctx context.Context) ([]InputDevice, error)
	SetRawMode(stream CaptureStream) (bool, error)
}
