package platform

import (
	"context"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// portaudioCapture wraps one open portaudio input stream, read in
// interleaved float32 blocks.
type portaudioCapture struct {
	stream *portaudio.Stream
	buf    []float32
}

// ActivateCapture opens the selected input device (or the system default
// when deviceID is empty) at 48kHz stereo float32.
func (c *defaultClient) ActivateCapture(ctx context.Context, deviceID string) (CaptureStream, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("platform: list devices: %w", err)
	}

	dev, err := resolveInputDevice(devices, deviceID)
	if err != nil {
		return nil, fmt.Errorf("platform: resolve input device: %w", err)
	}

	buf := make([]float32, captureFrameSize*CaptureChannels)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: CaptureChannels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      CaptureSampleRate,
		FramesPerBuffer: captureFrameSize,
	}

	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("platform: open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("platform: start input stream: %w", err)
	}

	return &portaudioCapture{stream: stream, buf: buf}, nil
}

// captureFrameSize is the 10ms block size microphone capture reads in.
const captureFrameSize = 480

func resolveInputDevice(devices []*portaudio.DeviceInfo, deviceID string) (*portaudio.DeviceInfo, error) {
	if deviceID != "" {
		for _, d := range devices {
			if d.Name == deviceID {
				return d, nil
			}
		}
		return nil, fmt.Errorf("platform: input device %q not found", deviceID)
	}
	return portaudio.DefaultInputDevice()
}

func (c *portaudioCapture) Read(buf []float32) error {
	if err := c.stream.Read(); err != nil {
		return err
	}
	copy(buf, c.buf)
	return nil
}

func (c *portaudioCapture) Close() error {
	c.stream.Stop()
	return c.stream.Close()
}

// EnumerateInputDevices lists available microphone endpoints.
func (c *defaultClient) EnumerateInputDevices(ctx context.Context) ([]InputDevice, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("platform: list devices: %w", err)
	}
	var out []InputDevice
	for _, d := range devices {
		if d.MaxInputChannels <= 0 {
			continue
		}
		out = append(out, InputDevice{ID: d.Name, Label: d.Name})
	}
	return out, nil
}

// SetRawMode is a best-effort attempt to bypass OS audio effects on a
// capture stream. portaudio exposes no such control, so this always
// reports false — the caller still emits mic_capture.status accurately.
func (c *defaultClient) SetRawMode(stream CaptureStream) (bool, error) {
	return false, nil
}
