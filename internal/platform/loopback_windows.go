//go:build windows

package platform

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"github.com/jonocairns/swsh/internal/pcm"
)

// activationTimeout bounds how long ActivateAudioInterfaceAsync may take to
// call back before the activation is considered failed.
const activationTimeout = 5 * time.Second

// captureBufferDuration100ns is the WASAPI engine buffer duration, in
// 100-nanosecond units (20ms), matching the original Rust sidecar.
const captureBufferDuration100ns = 20 * 10_000

// activateProcessLoopbackClient activates a per-process WASAPI loopback
// IAudioClient scoped to pid's process tree, returning the raw COM pointer.
// This is the genuine per-process capture path: ActivateAudioInterfaceAsync
// with AUDIOCLIENT_ACTIVATION_TYPE_PROCESS_LOOPBACK, not a default-device
// open — a device ID of nil/"default" would silently capture system-wide
// output instead of pid's.
func activateProcessLoopbackClient(pid int) (uintptr, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if err := coInitialize(); err != nil {
		return 0, err
	}
	defer coUninitialize()

	params := audioClientActivationParams{
		ActivationType:      audioClientActivationTypeProcessLoopback,
		TargetProcessID:     uint32(pid),
		ProcessLoopbackMode: processLoopbackModeIncludeTargetTree,
	}

	activationProp := propVariantBlob{
		vt:        vtBlob,
		cbSize:    uint32(unsafe.Sizeof(params)),
		pBlobData: uintptr(unsafe.Pointer(&params)),
	}

	devicePath, err := utf16PtrFromString(virtualAudioDeviceProcessLoopback)
	if err != nil {
		return 0, fmt.Errorf("platform: encode loopback device path: %w", err)
	}

	handler := newActivateCompletionHandler()
	defer handler.release()

	var operation uintptr
	hr, _, _ := procActivateAudioInterfaceAsync.Call(
		uintptr(unsafe.Pointer(devicePath)),
		uintptr(unsafe.Pointer(&iidIAudioClient)),
		uintptr(unsafe.Pointer(&activationProp)),
		handler.ptr(),
		uintptr(unsafe.Pointer(&operation)),
	)
	runtime.KeepAlive(params)
	runtime.KeepAlive(activationProp)
	if int32(hr) < 0 {
		return 0, fmt.Errorf("platform: ActivateAudioInterfaceAsync failed: HRESULT 0x%08X", uint32(hr))
	}
	defer comRelease(operation)

	select {
	case <-handler.done:
	case <-time.After(activationTimeout):
		return 0, fmt.Errorf("platform: ActivateAudioInterfaceAsync timed out")
	}

	var activateResult uintptr // HRESULT, passed by address
	var activatedInterface uintptr
	if _, err := comCall(operation, vtblGetActivateResult,
		uintptr(unsafe.Pointer(&activateResult)),
		uintptr(unsafe.Pointer(&activatedInterface)),
	); err != nil {
		return 0, fmt.Errorf("platform: GetActivateResult: %w", err)
	}
	if int32(activateResult) < 0 {
		const audclntEWrongEndpointType = 0xC00D36C8
		if uint32(activateResult) == audclntEWrongEndpointType {
			return 0, fmt.Errorf("platform: process loopback activation rejected (HRESULT 0x%08X): target process has no audio session", uint32(activateResult))
		}
		return 0, fmt.Errorf("platform: activation returned failure HRESULT 0x%08X", uint32(activateResult))
	}
	if activatedInterface == 0 {
		return 0, fmt.Errorf("platform: activation returned no interface")
	}
	return activatedInterface, nil
}

// utf16PtrFromString encodes s as a NUL-terminated UTF-16 string, the form
// every wide Win32 LPCWSTR parameter needs.
func utf16PtrFromString(s string) (*uint16, error) {
	units := make([]uint16, 0, len(s)+1)
	for _, r := range s {
		if r > 0xFFFF {
			return nil, fmt.Errorf("platform: %q is not representable in UCS-2", s)
		}
		units = append(units, uint16(r))
	}
	units = append(units, 0)
	return &units[0], nil
}

// wasapiProcessLoopback streams 48kHz stereo float32 frames rendered by one
// process's audio session, fed by a polling goroutine that drains
// IAudioCaptureClient into a buffered slice under mu.
type wasapiProcessLoopback struct {
	audioClient   uintptr
	captureClient uintptr

	mu       sync.Mutex
	pending  []float32
	closeErr error
	closed   bool

	stop chan struct{}
	done chan struct{}
}

// ActivateLoopback opens genuine per-process WASAPI loopback capture for
// pid, converted by the audio engine to 48kHz stereo float32 via
// AUDCLNT_STREAMFLAGS_AUTOCONVERTPCM.
func (c *defaultClient) ActivateLoopback(ctx context.Context, pid int) (LoopbackStream, ProcessHandle, error) {
	handle, err := newWindowsProcessHandle(pid)
	if err != nil {
		return nil, nil, fmt.Errorf("platform: open process handle: %w", err)
	}

	audioClient, err := activateProcessLoopbackClient(pid)
	if err != nil {
		handle.Close()
		return nil, nil, err
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if err := coInitialize(); err != nil {
		comRelease(audioClient)
		handle.Close()
		return nil, nil, err
	}
	defer coUninitialize()

	format := waveFormatEx{
		FormatTag:      waveFormatIEEEFloat,
		Channels:       CaptureChannels,
		SamplesPerSec:  CaptureSampleRate,
		AvgBytesPerSec: CaptureSampleRate * CaptureChannels * 4,
		BlockAlign:     CaptureChannels * 4,
		BitsPerSample:  32,
		CbSize:         0,
	}

	streamFlags := uintptr(audclntStreamflagsLoopback | audclntStreamflagsAutoConvertPCM | audclntStreamflagsSRCDefaultQuality)
	_, err = comCall(audioClient, vtblAudioClientInitialize,
		uintptr(audclntShareModeShared),
		streamFlags,
		uintptr(captureBufferDuration100ns),
		0,
		uintptr(unsafe.Pointer(&format)),
		0,
	)
	runtime.KeepAlive(format)
	if err != nil {
		comRelease(audioClient)
		handle.Close()
		return nil, nil, fmt.Errorf("platform: IAudioClient::Initialize: %w", err)
	}

	var captureClient uintptr
	if _, err := comCall(audioClient, vtblAudioClientGetService,
		uintptr(unsafe.Pointer(&iidIAudioCaptureClient)),
		uintptr(unsafe.Pointer(&captureClient)),
	); err != nil {
		comRelease(audioClient)
		handle.Close()
		return nil, nil, fmt.Errorf("platform: IAudioClient::GetService(IAudioCaptureClient): %w", err)
	}

	if _, err := comCall(audioClient, vtblAudioClientStart); err != nil {
		comRelease(captureClient)
		comRelease(audioClient)
		handle.Close()
		return nil, nil, fmt.Errorf("platform: IAudioClient::Start: %w", err)
	}

	l := &wasapiProcessLoopback{
		audioClient:   audioClient,
		captureClient: captureClient,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go l.pollLoop()

	return l, handle, nil
}

func (l *wasapiProcessLoopback) pollLoop() {
	defer close(l.done)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if err := coInitialize(); err != nil {
		l.mu.Lock()
		l.closeErr = fmt.Errorf("platform: poll loop CoInitializeEx: %w", err)
		l.mu.Unlock()
		return
	}
	defer coUninitialize()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
		}

		for {
			var dataPtr uintptr
			var numFrames uint32
			var flags uint32

			if _, err := comCall(l.captureClient, vtblCaptureClientGetBuffer,
				uintptr(unsafe.Pointer(&dataPtr)),
				uintptr(unsafe.Pointer(&numFrames)),
				uintptr(unsafe.Pointer(&flags)),
				0,
				0,
			); err != nil {
				break
			}
			if numFrames == 0 {
				break
			}

			const audclntBufferflagsSilent = 0x2
			totalBytes := int(numFrames) * CaptureChannels * 4
			var samples []float32
			if flags&audclntBufferflagsSilent != 0 || dataPtr == 0 {
				samples = make([]float32, int(numFrames)*CaptureChannels)
			} else {
				raw := unsafe.Slice((*byte)(unsafe.Pointer(dataPtr)), totalBytes)
				decoded, err := pcm.DecodeF32LE(raw)
				if err != nil {
					decoded = make([]float32, int(numFrames)*CaptureChannels)
				}
				samples = decoded
			}

			l.mu.Lock()
			l.pending = append(l.pending, samples...)
			l.mu.Unlock()

			if _, err := comCall(l.captureClient, vtblCaptureClientReleaseBuffer, uintptr(numFrames)); err != nil {
				l.mu.Lock()
				l.closeErr = fmt.Errorf("platform: IAudioCaptureClient::ReleaseBuffer: %w", err)
				l.mu.Unlock()
				return
			}
		}
	}
}

func (l *wasapiProcessLoopback) NextPacketSize() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closeErr != nil {
		return 0, l.closeErr
	}
	return len(l.pending) / CaptureChannels, nil
}

func (l *wasapiProcessLoopback) Read(buf []float32) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closeErr != nil {
		return 0, l.closeErr
	}
	n := len(buf)
	if n > len(l.pending) {
		n = len(l.pending)
	}
	copy(buf, l.pending[:n])
	l.pending = l.pending[n:]
	return n / CaptureChannels, nil
}

func (l *wasapiProcessLoopback) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	close(l.stop)
	<-l.done

	comCall(l.audioClient, vtblAudioClientStop)
	comRelease(l.captureClient)
	comRelease(l.audioClient)
	return nil
}
