//go:build windows

package platform

import (
	"fmt"
	"sync"
	"sync/atomic"
	"syscall"
	"unsafe"
)

// Pure-Go WASAPI/COM vtable calling infrastructure, following the same
// syscall.NewLazyDLL/manual-vtable pattern LanternOps-breeze's remote
// desktop encoder uses for Media Foundation — no cgo, no windows/com
// wrapper library.

// comGUID is a COM GUID (128-bit), laid out identically to the Win32 GUID
// struct.
type comGUID struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

var (
	ole32DLL    = syscall.NewLazyDLL("ole32.dll")
	mmdevapiDLL = syscall.NewLazyDLL("mmdevapi.dll")

	procCoInitializeEx = ole32DLL.NewProc("CoInitializeEx")
	procCoUninitialize = ole32DLL.NewProc("CoUninitialize")

	procActivateAudioInterfaceAsync = mmdevapiDLL.NewProc("ActivateAudioInterfaceAsync")
)

const coinitMultithreaded = 0x0

// coInitialize initializes COM on the calling OS thread. The caller must
// have already called runtime.LockOSThread and must pair this with
// coUninitialize before unlocking.
func coInitialize() error {
	hr, _, _ := procCoInitializeEx.Call(0, coinitMultithreaded)
	if int32(hr) < 0 {
		return fmt.Errorf("platform: CoInitializeEx failed: HRESULT 0x%08X", uint32(hr))
	}
	return nil
}

func coUninitialize() {
	procCoUninitialize.Call()
}

// comCall invokes a COM vtable method at the given index. obj is a COM
// interface pointer (pointer to a pointer-to-vtable).
func comCall(obj uintptr, vtableIdx int, args ...uintptr) (uintptr, error) {
	vtablePtr := *(*uintptr)(unsafe.Pointer(obj))
	fnPtr := *(*uintptr)(unsafe.Pointer(vtablePtr + uintptr(vtableIdx)*unsafe.Sizeof(uintptr(0))))

	allArgs := make([]uintptr, 0, 1+len(args))
	allArgs = append(allArgs, obj)
	allArgs = append(allArgs, args...)
	ret, _, _ := syscall.SyscallN(fnPtr, allArgs...)

	if int32(ret) < 0 {
		return ret, fmt.Errorf("platform: COM vtable[%d] HRESULT 0x%08X", vtableIdx, uint32(ret))
	}
	return ret, nil
}

// comRelease calls IUnknown::Release (vtable index 2), ignoring the result.
func comRelease(obj uintptr) {
	if obj == 0 {
		return
	}
	vtablePtr := *(*uintptr)(unsafe.Pointer(obj))
	fnPtr := *(*uintptr)(unsafe.Pointer(vtablePtr + 2*unsafe.Sizeof(uintptr(0))))
	syscall.SyscallN(fnPtr, obj)
}

// --- WASAPI GUIDs (mmdeviceapi.h / audioclient.h) ---

var (
	iidIAudioClient                             = comGUID{0x1CB9AD4C, 0xDBFA, 0x4c32, [8]byte{0xB1, 0x78, 0xC2, 0xF5, 0x68, 0xA7, 0x03, 0xB2}}
	iidIAudioCaptureClient                      = comGUID{0xC8ADBD64, 0xE71E, 0x48a0, [8]byte{0xA4, 0xDE, 0x18, 0x5C, 0x39, 0x5C, 0xD3, 0x17}}
	iidIActivateAudioInterfaceCompletionHandler = comGUID{0x94EA2B94, 0xE9CC, 0x49E0, [8]byte{0xC0, 0xFF, 0xEE, 0x64, 0xCA, 0x8F, 0x5B, 0x90}}
)

// VIRTUAL_AUDIO_DEVICE_PROCESS_LOOPBACK is the well-known device interface
// path that selects per-process loopback activation instead of a physical
// endpoint.
const virtualAudioDeviceProcessLoopback = "VAD\\Process_Loopback"

const (
	audclntShareModeShared = 0

	audclntStreamflagsLoopback          = 0x00020000
	audclntStreamflagsAutoConvertPCM    = 0x80000000
	audclntStreamflagsSRCDefaultQuality = 0x08000000

	waveFormatIEEEFloat = 0x0003

	audioClientActivationTypeProcessLoopback = 1
	processLoopbackModeIncludeTargetTree     = 0

	// IUnknown vtable offsets, common to every interface below.
	vtblQueryInterface = 0
	vtblAddRef         = 1
	vtblRelease         = 2

	// IAudioClient vtable offsets (base 3).
	vtblAudioClientInitialize = 3
	vtblAudioClientStart      = 10
	vtblAudioClientStop       = 11
	vtblAudioClientGetService = 14

	// IAudioCaptureClient vtable offsets (base 3).
	vtblCaptureClientGetBuffer     = 3
	vtblCaptureClientReleaseBuffer = 4

	// IActivateAudioInterfaceAsyncOperation vtable offset (base 3).
	vtblGetActivateResult = 3
)

// waveFormatEx matches the Win32 WAVEFORMATEX layout.
type waveFormatEx struct {
	FormatTag      uint16
	Channels       uint16
	SamplesPerSec  uint32
	AvgBytesPerSec uint32
	BlockAlign     uint16
	BitsPerSample  uint16
	CbSize         uint16
}

// audioClientActivationParams matches AUDIOCLIENT_ACTIVATION_PARAMS with its
// AUDIOCLIENT_PROCESS_LOOPBACK_PARAMS union arm selected.
type audioClientActivationParams struct {
	ActivationType       uint32
	TargetProcessID      uint32
	ProcessLoopbackMode  uint32
}

// propVariantBlob matches PROPVARIANT as used to carry a VT_BLOB payload
// (the only variant shape ActivateAudioInterfaceAsync's activation
// parameters need).
type propVariantBlob struct {
	vt       uint16
	reserved [3]uint16
	cbSize   uint32
	_        uint32 // alignment padding on amd64 before the pointer field
	pBlobData uintptr
}

const vtBlob = 65

// --- IActivateAudioInterfaceCompletionHandler, implemented in pure Go ---
//
// ActivateAudioInterfaceAsync calls back into our process on an arbitrary
// COM worker thread, so the handler is a real (if minimal) COM object: a
// struct whose first field is a vtable pointer, with QueryInterface/AddRef/
// Release/ActivateCompleted backed by syscall.NewCallback trampolines.

type activateCompletionHandler struct {
	lpVtbl uintptr
	refs   int32
	once   sync.Once
	done   chan struct{}
}

var (
	activateHandlerRegistry sync.Map // uintptr(this) -> *activateCompletionHandler, keeps the object alive while COM holds a pointer

	activateHandlerVtbl = [4]uintptr{
		syscall.NewCallback(activateHandlerQueryInterface),
		syscall.NewCallback(activateHandlerAddRef),
		syscall.NewCallback(activateHandlerRelease),
		syscall.NewCallback(activateHandlerActivateCompleted),
	}
	activateHandlerVtblPtr = uintptr(unsafe.Pointer(&activateHandlerVtbl[0]))
)

func newActivateCompletionHandler() *activateCompletionHandler {
	h := &activateCompletionHandler{lpVtbl: activateHandlerVtblPtr, refs: 1, done: make(chan struct{})}
	activateHandlerRegistry.Store(uintptr(unsafe.Pointer(h)), h)
	return h
}

func (h *activateCompletionHandler) ptr() uintptr { return uintptr(unsafe.Pointer(h)) }

func (h *activateCompletionHandler) release() {
	activateHandlerRelease(h.ptr())
}

func activateHandlerQueryInterface(this, _riid, ppv uintptr) uintptr {
	if ppv != 0 {
		*(*uintptr)(unsafe.Pointer(ppv)) = this
	}
	activateHandlerAddRef(this)
	return 0
}

func activateHandlerAddRef(this uintptr) uintptr {
	v, ok := activateHandlerRegistry.Load(this)
	if !ok {
		return 1
	}
	h := v.(*activateCompletionHandler)
	return uintptr(atomic.AddInt32(&h.refs, 1))
}

func activateHandlerRelease(this uintptr) uintptr {
	v, ok := activateHandlerRegistry.Load(this)
	if !ok {
		return 0
	}
	h := v.(*activateCompletionHandler)
	n := atomic.AddInt32(&h.refs, -1)
	if n <= 0 {
		activateHandlerRegistry.Delete(this)
	}
	return uintptr(n)
}

func activateHandlerActivateCompleted(this, _operation uintptr) uintptr {
	if v, ok := activateHandlerRegistry.Load(this); ok {
		h := v.(*activateCompletionHandler)
		h.once.Do(func() { close(h.done) })
	}
	return 0
}
