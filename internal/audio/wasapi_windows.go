//go:build windows && (amd64 || arm64)

package audio

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"syscall"
	"unsafe"

	ole "github.com/go-ole/go-ole"
	"golang.org/x/sys/windows"
)

// Core Audio COM GUIDs
var (
	clsidMMDeviceEnumerator = ole.NewGUID("{BCDE0395-E52F-467C-8E3D-C4579291692E}")
	iidIMMDeviceEnumerator  = ole.NewGUID("{A95664D2-9614-4F35-A746-DE8DB63617E6}")
	iidIAudioClient         = ole.NewGUID("{1CB9AD4C-DBFA-4C32-B178-C2F568A703B2}")
	iidIAudioCaptureClient  = ole.NewGUID("{C8ADBD64-E71E-48A0-A4DE-185C395CD317}")
)

const (
	eCapture = 1

	deviceStateActive = 0x1
	clsctxAll         = 0x1 | 0x2 | 0x4 | 0x10

	audclntShareModeShared          = 0
	audclntStreamFlagsEventCallback = 0x00040000
	audclntStreamFlagsNoPersist     = 0x00080000
	audclntBufferFlagsSilent        = 0x2
	audclntBufferFlagsDiscontinuity = 0x1
	audclntSBufferEmpty             = 0x08890001

	// S_FALSE and RPC_E_CHANGED_MODE both leave COM usable on the thread
	sFalse          = 0x00000001
	rpcEChangedMode = 0x80010106

	// COM vtable indices (IUnknown = 0,1,2; interface methods start at 3)
	mmdeEnumAudioEndpoints      = 3  // IMMDeviceEnumerator::EnumAudioEndpoints
	mmdeGetDefaultAudioEndpoint = 4  // IMMDeviceEnumerator::GetDefaultAudioEndpoint
	mmDeviceActivate            = 3  // IMMDevice::Activate
	mmDeviceGetID               = 5  // IMMDevice::GetId (after OpenPropertyStore=4)
	mmdcGetCount                = 3  // IMMDeviceCollection::GetCount
	mmdcItem                    = 4  // IMMDeviceCollection::Item
	audioClientInitialize       = 3  // IAudioClient::Initialize
	audioClientGetMixFormat     = 8  // IAudioClient::GetMixFormat
	audioClientStart            = 10 // IAudioClient::Start
	audioClientStop             = 11 // IAudioClient::Stop
	audioClientSetEventHandle   = 13 // IAudioClient::SetEventHandle
	audioClientGetService       = 14 // IAudioClient::GetService
	capClientGetBuffer          = 3  // IAudioCaptureClient::GetBuffer
	capClientReleaseBuffer      = 4  // IAudioCaptureClient::ReleaseBuffer
)

// waveFormatEx is the WAVEFORMATEX layout
type waveFormatEx struct {
	FormatTag      uint16
	Channels       uint16
	SamplesPerSec  uint32
	AvgBytesPerSec uint32
	BlockAlign     uint16
	BitsPerSample  uint16
	CbSize         uint16
}

// comCall invokes a COM method by vtable index and converts a failed HRESULT
func comCall(obj uintptr, vtableIdx int, op string, args ...uintptr) (uintptr, error) {
	vtablePtr := *(*uintptr)(unsafe.Pointer(obj))
	fnPtr := *(*uintptr)(unsafe.Pointer(vtablePtr + uintptr(vtableIdx)*unsafe.Sizeof(uintptr(0))))
	allArgs := make([]uintptr, 0, 1+len(args))
	allArgs = append(allArgs, obj)
	allArgs = append(allArgs, args...)
	ret, _, _ := syscall.SyscallN(fnPtr, allArgs...)
	if failed(ret) {
		return ret, &HRESULTError{Op: op, Code: uint32(ret)}
	}
	return ret, nil
}

// comRelease calls IUnknown::Release
func comRelease(obj uintptr) {
	if obj == 0 {
		return
	}
	vtbl := (*ole.IUnknownVtbl)(unsafe.Pointer(*(*uintptr)(unsafe.Pointer(obj))))
	syscall.SyscallN(vtbl.Release, obj)
}

// comInit joins the multithreaded apartment on the current OS thread
func comInit() error {
	err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED)
	if err == nil {
		return nil
	}
	var oleErr *ole.OleError
	if errors.As(err, &oleErr) {
		switch uint32(oleErr.Code()) {
		case sFalse, rpcEChangedMode:
			return nil
		}
		return &HRESULTError{Op: "CoInitializeEx", Code: uint32(oleErr.Code())}
	}
	return fmt.Errorf("CoInitializeEx: %w", err)
}

func newDeviceEnumerator() (uintptr, error) {
	unk, err := ole.CreateInstance(clsidMMDeviceEnumerator, iidIMMDeviceEnumerator)
	if err != nil {
		var oleErr *ole.OleError
		if errors.As(err, &oleErr) {
			return 0, &HRESULTError{Op: "CoCreateInstance MMDeviceEnumerator", Code: uint32(oleErr.Code())}
		}
		return 0, fmt.Errorf("CoCreateInstance MMDeviceEnumerator: %w", err)
	}
	return uintptr(unsafe.Pointer(unk)), nil
}

// endpointID returns the endpoint ID string of an IMMDevice
func endpointID(device uintptr) (string, error) {
	var idPtr *uint16
	if _, err := comCall(device, mmDeviceGetID, "GetId", uintptr(unsafe.Pointer(&idPtr))); err != nil {
		return "", err
	}
	defer ole.CoTaskMemFree(uintptr(unsafe.Pointer(idPtr)))
	return windows.UTF16PtrToString(idPtr), nil
}

// activeCaptureEndpoints returns every active capture endpoint; the caller releases them
func activeCaptureEndpoints(enumerator uintptr) ([]uintptr, error) {
	var collection uintptr
	if _, err := comCall(enumerator, mmdeEnumAudioEndpoints, "EnumAudioEndpoints",
		uintptr(eCapture), uintptr(deviceStateActive), uintptr(unsafe.Pointer(&collection))); err != nil {
		return nil, err
	}
	defer comRelease(collection)

	var count uint32
	if _, err := comCall(collection, mmdcGetCount, "GetCount", uintptr(unsafe.Pointer(&count))); err != nil {
		return nil, err
	}

	devices := make([]uintptr, 0, count)
	for i := uint32(0); i < count; i++ {
		var device uintptr
		if _, err := comCall(collection, mmdcItem, "Item", uintptr(i), uintptr(unsafe.Pointer(&device))); err != nil {
			for _, d := range devices {
				comRelease(d)
			}
			return nil, err
		}
		devices = append(devices, device)
	}
	return devices, nil
}

// WASAPIDriver implements Driver using shared-mode, event-driven WASAPI
type WASAPIDriver struct{}

// NewWASAPIDriver creates a new WASAPI driver
func NewWASAPIDriver() (*WASAPIDriver, error) {
	return &WASAPIDriver{}, nil
}

// Name returns the backend name
func (d *WASAPIDriver) Name() string {
	return BackendWASAPI
}

// ListDevices returns the active capture endpoints, named by endpoint ID
func (d *WASAPIDriver) ListDevices() ([]Device, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := comInit(); err != nil {
		return nil, err
	}

	enumerator, err := newDeviceEnumerator()
	if err != nil {
		return nil, err
	}
	defer comRelease(enumerator)

	var defaultID string
	var defaultDevice uintptr
	if _, err := comCall(enumerator, mmdeGetDefaultAudioEndpoint, "GetDefaultAudioEndpoint",
		uintptr(eCapture), uintptr(RoleCommunications), uintptr(unsafe.Pointer(&defaultDevice))); err == nil {
		defaultID, _ = endpointID(defaultDevice)
		comRelease(defaultDevice)
	}

	endpoints, err := activeCaptureEndpoints(enumerator)
	if err != nil {
		return nil, err
	}

	result := make([]Device, 0, len(endpoints))
	for i, device := range endpoints {
		id, err := endpointID(device)
		comRelease(device)
		if err != nil {
			continue
		}
		result = append(result, Device{
			ID:        i,
			Name:      id,
			IsDefault: id == defaultID,
		})
	}
	return result, nil
}

// NewSession returns an uninitialized WASAPI capture session
func (d *WASAPIDriver) NewSession(config Config) Session {
	return &wasapiSession{config: config, ready: make(chan struct{}, 1)}
}

// Close is a no-op; every COM object is owned by a session
func (d *WASAPIDriver) Close() error {
	return nil
}

// wasapiSession owns one IAudioClient in shared mode with event-driven buffering
type wasapiSession struct {
	mu            sync.Mutex
	config        Config
	enumerator    uintptr
	device        uintptr
	audioClient   uintptr
	captureClient uintptr
	mixFormat     *waveFormatEx
	format        Format
	captureEvent  windows.Handle
	closeEvent    windows.Handle
	ready         chan struct{}
	watcherDone   chan struct{}
	streaming     bool
	heldFrames    uint32
	held          bool
}

func (s *wasapiSession) Initialize() error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := comInit(); err != nil {
		return err
	}

	enumerator, err := newDeviceEnumerator()
	if err != nil {
		return err
	}
	s.enumerator = enumerator

	if err := s.openDevice(); err != nil {
		return err
	}

	var audioClient uintptr
	if _, err := comCall(s.device, mmDeviceActivate, "Activate IAudioClient",
		uintptr(unsafe.Pointer(iidIAudioClient)),
		uintptr(clsctxAll),
		0,
		uintptr(unsafe.Pointer(&audioClient)),
	); err != nil {
		return err
	}
	s.audioClient = audioClient

	var mixFormatPtr uintptr
	if _, err := comCall(audioClient, audioClientGetMixFormat, "GetMixFormat",
		uintptr(unsafe.Pointer(&mixFormatPtr))); err != nil {
		return err
	}
	// owned until Close
	s.mixFormat = (*waveFormatEx)(unsafe.Pointer(mixFormatPtr))
	s.format = Format{
		Channels:      int(s.mixFormat.Channels),
		SampleRate:    int(s.mixFormat.SamplesPerSec),
		BitsPerSample: int(s.mixFormat.BitsPerSample),
	}

	latency := s.config.Latency
	if latency <= 0 {
		latency = DefaultLatency
	}
	// REFERENCE_TIME is in 100ns units
	bufferDuration := latency.Nanoseconds() / 100

	if _, err := comCall(audioClient, audioClientInitialize, "IAudioClient::Initialize",
		uintptr(audclntShareModeShared),
		uintptr(audclntStreamFlagsEventCallback|audclntStreamFlagsNoPersist),
		uintptr(bufferDuration),
		0, // periodicity
		mixFormatPtr,
		0, // AudioSessionGuid
	); err != nil {
		return err
	}

	var captureClient uintptr
	if _, err := comCall(audioClient, audioClientGetService, "GetService IAudioCaptureClient",
		uintptr(unsafe.Pointer(iidIAudioCaptureClient)),
		uintptr(unsafe.Pointer(&captureClient)),
	); err != nil {
		return err
	}
	s.captureClient = captureClient

	captureEvent, err := windows.CreateEvent(nil, 0, 0, nil)
	if err != nil {
		return fmt.Errorf("CreateEvent capture: %w", err)
	}
	s.captureEvent = captureEvent

	closeEvent, err := windows.CreateEvent(nil, 1, 0, nil)
	if err != nil {
		return fmt.Errorf("CreateEvent close: %w", err)
	}
	s.closeEvent = closeEvent

	if _, err := comCall(audioClient, audioClientSetEventHandle, "SetEventHandle",
		uintptr(captureEvent)); err != nil {
		return err
	}

	s.watcherDone = make(chan struct{})
	go s.watch(captureEvent, closeEvent, s.watcherDone)
	return nil
}

// openDevice resolves the configured endpoint
func (s *wasapiSession) openDevice() error {
	if s.config.DeviceID < 0 {
		var device uintptr
		if _, err := comCall(s.enumerator, mmdeGetDefaultAudioEndpoint, "GetDefaultAudioEndpoint",
			uintptr(eCapture), uintptr(s.config.Role), uintptr(unsafe.Pointer(&device))); err != nil {
			return err
		}
		s.device = device
		return nil
	}

	endpoints, err := activeCaptureEndpoints(s.enumerator)
	if err != nil {
		return err
	}
	for i, device := range endpoints {
		if i == s.config.DeviceID {
			s.device = device
			continue
		}
		comRelease(device)
	}
	if s.device == 0 {
		return fmt.Errorf("invalid device ID: %d", s.config.DeviceID)
	}
	return nil
}

// watch bridges the OS capture event to the Ready channel
func (s *wasapiSession) watch(captureEvent, closeEvent windows.Handle, done chan struct{}) {
	defer close(done)
	handles := []windows.Handle{closeEvent, captureEvent}
	for {
		event, err := windows.WaitForMultipleObjects(handles, false, windows.INFINITE)
		if err != nil || event == windows.WAIT_OBJECT_0 {
			return
		}
		select {
		case s.ready <- struct{}{}:
		default:
		}
	}
}

func (s *wasapiSession) Format() Format {
	return s.format
}

func (s *wasapiSession) Ready() <-chan struct{} {
	return s.ready
}

// BindThread joins the calling thread to the multithreaded apartment
func (s *wasapiSession) BindThread() error {
	return comInit()
}

// onCOMThread runs fn on a locked OS thread that has joined the MTA
func onCOMThread(fn func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := comInit(); err != nil {
		return err
	}
	return fn()
}

func (s *wasapiSession) StartStreaming() error {
	return onCOMThread(s.startStreaming)
}

func (s *wasapiSession) startStreaming() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.audioClient == 0 || s.captureClient == 0 {
		return ErrNotInitialized
	}
	if s.streaming {
		return nil
	}
	if _, err := comCall(s.audioClient, audioClientStart, "IAudioClient::Start"); err != nil {
		return err
	}
	s.streaming = true
	return nil
}

func (s *wasapiSession) StopStreaming() error {
	return onCOMThread(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.stopLocked()
	})
}

func (s *wasapiSession) stopLocked() error {
	if s.audioClient == 0 || !s.streaming {
		return nil
	}
	s.streaming = false
	_, err := comCall(s.audioClient, audioClientStop, "IAudioClient::Stop")
	return err
}

func (s *wasapiSession) Pull() (Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.captureClient == 0 {
		return Packet{}, ErrNotInitialized
	}
	if s.held {
		return Packet{}, fmt.Errorf("audio: previous packet of %d frames not released", s.heldFrames)
	}

	var dataPtr uintptr
	var numFrames uint32
	var flags uint32
	hr, err := comCall(s.captureClient, capClientGetBuffer, "IAudioCaptureClient::GetBuffer",
		uintptr(unsafe.Pointer(&dataPtr)),
		uintptr(unsafe.Pointer(&numFrames)),
		uintptr(unsafe.Pointer(&flags)),
		0, // devicePosition
		0, // qpcPosition
	)
	if err != nil {
		return Packet{}, err
	}
	if uint32(hr) == audclntSBufferEmpty {
		return Packet{}, ErrNoData
	}
	if numFrames == 0 {
		comCall(s.captureClient, capClientReleaseBuffer, "IAudioCaptureClient::ReleaseBuffer", 0)
		return Packet{}, ErrNoData
	}

	s.held = true
	s.heldFrames = numFrames

	var packetFlags PacketFlags
	if flags&audclntBufferFlagsSilent != 0 {
		packetFlags |= FlagSilent
	}
	if flags&audclntBufferFlagsDiscontinuity != 0 {
		packetFlags |= FlagDiscontinuity
	}

	var data []byte
	if dataPtr != 0 {
		size := int(numFrames) * int(s.mixFormat.BlockAlign)
		data = unsafe.Slice((*byte)(unsafe.Pointer(dataPtr)), size)
	}
	return Packet{Data: data, Frames: int(numFrames), Flags: packetFlags}, nil
}

func (s *wasapiSession) Release(frames int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.captureClient == 0 {
		return ErrNotInitialized
	}
	if !s.held {
		return ErrNotHeld
	}
	s.held = false
	s.heldFrames = 0
	_, err := comCall(s.captureClient, capClientReleaseBuffer, "IAudioCaptureClient::ReleaseBuffer", uintptr(frames))
	return err
}

func (s *wasapiSession) Close() error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	// releasing still proceeds if the apartment cannot be joined
	_ = comInit()

	// the watcher holds no lock; stop it first
	if s.closeEvent != 0 {
		windows.SetEvent(s.closeEvent)
	}
	if s.watcherDone != nil {
		<-s.watcherDone
		s.watcherDone = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.stopLocked()

	comRelease(s.captureClient)
	s.captureClient = 0
	comRelease(s.audioClient)
	s.audioClient = 0
	comRelease(s.device)
	s.device = 0
	comRelease(s.enumerator)
	s.enumerator = 0

	if s.mixFormat != nil {
		ole.CoTaskMemFree(uintptr(unsafe.Pointer(s.mixFormat)))
		s.mixFormat = nil
	}
	if s.captureEvent != 0 {
		windows.CloseHandle(s.captureEvent)
		s.captureEvent = 0
	}
	if s.closeEvent != 0 {
		windows.CloseHandle(s.closeEvent)
		s.closeEvent = 0
	}
	s.held = false
	s.heldFrames = 0
	return err
}
