package audio

import (
	"errors"
	"fmt"
)

// hresultInfo holds a human-readable name and description for an audio HRESULT code.
type hresultInfo struct {
	Name    string
	Message string
}

// knownHResults maps Core Audio and common COM HRESULT codes to descriptions.
var knownHResults = map[uint32]hresultInfo{
	// AUDCLNT errors
	0x88890001: {"AUDCLNT_E_NOT_INITIALIZED", "the audio client has not been initialized"},
	0x88890002: {"AUDCLNT_E_ALREADY_INITIALIZED", "the audio client is already initialized"},
	0x88890003: {"AUDCLNT_E_WRONG_ENDPOINT_TYPE", "the endpoint is not a capture device"},
	0x88890004: {"AUDCLNT_E_DEVICE_INVALIDATED", "the audio device was unplugged or reconfigured"},
	0x88890005: {"AUDCLNT_E_NOT_STOPPED", "the stream was not stopped"},
	0x88890006: {"AUDCLNT_E_BUFFER_TOO_LARGE", "requested buffer is too large"},
	0x88890007: {"AUDCLNT_E_OUT_OF_ORDER", "buffer operation called out of order"},
	0x88890008: {"AUDCLNT_E_UNSUPPORTED_FORMAT", "the audio engine does not support the format"},
	0x88890009: {"AUDCLNT_E_INVALID_SIZE", "invalid buffer size"},
	0x8889000A: {"AUDCLNT_E_DEVICE_IN_USE", "the endpoint is in exclusive use by another application"},
	0x8889000B: {"AUDCLNT_E_BUFFER_OPERATION_PENDING", "a buffer operation is pending"},
	0x8889000C: {"AUDCLNT_E_THREAD_NOT_REGISTERED", "thread is not registered"},
	0x8889000E: {"AUDCLNT_E_EXCLUSIVE_MODE_NOT_ALLOWED", "exclusive mode is disabled for the device"},
	0x8889000F: {"AUDCLNT_E_ENDPOINT_CREATE_FAILED", "the endpoint could not be created"},
	0x88890010: {"AUDCLNT_E_SERVICE_NOT_RUNNING", "the Windows audio service is not running"},
	0x88890011: {"AUDCLNT_E_EVENTHANDLE_NOT_EXPECTED", "the stream was not initialized for event-driven buffering"},
	0x88890012: {"AUDCLNT_E_EXCLUSIVE_MODE_ONLY", "the stream requires exclusive mode"},
	0x88890013: {"AUDCLNT_E_BUFDURATION_PERIOD_NOT_EQUAL", "buffer duration and periodicity differ"},
	0x88890014: {"AUDCLNT_E_EVENTHANDLE_NOT_SET", "the event handle was not set"},
	0x88890015: {"AUDCLNT_E_INCORRECT_BUFFER_SIZE", "incorrect buffer size"},
	0x88890016: {"AUDCLNT_E_BUFFER_SIZE_ERROR", "buffer size error"},
	0x88890017: {"AUDCLNT_E_CPUUSAGE_EXCEEDED", "the process exceeded its audio CPU usage"},
	0x88890018: {"AUDCLNT_E_BUFFER_ERROR", "the buffer could not be retrieved"},
	0x88890019: {"AUDCLNT_E_BUFFER_SIZE_NOT_ALIGNED", "buffer size is not aligned"},
	0x88890020: {"AUDCLNT_E_INVALID_DEVICE_PERIOD", "invalid device period"},

	// General COM / Win32 errors
	0x80004002: {"E_NOINTERFACE", "the interface is not supported"},
	0x80004005: {"E_FAIL", "unspecified failure"},
	0x80070005: {"E_ACCESSDENIED", "access denied; microphone access may be disabled in privacy settings"},
	0x8007000E: {"E_OUTOFMEMORY", "not enough memory to complete the operation"},
	0x80070057: {"E_INVALIDARG", "one or more arguments are not valid"},
	0x80070490: {"E_NOTFOUND", "no capture endpoint was found"},
}

// HRESULTError is a failed COM call
type HRESULTError struct {
	Op   string
	Code uint32
}

func (e *HRESULTError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, FormatHResult(e.Code))
}

// FormatHResult returns a human-readable description of an audio HRESULT code.
// For known codes: "0x88890004: AUDCLNT_E_DEVICE_INVALIDATED: the audio device was unplugged or reconfigured"
// For unknown codes: "0x80000001: unknown HRESULT"
func FormatHResult(hr uint32) string {
	if info, ok := knownHResults[hr]; ok {
		return fmt.Sprintf("0x%08X: %s: %s", hr, info.Name, info.Message)
	}
	return fmt.Sprintf("0x%08X: unknown HRESULT", hr)
}

// IsDeviceInvalidated returns true if the device went away under the stream.
func IsDeviceInvalidated(hr uint32) bool {
	return hr == 0x88890004
}

// IsAccessDenied returns true if the HRESULT indicates the microphone is blocked.
func IsAccessDenied(hr uint32) bool {
	return hr == 0x80070005
}

// HResultCode extracts the HRESULT from an error chain
func HResultCode(err error) (uint32, bool) {
	var hrErr *HRESULTError
	if errors.As(err, &hrErr) {
		return hrErr.Code, true
	}
	return 0, false
}

// failed mirrors the FAILED() macro
func failed(hr uintptr) bool {
	return int32(uint32(hr)) < 0
}
