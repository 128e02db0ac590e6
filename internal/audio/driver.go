package audio

import (
	"fmt"
	"runtime"
	"strings"
)

// DefaultBackend returns the backend used for "auto"
// WASAPI on Windows, PortAudio everywhere else
func DefaultBackend() string {
	if runtime.GOOS == "windows" {
		return BackendWASAPI
	}
	return BackendPortAudio
}

// OpenDriver opens the named backend
func OpenDriver(name string) (Driver, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == BackendAuto {
		name = DefaultBackend()
	}

	var (
		driver Driver
		err    error
	)
	switch name {
	case BackendWASAPI:
		var d *WASAPIDriver
		if d, err = NewWASAPIDriver(); err == nil {
			driver = d
		}
	case BackendPortAudio:
		var d *PortAudioDriver
		if d, err = NewPortAudioDriver(); err == nil {
			driver = d
		}
	case BackendMalgo:
		var d *MalgoDriver
		if d, err = NewMalgoDriver(); err == nil {
			driver = d
		}
	default:
		return nil, fmt.Errorf("audio: unknown backend %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", name, err)
	}
	return driver, nil
}

// IsValidBackend reports whether name is accepted by OpenDriver
func IsValidBackend(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", BackendAuto, BackendWASAPI, BackendPortAudio, BackendMalgo:
		return true
	default:
		return false
	}
}
