package audio

import (
	"errors"
	"fmt"
	"time"
)

// Backend names accepted by OpenDriver
const (
	BackendAuto      = "auto"
	BackendWASAPI    = "wasapi"
	BackendPortAudio = "portaudio"
	BackendMalgo     = "malgo"
)

// DefaultLatency is the stream latency requested when none is configured
const DefaultLatency = 30 * time.Millisecond

var (
	// ErrNoData is returned by Pull when the device has nothing buffered
	ErrNoData = errors.New("audio: no frames available")
	// ErrNotInitialized is returned when a session is used before Initialize succeeded
	ErrNotInitialized = errors.New("audio: session not initialized")
	// ErrNotHeld is returned by Release when no packet is outstanding
	ErrNotHeld = errors.New("audio: no packet to release")
	// ErrUnsupportedBackend is returned when a backend is not built for this platform
	ErrUnsupportedBackend = errors.New("audio: backend not supported on this platform")
)

// Device represents an audio input device
type Device struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
}

// Role selects which default endpoint a backend opens
type Role int

const (
	// RoleConsole is the default device for games and system sounds
	RoleConsole Role = iota
	// RoleMultimedia is the default device for music and movies
	RoleMultimedia
	// RoleCommunications is the default device for voice communication
	RoleCommunications
)

// String returns the string representation of the role
func (r Role) String() string {
	switch r {
	case RoleConsole:
		return "console"
	case RoleMultimedia:
		return "multimedia"
	case RoleCommunications:
		return "communications"
	default:
		return "unknown"
	}
}

// Config holds the parameters of a capture session
type Config struct {
	DeviceID int // -1 means the default device for Role
	Latency  time.Duration
	Role     Role
}

// DefaultConfig returns the default session configuration
// Device: system default for the communications role
// Latency: 30ms
func DefaultConfig() Config {
	return Config{
		DeviceID: -1,
		Latency:  DefaultLatency,
		Role:     RoleCommunications,
	}
}

// Format is the negotiated sample format of a session
type Format struct {
	Channels      int `json:"channels"`
	SampleRate    int `json:"sample_rate"`
	BitsPerSample int `json:"bits_per_sample"`
}

// FrameSize returns the size in bytes of one sample period across all channels
func (f Format) FrameSize() int {
	return f.Channels * (f.BitsPerSample / 8)
}

// BytesPerSecond returns the data rate of the format
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.FrameSize()
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dbit/%dch", f.SampleRate, f.BitsPerSample, f.Channels)
}

// PacketFlags describe a pulled block of frames
type PacketFlags uint32

const (
	// FlagSilent marks a block that must be treated as silence
	FlagSilent PacketFlags = 1 << iota
	// FlagDiscontinuity marks a gap before this block (device overrun)
	FlagDiscontinuity
)

// Packet is a block of frames returned by Session.Pull.
// Data is only valid until the matching Release call.
type Packet struct {
	Data   []byte
	Frames int
	Flags  PacketFlags
}

// Silent reports whether the packet is flagged as silence
func (p Packet) Silent() bool {
	return p.Flags&FlagSilent != 0
}

// Discontinuous reports whether frames were lost before this packet
func (p Packet) Discontinuous() bool {
	return p.Flags&FlagDiscontinuity != 0
}

// Driver is the interface for an audio backend.
// A Driver lists devices and creates sessions; it is not tied to one stream.
type Driver interface {
	// Name returns the backend name
	Name() string

	// ListDevices returns a list of available audio input devices
	ListDevices() ([]Device, error)

	// NewSession returns an uninitialized capture session
	NewSession(config Config) Session

	// Close releases backend-wide resources
	Close() error
}

// Session is one negotiated connection to the default capture device.
//
// Initialize stops at the first failing step and leaves whatever it
// acquired recorded on the session; Close releases it. Close is
// idempotent and safe after a failed Initialize.
type Session interface {
	// Initialize opens the device, negotiates the format and binds the readiness signal
	Initialize() error

	// Format returns the negotiated format (zero before Initialize)
	Format() Format

	// Ready returns the readiness signal. It holds at most one pending wake-up.
	Ready() <-chan struct{}

	// StartStreaming starts the device stream
	StartStreaming() error

	// StopStreaming stops the device stream. Calling it on a stopped stream is a no-op.
	StopStreaming() error

	// Pull returns the frames currently available without blocking
	Pull() (Packet, error)

	// Release hands a pulled packet back to the device. Call exactly once per successful Pull.
	Release(frames int) error

	// Close releases every resource acquired by Initialize
	Close() error
}

// ThreadBinder is implemented by sessions that need per-thread setup before
// Pull and Release. The capture loop calls BindThread once on its locked OS
// thread before the first Pull.
type ThreadBinder interface {
	BindThread() error
}
