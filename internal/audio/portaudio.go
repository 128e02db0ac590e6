package audio

import (
	"fmt"
	"math"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// maxPortAudioChannels caps the channel count taken from multi-channel interfaces
const maxPortAudioChannels = 2

// PortAudioDriver implements Driver using PortAudio
type PortAudioDriver struct {
	mu          sync.Mutex
	initialized bool
}

// NewPortAudioDriver creates a new PortAudio driver
func NewPortAudioDriver() (*PortAudioDriver, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &PortAudioDriver{initialized: true}, nil
}

// Name returns the backend name
func (d *PortAudioDriver) Name() string {
	return BackendPortAudio
}

// ListDevices returns a list of available audio input devices
func (d *PortAudioDriver) ListDevices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	defaultInput, err := portaudio.DefaultInputDevice()
	if err != nil {
		// continue without marking any as default
		defaultInput = nil
	}

	var result []Device
	for i, dev := range devices {
		if dev.MaxInputChannels <= 0 {
			continue
		}
		result = append(result, Device{
			ID:        i,
			Name:      dev.Name,
			IsDefault: defaultInput != nil && dev.Name == defaultInput.Name,
		})
	}

	return result, nil
}

// NewSession returns an uninitialized PortAudio capture session
func (d *PortAudioDriver) NewSession(config Config) Session {
	return &portAudioSession{config: config}
}

// Close terminates PortAudio
func (d *PortAudioDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return nil
	}
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	d.initialized = false
	return nil
}

// portAudioSession is a callback-mode input stream feeding a pendingStream
type portAudioSession struct {
	config    Config
	device    *portaudio.DeviceInfo
	format    Format
	stream    *portaudio.Stream
	pending   *pendingStream
	streaming bool
}

func (s *portAudioSession) Initialize() error {
	device, err := s.selectDevice()
	if err != nil {
		return err
	}
	s.device = device

	if device.MaxInputChannels <= 0 {
		return fmt.Errorf("selected device '%s' (ID: %d) has no input channels (output-only device)",
			device.Name, s.config.DeviceID)
	}

	channels := device.MaxInputChannels
	if channels > maxPortAudioChannels {
		channels = maxPortAudioChannels
	}
	s.format = Format{
		Channels:      channels,
		SampleRate:    int(math.Round(device.DefaultSampleRate)),
		BitsPerSample: 16,
	}
	s.pending = newPendingStream(s.format.FrameSize())

	latency := s.config.Latency
	if latency <= 0 {
		latency = DefaultLatency
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  latency,
		},
		SampleRate:      device.DefaultSampleRate,
		FramesPerBuffer: portaudio.FramesPerBufferUnspecified,
	}

	stream, err := portaudio.OpenStream(params, s.callback)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	s.stream = stream
	return nil
}

func (s *portAudioSession) selectDevice() (*portaudio.DeviceInfo, error) {
	if s.config.DeviceID < 0 {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	if s.config.DeviceID >= len(devices) {
		return nil, fmt.Errorf("invalid device ID: %d", s.config.DeviceID)
	}
	return devices[s.config.DeviceID], nil
}

// callback is called by PortAudio on its own thread when input is available
func (s *portAudioSession) callback(in []int16) {
	s.pending.pushInt16(in)
}

func (s *portAudioSession) Format() Format {
	return s.format
}

func (s *portAudioSession) Ready() <-chan struct{} {
	if s.pending == nil {
		return nil
	}
	return s.pending.ready
}

func (s *portAudioSession) StartStreaming() error {
	if s.stream == nil {
		return ErrNotInitialized
	}
	if s.streaming {
		return nil
	}
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("failed to start stream: %w", err)
	}
	s.streaming = true
	return nil
}

func (s *portAudioSession) StopStreaming() error {
	if s.stream == nil || !s.streaming {
		return nil
	}
	s.streaming = false
	if err := s.stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop stream: %w", err)
	}
	return nil
}

func (s *portAudioSession) Pull() (Packet, error) {
	if s.pending == nil {
		return Packet{}, ErrNotInitialized
	}
	return s.pending.pull()
}

func (s *portAudioSession) Release(frames int) error {
	if s.pending == nil {
		return ErrNotInitialized
	}
	return s.pending.release(frames)
}

func (s *portAudioSession) Close() error {
	var firstErr error
	if err := s.StopStreaming(); err != nil {
		firstErr = err
	}
	if s.stream != nil {
		if err := s.stream.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close stream: %w", err)
		}
		s.stream = nil
	}
	if s.pending != nil {
		s.pending.reset()
	}
	s.device = nil
	return firstErr
}
