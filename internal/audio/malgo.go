package audio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// MalgoDriver implements Driver using miniaudio
type MalgoDriver struct {
	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

// NewMalgoDriver creates a miniaudio context with the platform's default backends
func NewMalgoDriver() (*MalgoDriver, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize miniaudio context: %w", err)
	}
	return &MalgoDriver{ctx: ctx}, nil
}

// Name returns the backend name
func (d *MalgoDriver) Name() string {
	return BackendMalgo
}

func (d *MalgoDriver) captureDevices() ([]malgo.DeviceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctx == nil {
		return nil, ErrNotInitialized
	}
	devices, err := d.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

// ListDevices returns a list of available audio input devices
func (d *MalgoDriver) ListDevices() ([]Device, error) {
	devices, err := d.captureDevices()
	if err != nil {
		return nil, err
	}

	result := make([]Device, 0, len(devices))
	for i, info := range devices {
		result = append(result, Device{
			ID:        i,
			Name:      info.Name(),
			IsDefault: info.IsDefault != 0,
		})
	}
	return result, nil
}

// NewSession returns an uninitialized miniaudio capture session
func (d *MalgoDriver) NewSession(config Config) Session {
	return &malgoSession{driver: d, config: config}
}

// Close frees the miniaudio context
func (d *MalgoDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctx == nil {
		return nil
	}
	err := d.ctx.Uninit()
	d.ctx.Free()
	d.ctx = nil
	if err != nil {
		return fmt.Errorf("failed to uninit miniaudio context: %w", err)
	}
	return nil
}

// malgoSession captures S16 frames at the device's native rate and channel count
type malgoSession struct {
	driver    *MalgoDriver
	config    Config
	device    *malgo.Device
	format    Format
	pending   *pendingStream
	streaming bool
}

func (s *malgoSession) Initialize() error {
	d := s.driver
	d.mu.Lock()
	ctx := d.ctx
	d.mu.Unlock()
	if ctx == nil {
		return ErrNotInitialized
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	// zero selects the device's native channel count and rate
	deviceConfig.Capture.Channels = 0
	deviceConfig.SampleRate = 0

	latency := s.config.Latency
	if latency <= 0 {
		latency = DefaultLatency
	}
	deviceConfig.PeriodSizeInMilliseconds = uint32(latency.Milliseconds())

	if s.config.DeviceID >= 0 {
		devices, err := d.captureDevices()
		if err != nil {
			return err
		}
		if s.config.DeviceID >= len(devices) {
			return fmt.Errorf("invalid device ID: %d", s.config.DeviceID)
		}
		deviceConfig.Capture.DeviceID = devices[s.config.DeviceID].ID.Pointer()
	}

	// pending is created before the device so the callback never sees nil
	s.pending = newPendingStream(0)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			s.pending.push(input)
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}
	s.device = device

	s.format = Format{
		Channels:      int(device.CaptureChannels()),
		SampleRate:    int(device.SampleRate()),
		BitsPerSample: 16,
	}
	if s.format.FrameSize() <= 0 {
		return fmt.Errorf("device negotiated an unusable format %s", s.format)
	}

	s.pending.mu.Lock()
	s.pending.frameSize = s.format.FrameSize()
	s.pending.mu.Unlock()
	return nil
}

func (s *malgoSession) Format() Format {
	return s.format
}

func (s *malgoSession) Ready() <-chan struct{} {
	if s.pending == nil {
		return nil
	}
	return s.pending.ready
}

func (s *malgoSession) StartStreaming() error {
	if s.device == nil {
		return ErrNotInitialized
	}
	if s.streaming {
		return nil
	}
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("failed to start device: %w", err)
	}
	s.streaming = true
	return nil
}

func (s *malgoSession) StopStreaming() error {
	if s.device == nil || !s.streaming {
		return nil
	}
	s.streaming = false
	if err := s.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop device: %w", err)
	}
	return nil
}

func (s *malgoSession) Pull() (Packet, error) {
	if s.pending == nil {
		return Packet{}, ErrNotInitialized
	}
	return s.pending.pull()
}

func (s *malgoSession) Release(frames int) error {
	if s.pending == nil {
		return ErrNotInitialized
	}
	return s.pending.release(frames)
}

func (s *malgoSession) Close() error {
	err := s.StopStreaming()
	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}
	if s.pending != nil {
		s.pending.reset()
	}
	return err
}
