//go:build !(windows && (amd64 || arm64))

package audio

// WASAPIDriver is only available on 64-bit Windows
type WASAPIDriver struct{}

// NewWASAPIDriver returns ErrUnsupportedBackend on this platform
func NewWASAPIDriver() (*WASAPIDriver, error) {
	return nil, ErrUnsupportedBackend
}

// Name returns the backend name
func (d *WASAPIDriver) Name() string {
	return BackendWASAPI
}

// ListDevices returns ErrUnsupportedBackend
func (d *WASAPIDriver) ListDevices() ([]Device, error) {
	return nil, ErrUnsupportedBackend
}

// NewSession returns a session whose Initialize fails
func (d *WASAPIDriver) NewSession(config Config) Session {
	return unsupportedSession{}
}

// Close is a no-op
func (d *WASAPIDriver) Close() error {
	return nil
}

type unsupportedSession struct{}

func (unsupportedSession) Initialize() error        { return ErrUnsupportedBackend }
func (unsupportedSession) Format() Format           { return Format{} }
func (unsupportedSession) Ready() <-chan struct{}   { return nil }
func (unsupportedSession) StartStreaming() error    { return ErrUnsupportedBackend }
func (unsupportedSession) StopStreaming() error     { return nil }
func (unsupportedSession) Pull() (Packet, error)    { return Packet{}, ErrUnsupportedBackend }
func (unsupportedSession) Release(frames int) error { return ErrUnsupportedBackend }
func (unsupportedSession) Close() error             { return nil }
