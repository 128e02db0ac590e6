package capture

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yok-tottii/EzCapture/internal/audio"
)

var errInjected = errors.New("injected failure")

// fakePacket is one scripted Pull result
type fakePacket struct {
	data   []byte
	silent bool
	gap    bool
	err    error
}

// fakeSession is a scripted audio.Session. Tests push packets and wait
// until the capture loop has serviced them.
type fakeSession struct {
	format   audio.Format
	initErr  error
	startErr error
	relErr   error

	ready    chan struct{}
	serviced chan struct{}

	// when set, Pull reports on pullEntered and waits for pullGate to close
	pullGate    chan struct{}
	pullEntered chan struct{}

	mu            sync.Mutex
	queue         []fakePacket
	held          bool
	initialized   bool
	streaming     bool
	startCalls    int
	bindCalls     int
	unboundPulls  int
	pullCalls     int
	stopCalls     int
	closeCalls    int
	releaseFrames []int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		format:   audio.Format{Channels: 1, SampleRate: 16000, BitsPerSample: 16},
		ready:    make(chan struct{}, 1),
		serviced: make(chan struct{}, 1024),
	}
}

func (s *fakeSession) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initErr != nil {
		return s.initErr
	}
	s.initialized = true
	return nil
}

func (s *fakeSession) Format() audio.Format {
	return s.format
}

func (s *fakeSession) Ready() <-chan struct{} {
	return s.ready
}

func (s *fakeSession) BindThread() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindCalls++
	return nil
}

func (s *fakeSession) StartStreaming() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startCalls++
	if s.startErr != nil {
		return s.startErr
	}
	s.streaming = true
	return nil
}

func (s *fakeSession) StopStreaming() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCalls++
	s.streaming = false
	return nil
}

func (s *fakeSession) Pull() (audio.Packet, error) {
	if s.pullGate != nil {
		select {
		case s.pullEntered <- struct{}{}:
		default:
		}
		<-s.pullGate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pullCalls++
	if s.bindCalls == 0 {
		s.unboundPulls++
	}

	if len(s.queue) == 0 {
		return audio.Packet{}, audio.ErrNoData
	}
	p := s.queue[0]
	s.queue = s.queue[1:]

	if p.err != nil {
		s.serviced <- struct{}{}
		return audio.Packet{}, p.err
	}

	s.held = true
	packet := audio.Packet{Data: p.data, Frames: len(p.data) / s.format.FrameSize()}
	if p.silent {
		packet.Flags |= audio.FlagSilent
	}
	if p.gap {
		packet.Flags |= audio.FlagDiscontinuity
	}
	return packet, nil
}

func (s *fakeSession) Release(frames int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	defer func() { s.serviced <- struct{}{} }()
	if !s.held {
		return audio.ErrNotHeld
	}
	s.held = false
	s.releaseFrames = append(s.releaseFrames, frames)
	return s.relErr
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	s.initialized = false
	return nil
}

// push queues a packet and raises the readiness signal without waiting
func (s *fakeSession) push(p fakePacket) {
	s.mu.Lock()
	s.queue = append(s.queue, p)
	s.mu.Unlock()
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// wake raises the readiness signal with nothing queued
func (s *fakeSession) wake() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// feed queues a packet and waits until the loop has serviced it
func (s *fakeSession) feed(t *testing.T, p fakePacket) {
	t.Helper()
	s.push(p)
	select {
	case <-s.serviced:
	case <-time.After(2 * time.Second):
		t.Fatal("capture loop did not service the packet within 2s")
	}
}

func (s *fakeSession) counts() (starts, stops, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startCalls, s.stopCalls, s.closeCalls
}

// fakeDriver hands out fakeSessions
type fakeDriver struct {
	mu       sync.Mutex
	sessions []*fakeSession
	configs  []audio.Config
	prepare  func(*fakeSession)
}

func (d *fakeDriver) Name() string {
	return "fake"
}

func (d *fakeDriver) ListDevices() ([]audio.Device, error) {
	return []audio.Device{{ID: 0, Name: "Fake Microphone", IsDefault: true}}, nil
}

func (d *fakeDriver) NewSession(config audio.Config) audio.Session {
	s := newFakeSession()
	if d.prepare != nil {
		d.prepare(s)
	}
	d.mu.Lock()
	d.sessions = append(d.sessions, s)
	d.configs = append(d.configs, config)
	d.mu.Unlock()
	return s
}

func (d *fakeDriver) Close() error {
	return nil
}

func (d *fakeDriver) sessionCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions)
}

func (d *fakeDriver) last() *fakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sessions) == 0 {
		return nil
	}
	return d.sessions[len(d.sessions)-1]
}

// pattern returns n bytes starting at value start, for ordering checks
func pattern(start, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(start + i)
	}
	return b
}

// drain receives every queued chunk without blocking
func drain(e *Engine) []*Chunk {
	var out []*Chunk
	for {
		select {
		case c, ok := <-e.Chunks():
			if !ok {
				return out
			}
			out = append(out, c)
		default:
			return out
		}
	}
}
