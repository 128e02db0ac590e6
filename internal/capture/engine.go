package capture

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yok-tottii/EzCapture/internal/audio"
	"github.com/yok-tottii/EzCapture/internal/logger"
	"github.com/yok-tottii/EzCapture/internal/telemetry"
)

const (
	// DefaultBufferSize is the accumulation capacity used until Configure is called
	DefaultBufferSize = 128 * 1024
	// MaxBufferSize is the largest accepted accumulation capacity
	MaxBufferSize = 10000000
	// DefaultQueueSize is the capacity of the chunk channel
	DefaultQueueSize = 16
)

// apiLock serializes Start, Stop and Configure across every engine in the
// process; the platform audio APIs are not safe to set up concurrently.
var apiLock sync.Mutex

// State represents the engine state
type State int

const (
	// Idle means no session is running
	Idle State = iota
	// Started means a session is streaming and the capture loop is running
	Started
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Started:
		return "Started"
	default:
		return "Unknown"
	}
}

type options struct {
	latency   time.Duration
	deviceID  int
	role      audio.Role
	queueSize int
	policy    OverflowPolicy
	discard   bool
	log       *logger.Logger
	recorder  *telemetry.Recorder
}

// Option configures an Engine
type Option func(*options)

// WithLatency sets the requested stream latency
func WithLatency(latency time.Duration) Option {
	return func(o *options) {
		if latency > 0 {
			o.latency = latency
		}
	}
}

// WithDevice selects an input device by backend index; -1 is the default device
func WithDevice(id int) Option {
	return func(o *options) {
		o.deviceID = id
	}
}

// WithRole selects which default endpoint is opened
func WithRole(role audio.Role) Option {
	return func(o *options) {
		o.role = role
	}
}

// WithQueueSize sets the capacity of the chunk channel
func WithQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithOverflowPolicy sets what happens when the chunk channel is full
func WithOverflowPolicy(policy OverflowPolicy) Option {
	return func(o *options) {
		o.policy = policy
	}
}

// WithDiscardOnStop makes Stop release chunks still queued on the channel
func WithDiscardOnStop(discard bool) Option {
	return func(o *options) {
		o.discard = discard
	}
}

// WithLogger sets the engine logger
func WithLogger(log *logger.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithRecorder sets the telemetry recorder
func WithRecorder(recorder *telemetry.Recorder) Option {
	return func(o *options) {
		o.recorder = recorder
	}
}

// Engine captures audio from one driver into fixed-size chunks
type Engine struct {
	driver audio.Driver
	opts   options
	chunks chan *Chunk

	// guarded by apiLock for writes and by mu for reads
	mu         sync.Mutex
	state      State
	bufferSize int
	format     audio.Format
	closed     bool

	// owned by apiLock
	session  audio.Session
	shutdown chan struct{}
	done     chan struct{}
	metrics  *telemetry.SessionMetrics
}

// New creates an idle engine on top of driver
func New(driver audio.Driver, opts ...Option) *Engine {
	o := options{
		latency:   audio.DefaultLatency,
		deviceID:  -1,
		role:      audio.RoleCommunications,
		queueSize: DefaultQueueSize,
		policy:    DropNewest,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Nop()
	}
	o.log = o.log.Named("capture")
	if o.recorder == nil {
		o.recorder = telemetry.NewRecorder(o.log)
	}

	return &Engine{
		driver:     driver,
		opts:       o,
		chunks:     make(chan *Chunk, o.queueSize),
		state:      Idle,
		bufferSize: DefaultBufferSize,
	}
}

// Chunks returns the channel full chunks are delivered on.
// The receiver owns one reference to each chunk and must Release it.
//
// The channel outlives sessions. Chunks queued when Stop returns stay
// receivable and are followed by the next session's chunks after a
// restart; SessionID tells them apart. WithDiscardOnStop releases them
// on Stop instead.
func (e *Engine) Chunks() <-chan *Chunk {
	return e.chunks
}

// Start opens a session and starts capturing. It is a no-op when already started.
// On failure every acquired resource is released and a *StartError is returned.
func (e *Engine) Start() error {
	apiLock.Lock()
	defer apiLock.Unlock()

	e.mu.Lock()
	state, closed, bufferSize := e.state, e.closed, e.bufferSize
	e.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if state == Started {
		return nil
	}

	session := e.driver.NewSession(audio.Config{
		DeviceID: e.opts.deviceID,
		Latency:  e.opts.latency,
		Role:     e.opts.role,
	})
	e.session = session

	if err := session.Initialize(); err != nil {
		e.stopLocked()
		return &StartError{Op: "initialize", Err: err}
	}

	format := session.Format()
	if format.FrameSize() <= 0 {
		e.stopLocked()
		return &StartError{Op: "initialize", Err: fmt.Errorf("unusable format %s", format)}
	}

	sessionID := uuid.New()
	pool := newBufferPool(bufferSize)
	e.shutdown = make(chan struct{})
	e.done = make(chan struct{})
	e.metrics = e.opts.recorder.StartSession(sessionID.String(), format.String())

	loop := &captureLoop{
		session:   session,
		format:    format,
		frameSize: format.FrameSize(),
		sessionID: sessionID,
		acc:       newAccumulator(pool),
		pool:      pool,
		chunks:    e.chunks,
		policy:    e.opts.policy,
		shutdown:  e.shutdown,
		metrics:   e.metrics,
		log:       e.opts.log,
	}
	go loop.run(e.done)

	if err := session.StartStreaming(); err != nil {
		e.stopLocked()
		return &StartError{Op: "start-stream", Err: err}
	}

	e.mu.Lock()
	e.state = Started
	e.format = format
	e.mu.Unlock()

	e.opts.log.Info("Capture started: session %s, %s, buffer %d bytes, latency %v, backend %s",
		sessionID, format, bufferSize, e.opts.latency, e.driver.Name())
	return nil
}

// Stop ends the running session. It is safe to call at any time and returns
// only after the capture loop has exited; no chunk is delivered afterwards.
func (e *Engine) Stop() {
	apiLock.Lock()
	defer apiLock.Unlock()

	e.stopLocked()
}

// stopLocked tears down whatever Start acquired. apiLock must be held.
func (e *Engine) stopLocked() {
	wasStarted := e.State() == Started

	if e.shutdown != nil {
		close(e.shutdown)
		<-e.done
		e.shutdown = nil
		e.done = nil
	}

	if e.session != nil {
		if err := e.session.StopStreaming(); err != nil {
			e.opts.log.Warn("Failed to stop stream: %v", err)
		}
		if err := e.session.Close(); err != nil {
			e.opts.log.Warn("Failed to close session: %v", err)
		}
		e.session = nil
	}

	if e.opts.discard {
		if n := e.discardQueued(); n > 0 {
			e.opts.log.Info("Released %d queued chunks on stop", n)
		}
	}

	if e.metrics != nil {
		e.metrics.Finish(nil)
		e.metrics = nil
	}

	e.mu.Lock()
	e.state = Idle
	e.format = audio.Format{}
	e.mu.Unlock()

	if wasStarted {
		e.opts.log.Info("Capture stopped")
	}
}

// discardQueued releases every chunk waiting on the channel. The loop must have exited.
func (e *Engine) discardQueued() int {
	n := 0
	for {
		select {
		case c, ok := <-e.chunks:
			if !ok {
				return n
			}
			c.Release()
			e.metrics.RecordDrop()
			n++
		default:
			return n
		}
	}
}

// Configure sets the accumulation capacity in bytes for the next session
func (e *Engine) Configure(bufferSize int) error {
	apiLock.Lock()
	defer apiLock.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == Started {
		return ErrAlreadyStarted
	}
	if bufferSize < 1 || bufferSize > MaxBufferSize {
		return fmt.Errorf("%w: %d not in 1..%d", ErrBufferSize, bufferSize, MaxBufferSize)
	}
	e.bufferSize = bufferSize
	return nil
}

// SetDevice selects the input device for the next session; -1 is the default device
func (e *Engine) SetDevice(id int) error {
	apiLock.Lock()
	defer apiLock.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == Started {
		return ErrAlreadyStarted
	}
	e.opts.deviceID = id
	return nil
}

// BufferSize returns the configured accumulation capacity
func (e *Engine) BufferSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bufferSize
}

// State returns the current engine state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Format returns the negotiated format of the running session, zero when idle
func (e *Engine) Format() audio.Format {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.format
}

// Stats returns the cumulative capture counters
func (e *Engine) Stats() telemetry.Snapshot {
	return e.opts.recorder.Snapshot()
}

// Backend returns the driver name
func (e *Engine) Backend() string {
	return e.driver.Name()
}

// ListDevices returns the input devices of the driver
func (e *Engine) ListDevices() ([]audio.Device, error) {
	return e.driver.ListDevices()
}

// Close stops the engine and closes the chunk channel. The engine cannot be restarted.
func (e *Engine) Close() error {
	apiLock.Lock()
	defer apiLock.Unlock()

	e.stopLocked()

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.chunks)
	}
	return nil
}
