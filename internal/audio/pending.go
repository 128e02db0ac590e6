package audio

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// defaultPendingLimit caps how much a push-style backend buffers between pulls
const defaultPendingLimit = 4 * 1024 * 1024

// pendingStream adapts a push-style device callback to the pull contract.
// The device callback appends into pending and raises the readiness signal;
// Pull swaps pending out as the held packet; Release recycles it.
type pendingStream struct {
	mu           sync.Mutex
	pending      []byte
	spare        []byte
	held         []byte
	heldFrames   int
	frameSize    int
	limit        int
	discontinued bool
	ready        chan struct{}
}

func newPendingStream(frameSize int) *pendingStream {
	return &pendingStream{
		frameSize: frameSize,
		limit:     defaultPendingLimit,
		ready:     make(chan struct{}, 1),
	}
}

// push appends raw frames and signals readiness. Called from the device thread.
func (s *pendingStream) push(data []byte) {
	if len(data) == 0 {
		return
	}
	s.mu.Lock()
	if len(s.pending)+len(data) > s.limit {
		// nobody is pulling; drop the new block and flag the gap
		s.discontinued = true
		s.mu.Unlock()
		s.signal()
		return
	}
	s.pending = append(s.pending, data...)
	s.mu.Unlock()
	s.signal()
}

// pushInt16 appends interleaved 16-bit samples as little-endian bytes
func (s *pendingStream) pushInt16(samples []int16) {
	if len(samples) == 0 {
		return
	}
	s.mu.Lock()
	if len(s.pending)+len(samples)*2 > s.limit {
		s.discontinued = true
		s.mu.Unlock()
		s.signal()
		return
	}
	for _, v := range samples {
		s.pending = binary.LittleEndian.AppendUint16(s.pending, uint16(v))
	}
	s.mu.Unlock()
	s.signal()
}

func (s *pendingStream) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

func (s *pendingStream) pull() (Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.held != nil {
		return Packet{}, fmt.Errorf("audio: previous packet of %d frames not released", s.heldFrames)
	}
	if len(s.pending) < s.frameSize || s.frameSize <= 0 {
		return Packet{}, ErrNoData
	}

	frames := len(s.pending) / s.frameSize
	size := frames * s.frameSize

	s.held = s.pending[:size]
	s.heldFrames = frames
	// keep a trailing partial frame for the next pull
	s.pending = append(s.spare[:0], s.pending[size:]...)
	s.spare = nil

	var flags PacketFlags
	if s.discontinued {
		flags |= FlagDiscontinuity
		s.discontinued = false
	}
	if isDigitalSilence(s.held) {
		flags |= FlagSilent
	}

	return Packet{Data: s.held, Frames: frames, Flags: flags}, nil
}

func (s *pendingStream) release(frames int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.held == nil {
		return ErrNotHeld
	}
	if frames != s.heldFrames {
		return fmt.Errorf("audio: release of %d frames, %d were pulled", frames, s.heldFrames)
	}
	s.spare = s.held[:0]
	s.held = nil
	s.heldFrames = 0
	return nil
}

// reset drops everything buffered
func (s *pendingStream) reset() {
	s.mu.Lock()
	s.pending = s.pending[:0]
	s.held = nil
	s.heldFrames = 0
	s.discontinued = false
	s.mu.Unlock()
}

// isDigitalSilence reports whether every byte of the block is zero.
// Backends without a native silence flag report such blocks as silent.
func isDigitalSilence(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return len(data) > 0
}
