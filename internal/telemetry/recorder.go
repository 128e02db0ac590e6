package telemetry

import (
	"sync/atomic"
	"time"

	"github.com/yok-tottii/EzCapture/internal/logger"
)

// Recorder tracks capture counters across sessions. A nil Recorder is valid and records nothing.
type Recorder struct {
	log *logger.Logger

	sessions         atomic.Uint64
	activeSessions   atomic.Int64
	wakeups          atomic.Uint64
	emptyWakeups     atomic.Uint64
	packets          atomic.Uint64
	silentPackets    atomic.Uint64
	pullErrors       atomic.Uint64
	releaseErrors    atomic.Uint64
	discontinuities  atomic.Uint64
	bytesCaptured    atomic.Uint64
	chunks           atomic.Uint64
	chunkBytes       atomic.Uint64
	chunksDropped    atomic.Uint64
	tailBytesDropped atomic.Uint64
}

// Snapshot captures cumulative metrics recorded so far.
type Snapshot struct {
	Sessions         uint64 `json:"sessions"`
	ActiveSessions   int64  `json:"active_sessions"`
	Wakeups          uint64 `json:"wakeups"`
	EmptyWakeups     uint64 `json:"empty_wakeups"`
	Packets          uint64 `json:"packets"`
	SilentPackets    uint64 `json:"silent_packets"`
	PullErrors       uint64 `json:"pull_errors"`
	ReleaseErrors    uint64 `json:"release_errors"`
	Discontinuities  uint64 `json:"discontinuities"`
	BytesCaptured    uint64 `json:"bytes_captured"`
	Chunks           uint64 `json:"chunks"`
	ChunkBytes       uint64 `json:"chunk_bytes"`
	ChunksDropped    uint64 `json:"chunks_dropped"`
	TailBytesDropped uint64 `json:"tail_bytes_dropped"`
}

// NewRecorder constructs a Recorder using the provided logger.
func NewRecorder(log *logger.Logger) *Recorder {
	if log == nil {
		log = logger.Nop()
	}
	return &Recorder{
		log: log.Named("telemetry"),
	}
}

// Snapshot returns an immutable view of the recorder totals.
func (r *Recorder) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	return Snapshot{
		Sessions:         r.sessions.Load(),
		ActiveSessions:   r.activeSessions.Load(),
		Wakeups:          r.wakeups.Load(),
		EmptyWakeups:     r.emptyWakeups.Load(),
		Packets:          r.packets.Load(),
		SilentPackets:    r.silentPackets.Load(),
		PullErrors:       r.pullErrors.Load(),
		ReleaseErrors:    r.releaseErrors.Load(),
		Discontinuities:  r.discontinuities.Load(),
		BytesCaptured:    r.bytesCaptured.Load(),
		Chunks:           r.chunks.Load(),
		ChunkBytes:       r.chunkBytes.Load(),
		ChunksDropped:    r.chunksDropped.Load(),
		TailBytesDropped: r.tailBytesDropped.Load(),
	}
}

// SessionMetrics accumulates statistics for a single capture session.
// Record methods are called from the capture loop only.
type SessionMetrics struct {
	recorder *Recorder
	log      *logger.Logger

	sessionID string
	format    string

	started       time.Time
	wakeups       int
	packets       int
	silentPackets int
	bytes         int
	chunks        int
	dropped       int
	gaps          int
	errors        int
	closed        atomic.Bool
}

// StartSession initialises a SessionMetrics instance bound to the recorder.
func (r *Recorder) StartSession(sessionID, format string) *SessionMetrics {
	if r == nil {
		return nil
	}

	r.sessions.Add(1)
	r.activeSessions.Add(1)

	r.log.Debug("session %s started (%s)", sessionID, format)

	return &SessionMetrics{
		recorder:  r,
		log:       r.log,
		sessionID: sessionID,
		format:    format,
		started:   time.Now(),
	}
}

// RecordWakeup counts a readiness signal; empty is true when the device had nothing buffered.
func (s *SessionMetrics) RecordWakeup(empty bool) {
	if s == nil {
		return
	}
	s.wakeups++
	s.recorder.wakeups.Add(1)
	if empty {
		s.recorder.emptyWakeups.Add(1)
	}
}

// RecordPacket counts a pulled packet of size bytes.
func (s *SessionMetrics) RecordPacket(size int, silent bool) {
	if s == nil {
		return
	}
	s.packets++
	s.recorder.packets.Add(1)
	if silent {
		s.silentPackets++
		s.recorder.silentPackets.Add(1)
		return
	}
	s.bytes += size
	s.recorder.bytesCaptured.Add(uint64(size))
}

// RecordPullError counts a failed pull.
func (s *SessionMetrics) RecordPullError(err error) {
	if s == nil {
		return
	}
	s.errors++
	s.recorder.pullErrors.Add(1)
	s.log.Debug("session %s: pull failed: %v", s.sessionID, err)
}

// RecordReleaseError counts a failed release.
func (s *SessionMetrics) RecordReleaseError(err error) {
	if s == nil {
		return
	}
	s.errors++
	s.recorder.releaseErrors.Add(1)
	s.log.Debug("session %s: release failed: %v", s.sessionID, err)
}

// RecordDiscontinuity counts a packet that follows lost frames.
func (s *SessionMetrics) RecordDiscontinuity() {
	if s == nil {
		return
	}
	s.gaps++
	s.recorder.discontinuities.Add(1)
}

// RecordChunk counts an emitted chunk.
func (s *SessionMetrics) RecordChunk(size int) {
	if s == nil {
		return
	}
	s.chunks++
	s.recorder.chunks.Add(1)
	s.recorder.chunkBytes.Add(uint64(size))
}

// RecordDrop counts a chunk discarded by the overflow policy.
func (s *SessionMetrics) RecordDrop() {
	if s == nil {
		return
	}
	s.dropped++
	s.recorder.chunksDropped.Add(1)
}

// RecordTailDropped counts bytes left in the accumulator when the session stopped.
func (s *SessionMetrics) RecordTailDropped(size int) {
	if s == nil || size <= 0 {
		return
	}
	s.recorder.tailBytesDropped.Add(uint64(size))
}

// Finish logs a summary and updates active session counters.
func (s *SessionMetrics) Finish(err error) {
	if s == nil {
		return
	}
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	defer s.recorder.activeSessions.Add(-1)

	duration := time.Since(s.started)
	if err != nil {
		s.log.Error("session %s completed with error after %dms: %v (wakeups=%d packets=%d silent=%d bytes=%d chunks=%d dropped=%d gaps=%d errors=%d)",
			s.sessionID, duration.Milliseconds(), err,
			s.wakeups, s.packets, s.silentPackets, s.bytes, s.chunks, s.dropped, s.gaps, s.errors)
		return
	}

	s.log.Info("session %s completed after %dms (wakeups=%d packets=%d silent=%d bytes=%d chunks=%d dropped=%d gaps=%d errors=%d)",
		s.sessionID, duration.Milliseconds(),
		s.wakeups, s.packets, s.silentPackets, s.bytes, s.chunks, s.dropped, s.gaps, s.errors)
}
