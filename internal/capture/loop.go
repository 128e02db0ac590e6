package capture

import (
	"errors"
	"runtime"

	"github.com/google/uuid"

	"github.com/yok-tottii/EzCapture/internal/audio"
	"github.com/yok-tottii/EzCapture/internal/logger"
	"github.com/yok-tottii/EzCapture/internal/telemetry"
)

// captureLoop drains one session into chunks
type captureLoop struct {
	session   audio.Session
	format    audio.Format
	frameSize int
	sessionID uuid.UUID

	acc      *accumulator
	pool     *bufferPool
	chunks   chan *Chunk
	policy   OverflowPolicy
	shutdown <-chan struct{}

	metrics *telemetry.SessionMetrics
	log     *logger.Logger
	seq     uint64
}

// run services readiness signals until shutdown is closed, then closes done
func (l *captureLoop) run(done chan<- struct{}) {
	defer close(done)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if b, ok := l.session.(audio.ThreadBinder); ok {
		if err := b.BindThread(); err != nil {
			l.log.Warn("Session %s: failed to prepare capture thread: %v", l.sessionID, err)
		}
	}

	ready := l.session.Ready()
	for {
		select {
		case <-l.shutdown:
			l.exit()
			return
		case <-ready:
			// shutdown wins over a pending wake-up
			select {
			case <-l.shutdown:
				l.exit()
				return
			default:
			}
			l.service()
		}
	}
}

// service performs one pull for one wake-up
func (l *captureLoop) service() {
	packet, err := l.session.Pull()
	if errors.Is(err, audio.ErrNoData) {
		l.metrics.RecordWakeup(true)
		return
	}
	l.metrics.RecordWakeup(false)
	if err != nil {
		l.metrics.RecordPullError(err)
		return
	}
	if packet.Discontinuous() {
		l.metrics.RecordDiscontinuity()
	}

	data := packet.Data
	if size := packet.Frames * l.frameSize; size < len(data) {
		data = data[:size]
	}

	if packet.Silent() {
		l.metrics.RecordPacket(len(data), true)
	} else {
		l.metrics.RecordPacket(len(data), false)
		l.acc.write(data, l.emit)
	}

	if err := l.session.Release(packet.Frames); err != nil {
		l.metrics.RecordReleaseError(err)
	}
}

// emit wraps a full buffer in a Chunk and delivers it
func (l *captureLoop) emit(buf []byte, n int) {
	l.seq++
	chunk := newChunk(buf, n, l.pool, l.seq, l.sessionID, l.format)
	l.metrics.RecordChunk(n)
	deliver(l.chunks, chunk, l.policy, l.shutdown, l.metrics)
}

// exit discards the unflushed tail
func (l *captureLoop) exit() {
	tail := l.acc.discard()
	l.metrics.RecordTailDropped(tail)
	if tail > 0 {
		l.log.Info("Session %s stopped with %d unflushed bytes discarded", l.sessionID, tail)
	}
}
