package telemetry

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/yok-tottii/EzCapture/internal/logger"
)

func TestRecorderSnapshot(t *testing.T) {
	recorder := NewRecorder(logger.Nop())
	if snapshot := recorder.Snapshot(); snapshot.Sessions != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snapshot)
	}

	session := recorder.StartSession("session-1", "48000Hz/16bit/2ch")
	if session == nil {
		t.Fatalf("expected session metrics")
	}

	session.RecordWakeup(false)
	session.RecordPacket(160, false)
	session.RecordWakeup(false)
	session.RecordDiscontinuity()
	session.RecordPacket(80, true)
	session.RecordWakeup(true)
	session.RecordChunk(160)
	session.RecordDrop()
	session.RecordTailDropped(0)
	session.RecordTailDropped(40)
	session.RecordPullError(errors.New("boom"))
	session.RecordReleaseError(errors.New("boom"))

	if snapshot := recorder.Snapshot(); snapshot.ActiveSessions != 1 {
		t.Fatalf("expected one active session, got %d", snapshot.ActiveSessions)
	}

	time.Sleep(5 * time.Millisecond)
	session.Finish(nil)

	snapshot := recorder.Snapshot()
	want := Snapshot{
		Sessions:         1,
		ActiveSessions:   0,
		Wakeups:          3,
		EmptyWakeups:     1,
		Packets:          2,
		SilentPackets:    1,
		PullErrors:       1,
		ReleaseErrors:    1,
		Discontinuities:  1,
		BytesCaptured:    160,
		Chunks:           1,
		ChunkBytes:       160,
		ChunksDropped:    1,
		TailBytesDropped: 40,
	}
	if snapshot != want {
		t.Fatalf("unexpected snapshot:\n got %+v\nwant %+v", snapshot, want)
	}

	session.Finish(nil)
	if snapshot2 := recorder.Snapshot(); snapshot2 != want {
		t.Fatalf("snapshot changed unexpectedly: %+v", snapshot2)
	}
}

func TestSessionFinishWithError(t *testing.T) {
	recorder := NewRecorder(nil)
	session := recorder.StartSession("s", "16000Hz/16bit/1ch")
	session.RecordChunk(10)
	session.Finish(io.EOF)

	snapshot := recorder.Snapshot()
	if snapshot.Sessions != 1 {
		t.Fatalf("unexpected sessions: %d", snapshot.Sessions)
	}
	if snapshot.ActiveSessions != 0 {
		t.Fatalf("expected zero active sessions, got %d", snapshot.ActiveSessions)
	}
	if snapshot.Chunks != 1 {
		t.Fatalf("unexpected chunks: %d", snapshot.Chunks)
	}
}

func TestNilRecorder(t *testing.T) {
	var recorder *Recorder
	if snapshot := recorder.Snapshot(); snapshot != (Snapshot{}) {
		t.Fatalf("expected zero snapshot, got %+v", snapshot)
	}

	session := recorder.StartSession("s", "")
	if session != nil {
		t.Fatalf("expected nil session metrics from nil recorder")
	}

	// every method tolerates a nil receiver
	session.RecordWakeup(true)
	session.RecordPacket(1, false)
	session.RecordPullError(io.EOF)
	session.RecordReleaseError(io.EOF)
	session.RecordDiscontinuity()
	session.RecordChunk(1)
	session.RecordDrop()
	session.RecordTailDropped(1)
	session.Finish(nil)
}
