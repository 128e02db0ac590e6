package capture

import (
	"context"
	"fmt"
	"strings"

	"github.com/yok-tottii/EzCapture/internal/telemetry"
)

// OverflowPolicy decides what happens when the chunk channel is full
type OverflowPolicy int

const (
	// DropNewest releases the chunk that does not fit
	DropNewest OverflowPolicy = iota
	// DropOldest releases the oldest queued chunk to make room
	DropOldest
	// Block waits for room or for Stop
	Block
)

// String returns the string representation of the policy
func (p OverflowPolicy) String() string {
	switch p {
	case DropNewest:
		return "drop-newest"
	case DropOldest:
		return "drop-oldest"
	case Block:
		return "block"
	default:
		return "unknown"
	}
}

// ParseOverflowPolicy converts a policy name to an OverflowPolicy
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "drop-newest", "":
		return DropNewest, nil
	case "drop-oldest":
		return DropOldest, nil
	case "block":
		return Block, nil
	default:
		return DropNewest, fmt.Errorf("unknown overflow policy %q", s)
	}
}

// deliver hands c to the channel according to policy. It reports whether
// the chunk was queued; a chunk that was not queued has been released.
func deliver(ch chan *Chunk, c *Chunk, policy OverflowPolicy, shutdown <-chan struct{}, metrics *telemetry.SessionMetrics) bool {
	select {
	case ch <- c:
		return true
	default:
	}

	switch policy {
	case DropOldest:
		for {
			select {
			case old := <-ch:
				old.Release()
				metrics.RecordDrop()
			default:
			}
			select {
			case ch <- c:
				return true
			default:
			}
		}
	case Block:
		select {
		case ch <- c:
			return true
		case <-shutdown:
		}
	}

	c.Release()
	metrics.RecordDrop()
	return false
}

// Consume calls fn for every chunk received on ch and releases the chunk
// after fn returns. It returns when ch is closed, when ctx is done or when
// fn fails.
func Consume(ctx context.Context, ch <-chan *Chunk, fn func(*Chunk) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-ch:
			if !ok {
				return nil
			}
			err := fn(c)
			c.Release()
			if err != nil {
				return err
			}
		}
	}
}
