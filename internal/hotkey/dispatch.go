package hotkey

import "context"

// Target is what hotkey events control
type Target interface {
	Start() error
	Stop()
}

// Dispatch applies events to target until ctx is done or events is closed.
// Start failures are reported to onErr and do not end the loop.
func Dispatch(ctx context.Context, events <-chan Event, target Target, onErr func(error)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Type {
			case Pressed:
				if err := target.Start(); err != nil && onErr != nil {
					onErr(err)
				}
			case Released:
				target.Stop()
			}
		}
	}
}
