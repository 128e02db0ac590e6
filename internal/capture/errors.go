package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrBufferSize is returned by Configure for a size outside 1..MaxBufferSize
	ErrBufferSize = errors.New("capture: buffer size out of range")
	// ErrAlreadyStarted is returned by Configure and SetDevice while a session is running
	ErrAlreadyStarted = errors.New("capture: engine already started")
	// ErrClosed is returned by Start after Close
	ErrClosed = errors.New("capture: engine closed")
	// ErrLengthSet is returned by Chunk.SetLen when the length was already set
	ErrLengthSet = errors.New("capture: chunk length already set")
)

// StartError reports which step of Start failed. The engine is Idle and
// every session resource has been released when it is returned.
type StartError struct {
	Op  string // "initialize" or "start-stream"
	Err error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("capture: %s failed: %v", e.Op, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}
