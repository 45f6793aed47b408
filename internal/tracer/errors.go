package tracer

import (
	"fmt"
	"time"
)

// TimeoutError is returned when the traced process did not exit within the
// configured window. The process has been killed by the time this is
// returned; no trace is available.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution timed out after %s", e.Timeout)
}

// SpawnError is returned when the interpreter process could not be
// launched at all.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to launch tracer %q: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}
