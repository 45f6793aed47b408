package tracer

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strconv"
	"time"
)

const (
	// DefaultMaxSteps is the step cap applied when a request does not set one.
	DefaultMaxSteps = 5000

	// DefaultTimeout is the wall-clock limit for one trace run.
	DefaultTimeout = 10 * time.Second

	// killGracePeriod bounds how long Wait may block on inherited pipes
	// after the process has been killed.
	killGracePeriod = 3 * time.Second
)

// RunOutput is the raw result of one tracer invocation.
type RunOutput struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner executes the instrumented interpreter once and returns its raw
// output. Implementations must guarantee the underlying process is
// terminated on every return path.
type Runner interface {
	Run(ctx context.Context, code, stdin string, maxSteps int) (*RunOutput, error)
}

// LocalRunner runs the tracer as an isolated local process. The tracer
// contract takes three positional arguments: source code, stdin text, and
// the step cap.
type LocalRunner struct {
	// Path is the tracer executable.
	Path string

	// Args are inserted before the positional inputs.
	Args []string

	// Timeout is the wall-clock limit; DefaultTimeout when zero.
	Timeout time.Duration
}

// NewLocalRunner creates a LocalRunner for the given executable.
func NewLocalRunner(path string, args []string, timeout time.Duration) *LocalRunner {
	return &LocalRunner{Path: path, Args: args, Timeout: timeout}
}

// Run launches the tracer and collects stdout and stderr separately.
// A non-zero exit is not an error: the caller decides whether the payload
// is still usable. Timeouts return *TimeoutError, launch failures return
// *SpawnError.
func (r *LocalRunner) Run(ctx context.Context, code, stdin string, maxSteps int) (*RunOutput, error) {
	if r.Path == "" {
		return nil, &SpawnError{Path: r.Path, Err: errors.New("no tracer executable configured")}
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := make([]string, 0, len(r.Args)+3)
	args = append(args, r.Args...)
	args = append(args, code, stdin, strconv.Itoa(maxSteps))

	cmd := exec.CommandContext(runCtx, r.Path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// CommandContext kills on deadline; WaitDelay keeps Wait from hanging
	// on pipes inherited by grandchildren after the kill.
	cmd.WaitDelay = killGracePeriod

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return nil, &TimeoutError{Timeout: timeout}
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &RunOutput{
				Stdout:   stdout.Bytes(),
				Stderr:   stderr.Bytes(),
				ExitCode: exitErr.ExitCode(),
			}, nil
		}
		return nil, &SpawnError{Path: r.Path, Err: err}
	}

	return &RunOutput{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), ExitCode: 0}, nil
}
