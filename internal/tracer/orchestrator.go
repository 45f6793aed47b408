// Package tracer orchestrates execution of student code under the
// instrumented interpreter and turns the raw output into execution traces.
package tracer

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jdelfino/steplab/internal/logging"
	"github.com/jdelfino/steplab/internal/trace"
)

// unsupportedMessage is the sentinel error text returned when no execution
// backend is usable in the current environment.
const unsupportedMessage = "code tracing is not yet available in this environment"

// Options configure one trace request.
type Options struct {
	// Stdin is text fed to the traced program.
	Stdin string

	// MaxSteps caps the number of captured steps; DefaultMaxSteps when zero.
	MaxSteps int
}

// RequestContext carries caller identity for backend selection.
type RequestContext struct {
	// SessionID identifies the live session, when there is one. A non-empty
	// session ID makes the sandbox backend eligible.
	SessionID string
}

// SandboxBackend runs a trace in a remote or isolated environment. A nil
// trace with a nil error means "this backend does not apply, fall through
// to local execution".
type SandboxBackend interface {
	TraceInSandbox(ctx context.Context, sessionID, code string, opts Options) (*trace.ExecutionTrace, error)
}

// Orchestrator decides how to run the tracer and folds execution-semantic
// failures into the returned trace. Only orchestration failures (timeout,
// spawn failure) are returned as errors.
type Orchestrator struct {
	local    Runner
	sandbox  SandboxBackend
	maxSteps int
	logger   zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLocalRunner sets the local execution backend. A nil runner means the
// environment has no usable local interpreter.
func WithLocalRunner(r Runner) Option {
	return func(o *Orchestrator) {
		o.local = r
	}
}

// WithSandbox sets the sandboxed execution backend.
func WithSandbox(b SandboxBackend) Option {
	return func(o *Orchestrator) {
		o.sandbox = b
	}
}

// WithDefaultMaxSteps overrides the default step cap.
func WithDefaultMaxSteps(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxSteps = n
		}
	}
}

// New creates an Orchestrator.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		maxSteps: DefaultMaxSteps,
		logger:   logging.Component("tracer"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RequestTrace runs code under instrumentation and returns the recorded
// trace. Expected execution failures (parse failure, non-zero exit,
// unsupported environment) are folded into the returned trace; only
// orchestration failures reject: *TimeoutError when the process had to be
// killed, *SpawnError when it could not be launched.
func (o *Orchestrator) RequestTrace(ctx context.Context, code string, opts Options, reqctx RequestContext) (*trace.ExecutionTrace, error) {
	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = o.maxSteps
	}
	opts.MaxSteps = maxSteps

	if reqctx.SessionID != "" && o.sandbox != nil {
		tr, err := o.sandbox.TraceInSandbox(ctx, reqctx.SessionID, code, opts)
		if err != nil {
			return nil, err
		}
		if tr != nil {
			return tr, nil
		}
		// Backend declined; fall through to local execution.
	}

	if o.local == nil {
		o.logger.Warn().Str("session_id", reqctx.SessionID).Msg("no execution backend available")
		return trace.NewFailure(unsupportedMessage), nil
	}

	out, err := o.local.Run(ctx, code, opts.Stdin, maxSteps)
	if err != nil {
		return nil, err
	}

	if out.ExitCode != 0 {
		// A non-zero exit does not by itself invalidate a parseable trace.
		o.logger.Warn().
			Int("exit_code", out.ExitCode).
			Str("stderr", strings.TrimSpace(string(out.Stderr))).
			Msg("tracer exited non-zero")
	}

	return FoldOutput(out.Stdout, out.Stderr, maxSteps, o.logger), nil
}

// FoldOutput parses raw tracer output into an ExecutionTrace, recovering a
// parse failure into a degraded trace that carries the stderr text.
func FoldOutput(stdout, stderr []byte, maxSteps int, logger zerolog.Logger) *trace.ExecutionTrace {
	tr, err := trace.Parse(stdout)
	if err != nil {
		msg := strings.TrimSpace(string(stderr))
		if msg == "" {
			msg = "failed to parse trace output"
		}
		logger.Debug().Err(err).Msg("trace payload was not parseable")
		return trace.NewFailure(msg)
	}

	if verr := tr.Validate(maxSteps); verr != nil {
		logger.Warn().Err(verr).Msg("trace violates invariants")
	}

	return tr
}
