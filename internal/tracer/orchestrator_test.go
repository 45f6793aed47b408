package tracer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdelfino/steplab/internal/trace"
)

type runnerFunc func(ctx context.Context, code, stdin string, maxSteps int) (*RunOutput, error)

func (f runnerFunc) Run(ctx context.Context, code, stdin string, maxSteps int) (*RunOutput, error) {
	return f(ctx, code, stdin, maxSteps)
}

type sandboxFunc func(ctx context.Context, sessionID, code string, opts Options) (*trace.ExecutionTrace, error)

func (f sandboxFunc) TraceInSandbox(ctx context.Context, sessionID, code string, opts Options) (*trace.ExecutionTrace, error) {
	return f(ctx, sessionID, code, opts)
}

const validPayload = `{"steps":[{"line":1,"stdout":"1\n"}],"totalSteps":1,"exitCode":0,"truncated":false}`

func TestRequestTraceUnsupportedEnvironment(t *testing.T) {
	o := New() // no local runner, no sandbox

	tr, err := o.RequestTrace(context.Background(), "print(1)", Options{}, RequestContext{})
	require.NoError(t, err)
	assert.Equal(t, 0, tr.TotalSteps)
	assert.Equal(t, 1, tr.ExitCode)
	assert.False(t, tr.Truncated)
	assert.Contains(t, tr.Error, "not yet available")
}

func TestRequestTraceLocalSuccess(t *testing.T) {
	var gotCap int
	runner := runnerFunc(func(_ context.Context, code, stdin string, maxSteps int) (*RunOutput, error) {
		gotCap = maxSteps
		return &RunOutput{Stdout: []byte(validPayload)}, nil
	})
	o := New(WithLocalRunner(runner))

	tr, err := o.RequestTrace(context.Background(), "print(1)", Options{}, RequestContext{})
	require.NoError(t, err)
	assert.Equal(t, 1, tr.TotalSteps)
	assert.Equal(t, DefaultMaxSteps, gotCap, "default cap should be applied")
}

func TestRequestTraceParseFailureRecovers(t *testing.T) {
	runner := runnerFunc(func(_ context.Context, _, _ string, _ int) (*RunOutput, error) {
		return &RunOutput{
			Stdout:   []byte("Traceback (most recent call last): ..."),
			Stderr:   []byte("SyntaxError: invalid syntax\n"),
			ExitCode: 1,
		}, nil
	})
	o := New(WithLocalRunner(runner))

	tr, err := o.RequestTrace(context.Background(), "def broken(", Options{}, RequestContext{})
	require.NoError(t, err, "parse failure is recovered, not propagated")
	assert.Equal(t, 0, tr.TotalSteps)
	assert.Equal(t, 1, tr.ExitCode)
	assert.Equal(t, "SyntaxError: invalid syntax", tr.Error)
}

func TestRequestTraceParseFailureWithoutStderr(t *testing.T) {
	runner := runnerFunc(func(_ context.Context, _, _ string, _ int) (*RunOutput, error) {
		return &RunOutput{Stdout: []byte("not json")}, nil
	})
	o := New(WithLocalRunner(runner))

	tr, err := o.RequestTrace(context.Background(), "x", Options{}, RequestContext{})
	require.NoError(t, err)
	assert.Equal(t, "failed to parse trace output", tr.Error)
}

func TestRequestTraceNonZeroExitStillParses(t *testing.T) {
	runner := runnerFunc(func(_ context.Context, _, _ string, _ int) (*RunOutput, error) {
		return &RunOutput{Stdout: []byte(validPayload), Stderr: []byte("warning\n"), ExitCode: 2}, nil
	})
	o := New(WithLocalRunner(runner))

	tr, err := o.RequestTrace(context.Background(), "x", Options{}, RequestContext{})
	require.NoError(t, err)
	assert.Equal(t, 1, tr.TotalSteps)
	assert.Empty(t, tr.Error)
}

func TestRequestTraceRejectsOnTimeout(t *testing.T) {
	runner := runnerFunc(func(_ context.Context, _, _ string, _ int) (*RunOutput, error) {
		return nil, &TimeoutError{Timeout: 10 * time.Second}
	})
	o := New(WithLocalRunner(runner))

	tr, err := o.RequestTrace(context.Background(), "while True: pass", Options{}, RequestContext{})
	assert.Nil(t, tr)
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
}

func TestRequestTraceRejectsOnSpawnError(t *testing.T) {
	runner := runnerFunc(func(_ context.Context, _, _ string, _ int) (*RunOutput, error) {
		return nil, &SpawnError{Path: "pytracer", Err: errors.New("not found")}
	})
	o := New(WithLocalRunner(runner))

	_, err := o.RequestTrace(context.Background(), "x", Options{}, RequestContext{})
	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
}

func TestRequestTraceSandboxPreferred(t *testing.T) {
	sandboxTrace := &trace.ExecutionTrace{TotalSteps: 0, ExitCode: 0, Steps: []trace.TraceStep{}}
	sandbox := sandboxFunc(func(_ context.Context, sessionID, _ string, opts Options) (*trace.ExecutionTrace, error) {
		assert.Equal(t, "sess-1", sessionID)
		assert.Equal(t, 42, opts.MaxSteps)
		return sandboxTrace, nil
	})
	localCalled := false
	runner := runnerFunc(func(_ context.Context, _, _ string, _ int) (*RunOutput, error) {
		localCalled = true
		return &RunOutput{Stdout: []byte(validPayload)}, nil
	})
	o := New(WithLocalRunner(runner), WithSandbox(sandbox))

	tr, err := o.RequestTrace(context.Background(), "x", Options{MaxSteps: 42}, RequestContext{SessionID: "sess-1"})
	require.NoError(t, err)
	assert.Same(t, sandboxTrace, tr)
	assert.False(t, localCalled, "sandbox result must be returned directly")
}

func TestRequestTraceSandboxDeclinesFallsThrough(t *testing.T) {
	sandbox := sandboxFunc(func(_ context.Context, _, _ string, _ Options) (*trace.ExecutionTrace, error) {
		return nil, nil // backend does not apply
	})
	runner := runnerFunc(func(_ context.Context, _, _ string, _ int) (*RunOutput, error) {
		return &RunOutput{Stdout: []byte(validPayload)}, nil
	})
	o := New(WithLocalRunner(runner), WithSandbox(sandbox))

	tr, err := o.RequestTrace(context.Background(), "x", Options{}, RequestContext{SessionID: "sess-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, tr.TotalSteps)
}

func TestRequestTraceSandboxSkippedWithoutSession(t *testing.T) {
	sandbox := sandboxFunc(func(_ context.Context, _, _ string, _ Options) (*trace.ExecutionTrace, error) {
		t.Fatal("sandbox must not be consulted without a session id")
		return nil, nil
	})
	runner := runnerFunc(func(_ context.Context, _, _ string, _ int) (*RunOutput, error) {
		return &RunOutput{Stdout: []byte(validPayload)}, nil
	})
	o := New(WithLocalRunner(runner), WithSandbox(sandbox))

	_, err := o.RequestTrace(context.Background(), "x", Options{}, RequestContext{})
	require.NoError(t, err)
}

func TestRequestTraceSandboxErrorPropagates(t *testing.T) {
	sandbox := sandboxFunc(func(_ context.Context, _, _ string, _ Options) (*trace.ExecutionTrace, error) {
		return nil, errors.New("docker daemon unreachable")
	})
	o := New(WithSandbox(sandbox))

	_, err := o.RequestTrace(context.Background(), "x", Options{}, RequestContext{SessionID: "s"})
	require.Error(t, err)
}
