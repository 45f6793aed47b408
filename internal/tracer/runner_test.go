package tracer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shRunner builds a LocalRunner that runs a shell script in place of the
// tracer. The positional inputs (code, stdin, cap) arrive as $1 $2 $3.
func shRunner(script string, timeout time.Duration) *LocalRunner {
	return NewLocalRunner("/bin/sh", []string{"-c", script, "tracer"}, timeout)
}

func TestLocalRunnerCapturesStdout(t *testing.T) {
	payload := `{"steps":[],"totalSteps":0,"exitCode":0,"truncated":false}`
	r := shRunner(`printf '%s' "$1"`, 0)

	out, err := r.Run(context.Background(), payload, "", 10)
	require.NoError(t, err)
	assert.Equal(t, payload, string(out.Stdout))
	assert.Empty(t, out.Stderr)
	assert.Equal(t, 0, out.ExitCode)
}

func TestLocalRunnerPositionalInputs(t *testing.T) {
	r := shRunner(`printf '%s|%s|%s' "$1" "$2" "$3"`, 0)

	out, err := r.Run(context.Background(), "print(1)", "alice\n", 5000)
	require.NoError(t, err)
	assert.Equal(t, "print(1)|alice\n|5000", string(out.Stdout))
}

func TestLocalRunnerNonZeroExitIsNotAnError(t *testing.T) {
	r := shRunner(`echo partial; echo boom >&2; exit 3`, 0)

	out, err := r.Run(context.Background(), "code", "", 10)
	require.NoError(t, err)
	assert.Equal(t, 3, out.ExitCode)
	assert.Equal(t, "partial\n", string(out.Stdout))
	assert.Contains(t, string(out.Stderr), "boom")
}

func TestLocalRunnerTimeoutKillsProcess(t *testing.T) {
	r := shRunner(`sleep 30`, 100*time.Millisecond)

	start := time.Now()
	out, err := r.Run(context.Background(), "code", "", 10)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Nil(t, out)
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 100*time.Millisecond, timeoutErr.Timeout)

	// Run returning means the child was reaped; it must not have run to
	// completion.
	assert.Less(t, elapsed, 10*time.Second)
}

func TestLocalRunnerSpawnError(t *testing.T) {
	r := NewLocalRunner("/nonexistent/steplab-tracer", nil, 0)

	_, err := r.Run(context.Background(), "code", "", 10)
	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, "/nonexistent/steplab-tracer", spawnErr.Path)
}

func TestLocalRunnerEmptyPath(t *testing.T) {
	r := &LocalRunner{}
	_, err := r.Run(context.Background(), "code", "", 10)
	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
}
