// Package trace defines the execution trace data model produced by the
// instrumented interpreter and consumed by the replay engine.
package trace

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StackFrame describes one frame of the call stack at a step.
type StackFrame struct {
	// Function is the name of the executing function ("<module>" at top level).
	Function string `json:"function"`

	// Line is the line currently executing within the frame.
	Line int `json:"line"`
}

// TraceStep is one instrumentation checkpoint.
type TraceStep struct {
	// Line is the source line number currently executing.
	Line int `json:"line"`

	// Stdout is the cumulative standard output produced from the start of
	// execution through this step, not just this step's delta.
	Stdout string `json:"stdout"`

	// Locals and Globals map variable names to serialized values.
	Locals  map[string]Value `json:"locals"`
	Globals map[string]Value `json:"globals"`

	// CallStack is ordered outermost first, innermost last.
	CallStack []StackFrame `json:"callStack"`
}

// ExecutionTrace is the fully materialized recording of one run.
type ExecutionTrace struct {
	Steps      []TraceStep `json:"steps"`
	TotalSteps int         `json:"totalSteps"`
	ExitCode   int         `json:"exitCode"`
	Error      string      `json:"error,omitempty"`
	Truncated  bool        `json:"truncated"`
}

// NewFailure returns an empty trace describing a failure that happened
// before any step was captured.
func NewFailure(errText string) *ExecutionTrace {
	return &ExecutionTrace{
		Steps:      []TraceStep{},
		TotalSteps: 0,
		ExitCode:   1,
		Error:      errText,
		Truncated:  false,
	}
}

// Parse decodes the tracer's stdout payload into an ExecutionTrace.
func Parse(data []byte) (*ExecutionTrace, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, fmt.Errorf("empty trace payload")
	}

	var tr ExecutionTrace
	if err := json.Unmarshal([]byte(trimmed), &tr); err != nil {
		return nil, fmt.Errorf("failed to decode trace payload: %w", err)
	}

	if tr.Steps == nil {
		tr.Steps = []TraceStep{}
	}
	if tr.TotalSteps == 0 {
		tr.TotalSteps = len(tr.Steps)
	}

	return &tr, nil
}

// Validate checks the trace invariants. maxSteps is the step cap the trace
// was requested with; pass 0 to skip the truncation check.
func (t *ExecutionTrace) Validate(maxSteps int) error {
	if t.TotalSteps < 0 {
		return fmt.Errorf("negative totalSteps %d", t.TotalSteps)
	}
	if t.TotalSteps != len(t.Steps) {
		return fmt.Errorf("totalSteps %d does not match %d steps", t.TotalSteps, len(t.Steps))
	}
	for i := 1; i < len(t.Steps); i++ {
		if !strings.HasPrefix(t.Steps[i].Stdout, t.Steps[i-1].Stdout) {
			return fmt.Errorf("stdout at step %d is not a prefix of step %d", i-1, i)
		}
	}
	if t.Truncated && maxSteps > 0 && t.TotalSteps != maxSteps {
		return fmt.Errorf("truncated trace has %d steps, expected the cap of %d", t.TotalSteps, maxSteps)
	}
	return nil
}

// FinalStdout returns the program's complete output, or "" for an empty trace.
func (t *ExecutionTrace) FinalStdout() string {
	if len(t.Steps) == 0 {
		return ""
	}
	return t.Steps[len(t.Steps)-1].Stdout
}

// Step returns the step at index, or nil when out of range.
func (t *ExecutionTrace) Step(index int) *TraceStep {
	if index < 0 || index >= len(t.Steps) {
		return nil
	}
	return &t.Steps[index]
}
