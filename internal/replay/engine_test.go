package replay

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdelfino/steplab/internal/trace"
)

func traceWithStdout(snapshots ...string) *trace.ExecutionTrace {
	steps := make([]trace.TraceStep, len(snapshots))
	for i, s := range snapshots {
		steps[i] = trace.TraceStep{Line: i + 1, Stdout: s}
	}
	return &trace.ExecutionTrace{Steps: steps, TotalSteps: len(steps)}
}

func TestAnnotateOutput(t *testing.T) {
	tr := traceWithStdout("", "A\n", "A\nB\n")

	lines := AnnotateOutput(tr)
	require.Len(t, lines, 2)
	assert.Equal(t, OutputLine{StepNumber: 2, Text: "A"}, lines[0])
	assert.Equal(t, OutputLine{StepNumber: 3, Text: "B"}, lines[1])
}

func TestAnnotateOutputMultiLineDelta(t *testing.T) {
	tr := traceWithStdout("", "A\nB\nC\n")

	lines := AnnotateOutput(tr)
	require.Len(t, lines, 3)
	for i, want := range []string{"A", "B", "C"} {
		assert.Equal(t, want, lines[i].Text)
		assert.Equal(t, 2, lines[i].StepNumber)
	}
}

func TestAnnotateOutputKeepsInteriorBlankLines(t *testing.T) {
	tr := traceWithStdout("", "A\n\nB\n")

	lines := AnnotateOutput(tr)
	require.Len(t, lines, 3)
	assert.Equal(t, "A", lines[0].Text)
	assert.Equal(t, "", lines[1].Text)
	assert.Equal(t, "B", lines[2].Text)
}

func TestAnnotateOutputPartialLine(t *testing.T) {
	// A delta without a trailing terminator still yields its content; only
	// the empty split artifact of a terminated delta is dropped.
	tr := traceWithStdout("", "prompt: ")

	lines := AnnotateOutput(tr)
	require.Len(t, lines, 1)
	assert.Equal(t, "prompt: ", lines[0].Text)
}

func TestAnnotateOutputIdempotent(t *testing.T) {
	tr := traceWithStdout("", "A\n", "A\nB\n", "A\nB\n", "A\nB\nC\n")

	first := AnnotateOutput(tr)
	second := AnnotateOutput(tr)
	assert.Equal(t, first, second)
}

func TestAnnotateOutputEmptyTrace(t *testing.T) {
	assert.Empty(t, AnnotateOutput(&trace.ExecutionTrace{}))
	assert.Empty(t, AnnotateOutput(nil))
}

func TestOutputRoundTrip(t *testing.T) {
	tr := traceWithStdout("", "hello\n", "hello\nworld\n", "hello\nworld\n\nbye\n")

	lines := AnnotateOutput(tr)
	texts := make([]string, len(lines))
	for i, line := range lines {
		texts[i] = line.Text
	}

	want := strings.TrimSuffix(tr.FinalStdout(), "\n")
	assert.Equal(t, want, strings.Join(texts, "\n"))
}

func TestVisibleOutput(t *testing.T) {
	tr := traceWithStdout("", "A\n", "A\nB\n")
	lines := AnnotateOutput(tr)

	// At step index 0 only step-1 lines are visible: none here.
	assert.Empty(t, VisibleOutput(lines, -1))

	visible := VisibleOutput(lines, 0)
	assert.Empty(t, visible, "line A appears at step 2, not yet visible at index 0")

	visible = VisibleOutput(lines, 1)
	require.Len(t, visible, 1)
	assert.Equal(t, "A", visible[0].Text)

	visible = VisibleOutput(lines, 2)
	require.Len(t, visible, 2)
}

func TestHasChanged(t *testing.T) {
	previous := map[string]trace.Value{
		"x": trace.NewValue("5"),
		"s": trace.NewValue(`"hi"`),
	}

	assert.True(t, HasChanged("y", trace.NewValue("1"), previous), "new binding")
	assert.True(t, HasChanged("x", trace.NewValue("6"), previous), "changed value")
	assert.False(t, HasChanged("x", trace.NewValue("5"), previous))
	assert.False(t, HasChanged("s", trace.NewValue(`"hi"`), previous))
	assert.True(t, HasChanged("x", trace.NewValue("5"), nil), "no previous step")
}

func TestVariablesFiltersCallables(t *testing.T) {
	vars := map[string]trace.Value{
		"x":     trace.NewValue("5"),
		"greet": trace.NewValue(`"<function greet at 0x7f3a2c>"`),
		"name":  trace.NewValue(`"alice"`),
	}

	listing := Variables(vars, nil)
	require.Len(t, listing, 2)
	assert.Equal(t, "name", listing[0].Name)
	assert.Equal(t, "x", listing[1].Name)
}

func TestLocalsAtDiffsAgainstPreviousStep(t *testing.T) {
	tr := &trace.ExecutionTrace{
		Steps: []trace.TraceStep{
			{Locals: map[string]trace.Value{}},
			{Locals: map[string]trace.Value{"x": trace.NewValue("5")}},
			{Locals: map[string]trace.Value{"x": trace.NewValue("5"), "y": trace.NewValue("1")}},
		},
		TotalSteps: 3,
	}

	step1 := LocalsAt(tr, 1)
	require.Len(t, step1, 1)
	assert.True(t, step1[0].Changed, "x is new at step 1")

	step2 := LocalsAt(tr, 2)
	require.Len(t, step2, 2)
	assert.False(t, step2[0].Changed, "x unchanged at step 2")
	assert.True(t, step2[1].Changed, "y is new at step 2")

	assert.Nil(t, LocalsAt(tr, 99))
	assert.Nil(t, LocalsAt(tr, -1))
}

func TestCallStackAt(t *testing.T) {
	tr := &trace.ExecutionTrace{
		Steps: []trace.TraceStep{
			{CallStack: []trace.StackFrame{{Function: "<module>", Line: 1}}},
			{CallStack: []trace.StackFrame{{Function: "<module>", Line: 3}, {Function: "greet", Line: 2}}},
		},
		TotalSteps: 2,
	}

	stack := CallStackAt(tr, 1)
	require.Len(t, stack, 2)
	assert.Equal(t, "<module>", stack[0].Function)
	assert.Equal(t, "greet", stack[1].Function)

	assert.Nil(t, CallStackAt(tr, 5))
	assert.Nil(t, CallStackAt(tr, -1))
}
