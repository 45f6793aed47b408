// Package replay navigates an already-loaded execution trace: output
// reconstruction, variable diffing, and call-stack extraction. It performs
// no I/O and never re-executes anything.
package replay

import (
	"sort"
	"strings"

	"github.com/jdelfino/steplab/internal/trace"
)

// OutputLine is one line of program output tagged with the 1-based step at
// which it first appeared.
type OutputLine struct {
	StepNumber int
	Text       string
}

// AnnotateOutput reconstructs the program's output from the cumulative
// per-step stdout snapshots. Each step contributes the delta over the
// previous step, split into lines; a trailing line terminator leaves an
// empty split artifact which is dropped, not emitted. The pass is linear
// and deterministic for a given trace.
func AnnotateOutput(tr *trace.ExecutionTrace) []OutputLine {
	if tr == nil {
		return nil
	}

	var lines []OutputLine
	previous := ""
	for i := range tr.Steps {
		current := tr.Steps[i].Stdout
		if len(current) <= len(previous) {
			continue
		}
		delta := current[len(previous):]
		previous = current

		parts := strings.Split(delta, "\n")
		if strings.HasSuffix(delta, "\n") {
			parts = parts[:len(parts)-1]
		}
		for _, part := range parts {
			lines = append(lines, OutputLine{StepNumber: i + 1, Text: part})
		}
	}
	return lines
}

// VisibleOutput filters annotated lines to those visible at the given
// 0-based step index, simulating output appearing as the user steps
// forward.
func VisibleOutput(lines []OutputLine, currentStepIndex int) []OutputLine {
	visible := make([]OutputLine, 0, len(lines))
	for _, line := range lines {
		if line.StepNumber <= currentStepIndex+1 {
			visible = append(visible, line)
		}
	}
	return visible
}

// HasChanged reports whether a variable is new or its serialized value
// differs from the previous step's mapping. Comparison is structural over
// the serialized form, never reference identity.
func HasChanged(name string, value trace.Value, previous map[string]trace.Value) bool {
	prev, ok := previous[name]
	if !ok {
		return true
	}
	return !value.Equal(prev)
}

// Variable is one entry of a variable listing.
type Variable struct {
	Name    string
	Value   trace.Value
	Changed bool
}

// Variables builds a sorted, display-filtered listing of a step's variable
// mapping, with each entry's Changed flag computed against the previous
// step's mapping. Callable markers are excluded: function objects are not
// variables to the audience this is built for.
func Variables(vars, previous map[string]trace.Value) []Variable {
	out := make([]Variable, 0, len(vars))
	for name, value := range vars {
		if value.IsCallable() {
			continue
		}
		out = append(out, Variable{
			Name:    name,
			Value:   value,
			Changed: HasChanged(name, value, previous),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LocalsAt returns the display listing of locals at a 0-based step index,
// diffed against the preceding step. Out-of-range indexes yield nil.
func LocalsAt(tr *trace.ExecutionTrace, index int) []Variable {
	step := tr.Step(index)
	if step == nil {
		return nil
	}
	return Variables(step.Locals, previousLocals(tr, index))
}

// GlobalsAt returns the display listing of globals at a 0-based step index.
func GlobalsAt(tr *trace.ExecutionTrace, index int) []Variable {
	step := tr.Step(index)
	if step == nil {
		return nil
	}
	var previous map[string]trace.Value
	if prev := tr.Step(index - 1); prev != nil {
		previous = prev.Globals
	}
	return Variables(step.Globals, previous)
}

// CallStackAt returns the call stack at a 0-based step index, outermost
// frame first. Out-of-range indexes yield nil; the stack is never filtered.
func CallStackAt(tr *trace.ExecutionTrace, index int) []trace.StackFrame {
	step := tr.Step(index)
	if step == nil {
		return nil
	}
	return step.CallStack
}

func previousLocals(tr *trace.ExecutionTrace, index int) map[string]trace.Value {
	if prev := tr.Step(index - 1); prev != nil {
		return prev.Locals
	}
	return nil
}
