// Package debugtui renders the interactive step-through debugger.
package debugtui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jdelfino/steplab/internal/replay"
	"github.com/jdelfino/steplab/internal/session"
	"github.com/jdelfino/steplab/internal/tracer"
)

const (
	minPaneWidth  = 24
	minPaneHeight = 6
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	paneStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	changedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Config controls the debugger UI.
type Config struct {
	// Code is the traced source, shown in the source pane and re-run on 'r'.
	Code string

	// Stdin is the program input used when re-running.
	Stdin string
}

// Run starts the debugger over an already-loaded session.
func Run(ctrl *session.Controller, cfg Config) error {
	model := newModel(ctrl, cfg)
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err := program.Run()
	return err
}

type model struct {
	ctrl     *session.Controller
	code     string
	stdin    string
	width    int
	height   int
	loading  bool
	err      error
	quitting bool
}

type traceMsg struct {
	err error
}

func newModel(ctrl *session.Controller, cfg Config) model {
	return model{
		ctrl:  ctrl,
		code:  cfg.Code,
		stdin: cfg.Stdin,
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case traceMsg:
		m.loading = false
		m.err = msg.err
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			m.ctrl.Exit()
			return m, tea.Quit
		case "right", "l", "n":
			m.ctrl.StepForward()
		case "left", "h", "p":
			m.ctrl.StepBackward()
		case "g", "home":
			m.ctrl.JumpToFirst()
		case "G", "end":
			m.ctrl.JumpToLast()
		case "r":
			if !m.loading {
				m.loading = true
				m.err = nil
				return m, m.rerunCmd()
			}
		}
	}

	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	snap := m.ctrl.Snapshot()

	header := m.renderHeader(snap)
	if m.loading || snap.Phase == session.PhaseLoading {
		return header + "\n\nRunning program..."
	}
	if snap.Phase != session.PhaseReady || snap.Trace == nil {
		body := "No trace loaded."
		if snap.RequestErr != nil {
			body = errorStyle.Render("Error: " + snap.RequestErr.Error())
		} else if m.err != nil {
			body = errorStyle.Render("Error: " + m.err.Error())
		}
		return header + "\n\n" + body + "\n\n" + m.renderHelp()
	}

	paneWidth := maxInt(minPaneWidth, (maxInt(m.width, minPaneWidth*2+4)-4)/2)
	paneHeight := maxInt(minPaneHeight, (maxInt(m.height, minPaneHeight*2+6)-6)/2)

	source := m.renderSource(snap, paneWidth, paneHeight)
	output := m.renderOutput(snap, paneWidth, paneHeight)
	variables := m.renderVariables(snap, paneWidth, paneHeight)
	stack := m.renderCallStack(snap, paneWidth, paneHeight)

	top := lipgloss.JoinHorizontal(lipgloss.Top, source, " ", output)
	bottom := lipgloss.JoinHorizontal(lipgloss.Top, variables, " ", stack)

	return header + "\n" + top + "\n" + bottom + "\n" + m.renderHelp()
}

func (m model) renderHeader(snap session.Snapshot) string {
	if snap.Phase != session.PhaseReady || snap.Trace == nil {
		return headerStyle.Render("steplab debugger")
	}
	step := snap.Trace.Step(snap.CurrentStepIndex)
	line := 0
	if step != nil {
		line = step.Line
	}
	text := fmt.Sprintf("steplab debugger | step %d/%d | line %d",
		snap.CurrentStepIndex+1, snap.Trace.TotalSteps, line)
	if snap.Trace.Truncated {
		text += " | truncated"
	}
	return headerStyle.Render(text)
}

func (m model) renderSource(snap session.Snapshot, width, height int) string {
	current := 0
	if step := snap.Trace.Step(snap.CurrentStepIndex); step != nil {
		current = step.Line
	}

	lines := strings.Split(strings.TrimSuffix(m.code, "\n"), "\n")
	rendered := make([]string, 0, len(lines))
	for i, line := range lines {
		text := fmt.Sprintf("  %3d  %s", i+1, line)
		if i+1 == current {
			text = changedStyle.Render(fmt.Sprintf("> %3d  %s", i+1, line))
		}
		rendered = append(rendered, truncateLine(text, width-4))
	}
	rendered = window(rendered, current-1, height-3)

	return pane("source", strings.Join(rendered, "\n"), width, height)
}

func (m model) renderOutput(snap session.Snapshot, width, height int) string {
	annotated := replay.AnnotateOutput(snap.Trace)
	visible := replay.VisibleOutput(annotated, snap.CurrentStepIndex)

	lines := make([]string, 0, len(visible))
	for _, out := range visible {
		tag := dimStyle.Render(fmt.Sprintf("[%d]", out.StepNumber))
		lines = append(lines, truncateLine(tag+" "+out.Text, width-4))
	}
	if len(lines) == 0 {
		lines = []string{dimStyle.Render("(no output yet)")}
	}
	lines = window(lines, len(lines)-1, height-3)

	return pane("output", strings.Join(lines, "\n"), width, height)
}

func (m model) renderVariables(snap session.Snapshot, width, height int) string {
	locals := replay.LocalsAt(snap.Trace, snap.CurrentStepIndex)
	globals := replay.GlobalsAt(snap.Trace, snap.CurrentStepIndex)

	lines := make([]string, 0, len(locals)+len(globals)+2)
	appendVars := func(title string, vars []replay.Variable) {
		if len(vars) == 0 {
			return
		}
		lines = append(lines, dimStyle.Render(title))
		for _, v := range vars {
			text := fmt.Sprintf("%s = %s", v.Name, v.Value.Display())
			if v.Changed {
				text = changedStyle.Render(text + " *")
			}
			lines = append(lines, truncateLine("  "+text, width-4))
		}
	}
	appendVars("locals", locals)
	appendVars("globals", globals)
	if len(lines) == 0 {
		lines = []string{dimStyle.Render("(no variables)")}
	}
	lines = window(lines, 0, height-3)

	return pane("variables", strings.Join(lines, "\n"), width, height)
}

func (m model) renderCallStack(snap session.Snapshot, width, height int) string {
	frames := replay.CallStackAt(snap.Trace, snap.CurrentStepIndex)

	// Innermost frame on top.
	lines := make([]string, 0, len(frames))
	for i := len(frames) - 1; i >= 0; i-- {
		text := fmt.Sprintf("%s (line %d)", frames[i].Function, frames[i].Line)
		if i == len(frames)-1 {
			text = changedStyle.Render(text)
		} else {
			text = "  " + text
		}
		lines = append(lines, truncateLine(text, width-4))
	}
	if len(lines) == 0 {
		lines = []string{dimStyle.Render("(module level)")}
	}
	lines = window(lines, 0, height-3)

	return pane("call stack", strings.Join(lines, "\n"), width, height)
}

func (m model) renderHelp() string {
	return dimStyle.Render("←/h back | →/l forward | g first | G last | r re-run | q quit")
}

func (m model) rerunCmd() tea.Cmd {
	ctrl := m.ctrl
	code := m.code
	stdin := m.stdin
	return func() tea.Msg {
		err := ctrl.RequestTrace(context.Background(), code, tracer.Options{Stdin: stdin})
		return traceMsg{err: err}
	}
}

func pane(title, content string, width, height int) string {
	style := paneStyle.Width(width).Height(height)
	return style.Render(titleStyle.Render(title) + "\n" + content)
}

// window keeps at most size lines, centered near focus when the content
// overflows.
func window(lines []string, focus, size int) []string {
	if size <= 0 || len(lines) <= size {
		return lines
	}
	if focus < 0 {
		focus = 0
	}
	start := focus - size/2
	if start < 0 {
		start = 0
	}
	if start+size > len(lines) {
		start = len(lines) - size
	}
	return lines[start : start+size]
}

func truncateLine(text string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(text) <= width {
		return text
	}
	if width <= 3 {
		return text[:width]
	}
	return text[:width-3] + "..."
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
