// Package session implements the debug session controller: the state
// machine between "not debugging", "trace requested", and "navigating a
// loaded trace".
package session

import "fmt"

// Phase is the debug session's lifecycle state.
type Phase string

const (
	// PhaseIdle means no trace is loaded and nothing is in flight.
	PhaseIdle Phase = "idle"

	// PhaseLoading means a trace request is in flight.
	PhaseLoading Phase = "loading"

	// PhaseReady means a trace is loaded and navigable.
	PhaseReady Phase = "ready"
)

// TransitionError is returned when an invalid phase transition is attempted.
type TransitionError struct {
	SessionID string
	FromPhase Phase
	ToPhase   Phase
	Reason    string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid session transition for %s: %s -> %s: %s",
		e.SessionID, e.FromPhase, e.ToPhase, e.Reason)
}

// validTransitions defines which phase transitions are allowed.
// Map key is the current phase, value is a set of valid target phases.
var validTransitions = map[Phase]map[Phase]bool{
	PhaseIdle: {
		PhaseLoading: true, // Trace requested
	},
	PhaseLoading: {
		PhaseReady:   true, // Trace loaded with at least one step
		PhaseIdle:    true, // Request failed or trace was empty
		PhaseLoading: true, // New request superseded the pending one
	},
	PhaseReady: {
		PhaseLoading: true, // New trace requested for modified code
		PhaseIdle:    true, // User exited debug mode
	},
}

// IsValidTransition checks if a phase transition is allowed.
func IsValidTransition(from, to Phase) bool {
	if from == to && from != PhaseLoading {
		return true // Same phase is a no-op, except supersede while loading
	}
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}
