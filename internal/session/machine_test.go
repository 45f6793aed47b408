package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		name  string
		from  Phase
		to    Phase
		valid bool
	}{
		{"idle to loading", PhaseIdle, PhaseLoading, true},
		{"idle to ready invalid", PhaseIdle, PhaseReady, false},

		{"loading to ready", PhaseLoading, PhaseReady, true},
		{"loading to idle", PhaseLoading, PhaseIdle, true},
		{"loading supersede", PhaseLoading, PhaseLoading, true},

		{"ready to loading", PhaseReady, PhaseLoading, true},
		{"ready to idle", PhaseReady, PhaseIdle, true},

		{"idle to idle no-op", PhaseIdle, PhaseIdle, true},
		{"ready to ready no-op", PhaseReady, PhaseReady, true},

		{"unknown phase", Phase("bogus"), PhaseIdle, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidTransition(tt.from, tt.to), "IsValidTransition(%s, %s)", tt.from, tt.to)
		})
	}
}

func TestTransitionErrorMessage(t *testing.T) {
	err := &TransitionError{SessionID: "s1", FromPhase: PhaseIdle, ToPhase: PhaseReady, Reason: "no trace"}
	assert.Contains(t, err.Error(), "idle -> ready")
	assert.Contains(t, err.Error(), "s1")
}
