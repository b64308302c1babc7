package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"start", StatusInitial, StatusRunning, true},
		{"pause", StatusRunning, StatusPaused, true},
		{"resume", StatusPaused, StatusResumed, true},
		{"resumed running", StatusResumed, StatusRunning, true},
		{"stop", StatusRunning, StatusStopping, true},
		{"stopping stopped", StatusStopping, StatusStopped, true},
		{"finish", StatusRunning, StatusFinished, true},
		{"block", StatusRunning, StatusBlocked, true},
		{"unblock finishes", StatusBlocked, StatusFinished, true},
		{"restart after stop", StatusStopped, StatusRunning, true},
		{"pause while paused", StatusPaused, StatusPaused, false},
		{"pause while stopped", StatusStopped, StatusPaused, false},
		{"resume while running", StatusRunning, StatusResumed, false},
		{"start while running", StatusRunning, StatusRunning, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusStopped.IsTerminal())
	assert.True(t, StatusFinished.IsTerminal())
	assert.True(t, StatusErrored.IsTerminal())
	assert.False(t, StatusBlocked.IsTerminal(), "blocked workflows are resumable")

	assert.True(t, StatusRunning.IsActive())
	assert.True(t, StatusResumed.IsActive())
	assert.False(t, StatusPaused.IsActive())
	assert.False(t, StatusStopping.IsActive())
}
