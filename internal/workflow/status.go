// Package workflow provides the workflow status machine and definition files.
package workflow

// Status represents the overall state of a workflow run.
type Status string

const (
	StatusInitial  Status = "INITIAL"
	StatusRunning  Status = "RUNNING"
	StatusPaused   Status = "PAUSED"
	StatusResumed  Status = "RESUMED"
	StatusStopping Status = "STOPPING"
	StatusStopped  Status = "STOPPED"
	StatusErrored  Status = "ERRORED"
	StatusFinished Status = "FINISHED"
	StatusBlocked  Status = "BLOCKED"
)

// ValidStatuses returns all valid status values.
func ValidStatuses() []Status {
	return []Status{
		StatusInitial, StatusRunning, StatusPaused, StatusResumed,
		StatusStopping, StatusStopped, StatusErrored, StatusFinished,
		StatusBlocked,
	}
}

// IsValidStatus returns true if the status is a valid status value.
func IsValidStatus(s Status) bool {
	switch s {
	case StatusInitial, StatusRunning, StatusPaused, StatusResumed,
		StatusStopping, StatusStopped, StatusErrored, StatusFinished,
		StatusBlocked:
		return true
	default:
		return false
	}
}

// transitions is the validated workflow status transition table.
var transitions = map[Status][]Status{
	StatusInitial:  {StatusRunning},
	StatusRunning:  {StatusPaused, StatusStopping, StatusFinished, StatusBlocked, StatusErrored},
	StatusPaused:   {StatusResumed, StatusStopping},
	StatusResumed:  {StatusRunning, StatusPaused, StatusStopping},
	StatusStopping: {StatusStopped},
	StatusStopped:  {StatusRunning},
	StatusErrored:  {StatusRunning, StatusStopping},
	StatusBlocked:  {StatusRunning, StatusStopping, StatusFinished},
	StatusFinished: {StatusRunning},
}

// CanTransition reports whether moving from one workflow status to another is
// legal. Restart transitions back to RUNNING cover re-running after stop,
// finish or unblocking.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the run has ended.
func (s Status) IsTerminal() bool {
	return s == StatusStopped || s == StatusFinished || s == StatusErrored
}

// IsActive reports whether tasks may currently be dispatched.
func (s Status) IsActive() bool {
	return s == StatusRunning || s == StatusResumed
}
