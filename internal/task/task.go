// Package task provides the task model for crewkit workflows.
package task

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Status represents the current state of a task.
type Status string

const (
	StatusTodo               Status = "TODO"
	StatusDoing              Status = "DOING"
	StatusBlocked            Status = "BLOCKED"
	StatusPaused             Status = "PAUSED"
	StatusResumed            Status = "RESUMED"
	StatusRevise             Status = "REVISE"
	StatusAwaitingValidation Status = "AWAITING_VALIDATION"
	StatusValidated          Status = "VALIDATED"
	StatusDone               Status = "DONE"
	StatusAborted            Status = "ABORTED"
)

// ValidStatuses returns all valid status values.
func ValidStatuses() []Status {
	return []Status{
		StatusTodo, StatusDoing, StatusBlocked, StatusPaused, StatusResumed,
		StatusRevise, StatusAwaitingValidation, StatusValidated, StatusDone,
		StatusAborted,
	}
}

// IsValidStatus returns true if the status is a valid status value.
func IsValidStatus(s Status) bool {
	switch s {
	case StatusTodo, StatusDoing, StatusBlocked, StatusPaused, StatusResumed,
		StatusRevise, StatusAwaitingValidation, StatusValidated, StatusDone,
		StatusAborted:
		return true
	default:
		return false
	}
}

// transitions is the validated task status transition table. REVISE is reachable
// from any status via feedback and is therefore not listed here; see CanRevise.
var transitions = map[Status][]Status{
	StatusTodo:               {StatusDoing, StatusAborted},
	StatusDoing:              {StatusDone, StatusAwaitingValidation, StatusBlocked, StatusPaused, StatusAborted},
	StatusBlocked:            {StatusTodo},
	StatusPaused:             {StatusResumed, StatusAborted, StatusTodo},
	StatusResumed:            {StatusDoing, StatusAborted, StatusTodo},
	StatusRevise:             {StatusDoing, StatusTodo, StatusAborted},
	StatusAwaitingValidation: {StatusValidated, StatusTodo},
	StatusValidated:          {StatusDone},
	StatusDone:               {StatusTodo},
	StatusAborted:            {StatusTodo},
}

// CanTransition reports whether moving from one status to another is legal.
// Transitions back to TODO cover stop resets and dependent invalidation.
func CanTransition(from, to Status) bool {
	if to == StatusRevise {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminalSuccess reports whether the status counts as satisfied for
// dependency scheduling purposes.
func (s Status) IsTerminalSuccess() bool {
	return s == StatusDone || s == StatusValidated
}

// IsDispatchable reports whether the scheduler may dispatch a task in this status.
func (s Status) IsDispatchable() bool {
	return s == StatusTodo || s == StatusResumed || s == StatusRevise
}

// FeedbackStatus tracks whether feedback has been consumed by a revision.
type FeedbackStatus string

const (
	FeedbackPending   FeedbackStatus = "PENDING"
	FeedbackProcessed FeedbackStatus = "PROCESSED"
)

// Feedback is one entry in a task's feedback history.
type Feedback struct {
	Content   string         `json:"content" yaml:"content"`
	Status    FeedbackStatus `json:"status" yaml:"status"`
	Timestamp time.Time      `json:"timestamp" yaml:"timestamp"`
}

// Task represents a unit of work assignable to exactly one agent.
//
// Tasks are created once at workflow configuration time; only the orchestrator
// mutates Status, Result and FeedbackHistory afterwards.
type Task struct {
	// ID is the unique identifier for this run.
	ID string `json:"id" yaml:"id"`

	// ReferenceID is the stable identifier used by other tasks' Dependencies.
	ReferenceID string `json:"reference_id" yaml:"reference_id"`

	// Title is a short description; may contain {placeholder} tokens.
	Title string `json:"title" yaml:"title"`

	// Description is the full task description; may contain {placeholder} tokens.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Status is the current execution state.
	Status Status `json:"status" yaml:"status"`

	// Dependencies lists referenceIds of tasks that must finish first.
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`

	// AllowParallelExecution permits this task to run alongside others.
	// Tasks without it are chained in declaration order.
	AllowParallelExecution bool `json:"allow_parallel_execution,omitempty" yaml:"allow_parallel_execution,omitempty"`

	// AgentID names the assigned agent. The orchestrator does not own the
	// agent's lifecycle.
	AgentID string `json:"agent_id" yaml:"agent_id"`

	// ExternalValidationRequired gates completion on an explicit ValidateTask call.
	ExternalValidationRequired bool `json:"external_validation_required,omitempty" yaml:"external_validation_required,omitempty"`

	// Deliverable marks this task's result as the workflow result.
	Deliverable bool `json:"deliverable,omitempty" yaml:"deliverable,omitempty"`

	// OutputSchema lists gjson paths that must exist in the result for it to be
	// valid structured output. Empty means the result is opaque text.
	OutputSchema []string `json:"output_schema,omitempty" yaml:"output_schema,omitempty"`

	// Result is the opaque result value. JSON when OutputSchema is set.
	Result string `json:"result,omitempty" yaml:"result,omitempty"`

	// FeedbackHistory records feedback provided via the orchestrator.
	FeedbackHistory []Feedback `json:"feedback_history,omitempty" yaml:"feedback_history,omitempty"`
}

// New creates a task with the given reference id, title and assigned agent.
func New(referenceID, title, agentID string) *Task {
	return &Task{
		ID:          uuid.New().String(),
		ReferenceID: referenceID,
		Title:       title,
		AgentID:     agentID,
		Status:      StatusTodo,
	}
}

// AddFeedback appends a pending feedback entry.
func (t *Task) AddFeedback(content string) {
	t.FeedbackHistory = append(t.FeedbackHistory, Feedback{
		Content:   content,
		Status:    FeedbackPending,
		Timestamp: time.Now(),
	})
}

// PendingFeedback returns the feedback entries not yet processed.
func (t *Task) PendingFeedback() []Feedback {
	var pending []Feedback
	for _, f := range t.FeedbackHistory {
		if f.Status == FeedbackPending {
			pending = append(pending, f)
		}
	}
	return pending
}

// MarkFeedbackProcessed flips all pending feedback entries to processed.
func (t *Task) MarkFeedbackProcessed() {
	for i := range t.FeedbackHistory {
		if t.FeedbackHistory[i].Status == FeedbackPending {
			t.FeedbackHistory[i].Status = FeedbackProcessed
		}
	}
}

// HasStructuredOutput reports whether the task declares an output schema.
func (t *Task) HasStructuredOutput() bool {
	return len(t.OutputSchema) > 0
}

// ValidateResult checks the result against the declared output schema.
// Tasks without a schema always validate.
func (t *Task) ValidateResult(result string) bool {
	if !t.HasStructuredOutput() {
		return true
	}
	if !gjson.Valid(result) {
		return false
	}
	for _, path := range t.OutputSchema {
		if !gjson.Get(result, path).Exists() {
			return false
		}
	}
	return true
}

// StructuredResult parses the result as a JSON object. Returns nil when the
// task has no schema or the result is not a JSON object.
func (t *Task) StructuredResult() map[string]any {
	if !t.HasStructuredOutput() || t.Result == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(t.Result), &m); err != nil {
		return nil
	}
	return m
}
