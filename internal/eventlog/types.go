// Package eventlog provides the append-only event log that records every
// workflow, task and agent status transition. The log is the single source of
// truth for derived statistics and cross-task context.
package eventlog

import (
	"time"

	"github.com/crewkit/crewkit/internal/agent"
	"github.com/crewkit/crewkit/internal/task"
	"github.com/crewkit/crewkit/internal/workflow"
)

// EntryType defines the kind of status transition an entry records.
type EntryType string

const (
	// EntryWorkflowStatus records a workflow status transition.
	EntryWorkflowStatus EntryType = "WorkflowStatusUpdate"
	// EntryTaskStatus records a task status transition.
	EntryTaskStatus EntryType = "TaskStatusUpdate"
	// EntryAgentStatus records an agent lifecycle transition.
	EntryAgentStatus EntryType = "AgentStatusUpdate"
)

// Metadata keys understood by the stats reducers. The metadata bag is open;
// anything else rides along untouched.
const (
	MetaInputTokens  = "input_tokens"
	MetaOutputTokens = "output_tokens"
	MetaIterations   = "iterations"
	MetaCostUSD      = "cost_usd"
	MetaModel        = "model"
	MetaError        = "error"
	MetaResult       = "result"
	MetaFeedback     = "feedback"
	MetaReason       = "reason"
	MetaDurationMS   = "duration_ms"
)

// Entry is one immutable record in the event log.
//
// Seq is the append index and the only authoritative ordering; two entries may
// share a timestamp.
type Entry struct {
	ID        string         `json:"id"`
	Seq       int            `json:"seq"`
	Timestamp time.Time      `json:"timestamp"`
	Type      EntryType      `json:"type"`

	WorkflowStatus workflow.Status `json:"workflow_status,omitempty"`
	TaskID         string          `json:"task_id,omitempty"`
	TaskStatus     task.Status     `json:"task_status,omitempty"`
	AgentID        string          `json:"agent_id,omitempty"`
	AgentStatus    agent.Status    `json:"agent_status,omitempty"`

	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// intMeta reads an integer metadata value regardless of the numeric type it
// was stored or round-tripped as.
func intMeta(m map[string]any, key string) (int, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func stringMeta(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
