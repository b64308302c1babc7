package eventlog

import (
	"time"

	"github.com/crewkit/crewkit/internal/cost"
	"github.com/crewkit/crewkit/internal/task"
)

// TaskStats is derived per-task usage computed from an ordered log slice.
type TaskStats struct {
	TaskID       string        `json:"task_id"`
	StartedAt    time.Time     `json:"started_at,omitempty"`
	EndedAt      time.Time     `json:"ended_at,omitempty"`
	Duration     time.Duration `json:"duration"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	Iterations   int           `json:"iterations"`
	CostUSD      float64       `json:"cost_usd"`
}

// WorkflowStats aggregates task stats across a run.
type WorkflowStats struct {
	StartedAt    time.Time     `json:"started_at,omitempty"`
	EndedAt      time.Time     `json:"ended_at,omitempty"`
	Duration     time.Duration `json:"duration"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	Iterations   int           `json:"iterations"`
	CostUSD      float64       `json:"cost_usd"`
	TaskCount    int           `json:"task_count"`
}

// DeriveTaskStats reduces an ordered log slice to usage stats for one task.
//
// Entries must be in append order; Seq ordering is authoritative and wall
// clock timestamps are only used to measure spans, never to order events.
// The window measured is the most recent DOING dispatch through the latest
// entry that ends work on the task, so a task revised and re-run reports its
// latest attempt's duration while token counts accumulate across attempts.
func DeriveTaskStats(entries []Entry, taskID string) TaskStats {
	stats := TaskStats{TaskID: taskID}
	var model string

	for _, e := range entries {
		if e.TaskID != taskID {
			continue
		}

		switch e.Type {
		case EntryTaskStatus:
			switch e.TaskStatus {
			case task.StatusDoing:
				stats.StartedAt = e.Timestamp
				stats.EndedAt = time.Time{}
			case task.StatusDone, task.StatusBlocked, task.StatusAborted,
				task.StatusPaused, task.StatusAwaitingValidation:
				stats.EndedAt = e.Timestamp
			}
		case EntryAgentStatus:
			if in, ok := intMeta(e.Metadata, MetaInputTokens); ok {
				stats.InputTokens += in
			}
			if out, ok := intMeta(e.Metadata, MetaOutputTokens); ok {
				stats.OutputTokens += out
			}
			if iters, ok := intMeta(e.Metadata, MetaIterations); ok {
				stats.Iterations += iters
			}
			if m := stringMeta(e.Metadata, MetaModel); m != "" {
				model = m
			}
		}
	}

	if !stats.StartedAt.IsZero() && !stats.EndedAt.IsZero() {
		stats.Duration = stats.EndedAt.Sub(stats.StartedAt)
	}
	stats.CostUSD = cost.Compute(model, stats.InputTokens, stats.OutputTokens)
	return stats
}

// DeriveWorkflowStats reduces the full log to aggregate run stats.
func DeriveWorkflowStats(entries []Entry) WorkflowStats {
	var stats WorkflowStats

	taskIDs := make(map[string]bool)
	for _, e := range entries {
		if e.TaskID != "" && e.TaskID != GlobalTaskID {
			taskIDs[e.TaskID] = true
		}
	}

	for id := range taskIDs {
		ts := DeriveTaskStats(entries, id)
		stats.InputTokens += ts.InputTokens
		stats.OutputTokens += ts.OutputTokens
		stats.Iterations += ts.Iterations
		stats.CostUSD += ts.CostUSD
	}
	stats.TaskCount = len(taskIDs)

	if len(entries) > 0 {
		stats.StartedAt = entries[0].Timestamp
		stats.EndedAt = entries[len(entries)-1].Timestamp
		stats.Duration = stats.EndedAt.Sub(stats.StartedAt)
	}
	return stats
}
