package team

import (
	"context"
	"fmt"

	"github.com/crewkit/crewkit/internal/errors"
	"github.com/crewkit/crewkit/internal/eventlog"
	"github.com/crewkit/crewkit/internal/queue"
	"github.com/crewkit/crewkit/internal/strategy"
	"github.com/crewkit/crewkit/internal/task"
	"github.com/crewkit/crewkit/internal/workflow"
)

// ProvideFeedback records feedback on a task and moves it to REVISE for a
// high-priority re-run. The strategy's invalidation set (transitive dependents
// for graph-driven strategies, positional successors for sequential) is reset
// to TODO first so stale downstream work is discarded before the task is
// redispatched.
func (t *Team) ProvideFeedback(refID, content string) error {
	t.mu.Lock()

	tk, ok := t.tasks[refID]
	if !ok {
		t.mu.Unlock()
		return errors.ErrTaskNotFound(refID)
	}
	switch t.status {
	case workflow.StatusInitial, workflow.StatusStopping, workflow.StatusStopped:
		t.mu.Unlock()
		return errors.ErrIllegalTransition("provide feedback", string(t.status))
	}

	tk.AddFeedback(content)

	// Invalidate downstream work before the revised task can run again.
	var cancels []string
	stale := t.strat.Invalidates(strategy.State{Graph: t.graph, Tasks: t.tasks}, refID)
	for _, dep := range stale {
		dt := t.tasks[dep]
		if dt.Status == task.StatusTodo {
			continue
		}
		if t.dispatched[dep] {
			cancels = append(cancels, dep)
		}
		if task.CanTransition(dt.Status, task.StatusTodo) {
			t.appendTaskStatus(dt, task.StatusTodo, "reset by upstream revision", nil)
			dt.Result = ""
		}
	}

	if t.dispatched[refID] {
		cancels = append(cancels, refID)
	}
	t.appendTaskStatus(tk, task.StatusRevise, "feedback received", map[string]any{
		eventlog.MetaFeedback: content,
	})
	t.revised[refID] = true

	// A blocked or finished workflow returns to RUNNING so the revision can
	// be scheduled.
	if t.status == workflow.StatusBlocked || t.status == workflow.StatusFinished {
		if t.runDone == nil || isClosed(t.runDone) {
			t.runDone = make(chan struct{})
		}
		t.appendWorkflowStatus(workflow.StatusRunning, "workflow reopened by feedback", nil)
	}

	q := t.queue
	t.mu.Unlock()

	for _, id := range cancels {
		q.Cancel(id, queue.ErrStopAbort)
	}

	t.mu.Lock()
	t.schedule(context.Background())
	t.mu.Unlock()

	t.logger.Info("feedback recorded", "team", t.name, "task", refID)
	return nil
}

// ValidateTask approves a task held in AWAITING_VALIDATION. The task moves
// through VALIDATED to DONE and the workflow resumes, finishing when this was
// the last task.
func (t *Team) ValidateTask(refID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tk, ok := t.tasks[refID]
	if !ok {
		return errors.ErrTaskNotFound(refID)
	}
	if tk.Status != task.StatusAwaitingValidation {
		return errors.ErrTaskInvalidState(refID, string(tk.Status), string(task.StatusAwaitingValidation))
	}

	t.appendTaskStatus(tk, task.StatusValidated, "externally validated", nil)
	if t.status == workflow.StatusBlocked {
		t.appendWorkflowStatus(workflow.StatusRunning, "validation received", nil)
	}
	t.completeTask(refID, tk)
	return nil
}

// RejectTask declines a task held in AWAITING_VALIDATION, sending it back to
// TODO with the given feedback attached for the next attempt.
func (t *Team) RejectTask(refID, feedback string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tk, ok := t.tasks[refID]
	if !ok {
		return errors.ErrTaskNotFound(refID)
	}
	if tk.Status != task.StatusAwaitingValidation {
		return errors.ErrTaskInvalidState(refID, string(tk.Status), string(task.StatusAwaitingValidation))
	}

	if feedback == "" {
		feedback = fmt.Sprintf("task %s was rejected during validation", refID)
	}
	tk.AddFeedback(feedback)
	tk.Result = ""
	t.appendTaskStatus(tk, task.StatusTodo, "validation rejected", map[string]any{
		eventlog.MetaFeedback: feedback,
	})
	if t.status == workflow.StatusBlocked {
		t.appendWorkflowStatus(workflow.StatusRunning, "validation rejected", nil)
	}
	t.schedule(context.Background())
	return nil
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
