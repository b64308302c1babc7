package team

import (
	"context"

	"github.com/crewkit/crewkit/internal/errors"
	"github.com/crewkit/crewkit/internal/graph"
	"github.com/crewkit/crewkit/internal/queue"
	"github.com/crewkit/crewkit/internal/task"
	"github.com/crewkit/crewkit/internal/workflow"
)

// Start begins a workflow run. It fails when a run is already in progress,
// when a task references an unknown agent, or when the dependency relation is
// cyclic or dangling; no task is dispatched on failure.
//
// A fresh run resets every task to TODO, clears the event log, and rebuilds
// the graphs for the configured strategy.
func (t *Team) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.IsActive() || t.status == workflow.StatusStopping {
		return errors.ErrWorkflowRunning()
	}
	if !workflow.CanTransition(t.status, workflow.StatusRunning) {
		return errors.ErrIllegalTransition("start", string(t.status))
	}
	if len(t.order) == 0 {
		return errors.ErrConfigInvalid("tasks", "workflow declares no tasks")
	}

	tasks := make([]*task.Task, 0, len(t.order))
	for _, ref := range t.order {
		tk := t.tasks[ref]
		if _, ok := t.agents[tk.AgentID]; !ok {
			return errors.ErrAgentNotFound(tk.AgentID)
		}
		tasks = append(tasks, tk)
	}

	g, err := graph.Build(tasks, t.strat.GraphOptions()...)
	if err != nil {
		return err
	}

	// Validation passed: reset run state.
	t.graph = g
	t.log.Clear()
	t.queue = queue.New(t.maxConcurrency, t.logger)
	t.dispatched = make(map[string]bool)
	t.busyAgents = make(map[string]bool)
	t.revised = make(map[string]bool)
	t.result = ""
	t.runDone = make(chan struct{})
	for _, tk := range tasks {
		tk.Status = task.StatusTodo
		tk.Result = ""
	}

	t.appendWorkflowStatus(workflow.StatusRunning, "workflow started", nil)
	t.logger.Info("workflow started",
		"team", t.name,
		"strategy", t.strat.Name(),
		"tasks", len(tasks),
		"max_concurrency", t.maxConcurrency)

	t.schedule(ctx)
	return nil
}

// Wait blocks until the run reaches FINISHED or STOPPED, or ctx is done.
// Returns the workflow result.
func (t *Team) Wait(ctx context.Context) (string, error) {
	t.mu.Lock()
	done := t.runDone
	t.mu.Unlock()
	if done == nil {
		return "", errors.ErrIllegalTransition("wait", string(t.Status()))
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-done:
		return t.Result(), nil
	}
}

// Run starts the workflow and waits for it to finish.
func (t *Team) Run(ctx context.Context) (string, error) {
	if err := t.Start(ctx); err != nil {
		return "", err
	}
	return t.Wait(ctx)
}

// Pause suspends the run: no new dispatches, and every in-flight unit is
// cooperatively cancelled. Tasks that were DOING become PAUSED and are
// restored on Resume. Fails fast when the workflow is not active.
func (t *Team) Pause() error {
	t.mu.Lock()
	if !t.status.IsActive() {
		t.mu.Unlock()
		return errors.ErrIllegalTransition("pause", string(t.status))
	}
	t.appendWorkflowStatus(workflow.StatusPaused, "workflow paused", nil)
	q := t.queue
	t.mu.Unlock()

	q.CancelAll(queue.ErrPauseAbort)
	t.logger.Info("workflow paused", "team", t.name)
	return nil
}

// Resume continues a paused run. Tasks paused mid-flight move back through
// RESUMED and are redispatched ahead of anything newly eligible.
func (t *Team) Resume(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != workflow.StatusPaused {
		return errors.ErrIllegalTransition("resume", string(t.status))
	}
	t.appendWorkflowStatus(workflow.StatusResumed, "workflow resuming", nil)
	for _, ref := range t.order {
		tk := t.tasks[ref]
		if tk.Status == task.StatusPaused {
			t.appendTaskStatus(tk, task.StatusResumed, "restored after pause", nil)
		}
	}
	t.appendWorkflowStatus(workflow.StatusRunning, "workflow resumed", nil)
	t.logger.Info("workflow resumed", "team", t.name)

	t.schedule(ctx)
	return nil
}

// Stop terminates the run: in-flight units are cooperatively cancelled, every
// non-DONE task is reset to TODO, and the graphs are discarded. A subsequent
// Start re-runs from the beginning.
func (t *Team) Stop(reason string) error {
	t.mu.Lock()
	if !workflow.CanTransition(t.status, workflow.StatusStopping) {
		t.mu.Unlock()
		return errors.ErrIllegalTransition("stop", string(t.status))
	}
	meta := map[string]any{}
	if reason != "" {
		meta["reason"] = reason
	}
	t.appendWorkflowStatus(workflow.StatusStopping, "workflow stopping", meta)
	q := t.queue
	t.mu.Unlock()

	q.CancelAll(queue.ErrStopAbort)
	q.Wait()

	t.mu.Lock()
	for _, ref := range t.order {
		tk := t.tasks[ref]
		if !tk.Status.IsTerminalSuccess() && tk.Status != task.StatusTodo {
			t.appendTaskStatus(tk, task.StatusTodo, "reset by stop", nil)
		}
	}
	t.graph = nil
	t.dispatched = make(map[string]bool)
	t.busyAgents = make(map[string]bool)
	t.revised = make(map[string]bool)
	t.appendWorkflowStatus(workflow.StatusStopped, "workflow stopped", meta)
	t.finishRun()
	t.mu.Unlock()

	t.logger.Info("workflow stopped", "team", t.name, "reason", reason)
	return nil
}

// finishRun releases Wait callers. Caller holds the lock.
func (t *Team) finishRun() {
	if t.runDone != nil {
		select {
		case <-t.runDone:
		default:
			close(t.runDone)
		}
	}
}
