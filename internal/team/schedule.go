package team

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/crewkit/crewkit/internal/agent"
	"github.com/crewkit/crewkit/internal/eventlog"
	"github.com/crewkit/crewkit/internal/queue"
	"github.com/crewkit/crewkit/internal/strategy"
	"github.com/crewkit/crewkit/internal/task"
	"github.com/crewkit/crewkit/internal/variable"
	"github.com/crewkit/crewkit/internal/workflow"
)

// errDispatchSkipped marks a unit that found its task no longer runnable by
// the time it acquired a slot. Not a failure.
var errDispatchSkipped = stderrors.New("dispatch skipped")

// schedule asks the strategy for eligible tasks and submits an execution unit
// for each. Caller holds the lock. Idempotent with respect to the re-entrant
// calls its own dispatches cause: already-submitted tasks are skipped.
func (t *Team) schedule(ctx context.Context) {
	if !t.status.IsActive() || t.graph == nil {
		return
	}

	state := strategy.State{
		Graph:      t.graph,
		Tasks:      t.tasks,
		BusyAgents: t.busyAgents,
		Revised:    t.revised,
	}

	for _, ref := range t.strat.Eligible(state) {
		if t.dispatched[ref] {
			continue
		}
		t.dispatch(ctx, ref)
	}
}

// dispatch submits one execution unit. Caller holds the lock.
func (t *Team) dispatch(ctx context.Context, ref string) {
	tk := t.tasks[ref]
	base, ok := t.agents[tk.AgentID]
	if !ok {
		// Agent resolution is checked at start, so this is orchestrator
		// state corruption, not a task failure.
		if workflow.CanTransition(t.status, workflow.StatusErrored) {
			t.appendWorkflowStatus(workflow.StatusErrored, "orchestrator failure", map[string]any{
				eventlog.MetaError: fmt.Sprintf("task %s references unknown agent %s", ref, tk.AgentID),
			})
			t.finishRun()
		}
		return
	}

	exec := base
	if t.busyAgents[base.ID] {
		if !base.CloneWhenBusy {
			return
		}
		exec = base.Clone()
	} else {
		t.busyAgents[base.ID] = true
	}

	t.dispatched[ref] = true
	delete(t.revised, ref)

	unit := t.executionUnit(ref, tk, exec)
	t.queue.Submit(ctx, ref, unit, func(id string, err error) {
		t.unitDone(ctx, id, tk, base, exec, err)
	})
}

// executionUnit builds the closure that runs one task dispatch: mark DOING,
// assemble context, invoke the agent, and route the outcome.
func (t *Team) executionUnit(ref string, tk *task.Task, exec *agent.Agent) queue.Unit {
	return func(ctx context.Context) error {
		t.mu.Lock()
		if !t.status.IsActive() || !tk.Status.IsDispatchable() {
			t.mu.Unlock()
			return errDispatchSkipped
		}
		t.appendTaskStatus(tk, task.StatusDoing, "task dispatched", nil)

		contextStr, vars := t.strat.ContextFor(strategy.State{
			Graph: t.graph,
			Tasks: t.tasks,
		}, ref, t.inputs)
		t.mu.Unlock()

		inv := agent.Invocation{
			Task:    t.interpolated(tk, vars),
			Context: contextStr,
			Inputs:  vars,
		}

		result, err := t.executorFor(exec).Execute(ctx, exec, inv, t.emitFunc(ref, exec.ID))
		if err != nil {
			return err
		}
		t.handleTaskCompleted(ref, tk, exec, result)
		return nil
	}
}

// interpolated returns a shallow copy of the task with placeholder tokens in
// its title and description resolved. The stored task is never rewritten, so
// a revised re-run sees updated inputs.
func (t *Team) interpolated(tk *task.Task, vars variable.Set) *task.Task {
	dup := *tk
	dup.Title = variable.Interpolate(tk.Title, vars)
	dup.Description = variable.Interpolate(tk.Description, vars)
	return &dup
}

// emitFunc bridges agent lifecycle events into the log.
func (t *Team) emitFunc(ref, agentID string) agent.EmitFunc {
	return func(ev agent.StatusEvent) {
		t.log.Append(eventlog.Entry{
			Type:        eventlog.EntryAgentStatus,
			TaskID:      ref,
			AgentID:     agentID,
			AgentStatus: ev.Status,
			Description: ev.Description,
			Metadata:    ev.Metadata,
		})
	}
}

// unitDone runs after a unit finished and its slot was released. It applies
// the outcome that the unit itself could not (aborts and failures), frees the
// agent, and reschedules.
func (t *Team) unitDone(ctx context.Context, ref string, tk *task.Task, base, exec *agent.Agent, err error) {
	t.mu.Lock()
	delete(t.dispatched, ref)
	if exec == base {
		delete(t.busyAgents, base.ID)
	}

	switch {
	case err == nil, stderrors.Is(err, errDispatchSkipped):
		// Completion was handled inside the unit, or nothing ran.
	case stderrors.Is(err, queue.ErrPauseAbort):
		if tk.Status == task.StatusDoing {
			t.appendTaskStatus(tk, task.StatusPaused, "suspended by pause", nil)
			// Resume can win the race against a unit still unwinding its
			// cancellation. The run is active again, so the task re-enters
			// the pool instead of stranding in PAUSED.
			if t.status.IsActive() {
				t.appendTaskStatus(tk, task.StatusResumed, "restored after pause", nil)
			}
		}
	case stderrors.Is(err, queue.ErrStopAbort):
		if tk.Status == task.StatusDoing {
			t.appendTaskStatus(tk, task.StatusAborted, "execution aborted", nil)
			// Mid-run aborts (upstream revision) re-enter the pool; aborts
			// during Stop stay put until the stop pass resets the run.
			if t.status.IsActive() {
				t.appendTaskStatus(tk, task.StatusTodo, "reset after abort", nil)
			}
		}
	default:
		t.handleTaskErrorLocked(tk, err)
	}

	t.schedule(ctx)
	t.maybeBlockWorkflow()
	t.mu.Unlock()
}

// handleTaskCompleted routes a successful agent result: validate structured
// output, hold for external validation, or mark DONE and possibly finish the
// workflow.
func (t *Team) handleTaskCompleted(ref string, tk *task.Task, exec *agent.Agent, result *agent.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if tk.Status != task.StatusDoing {
		// Revised or reset while the result was in flight; discard it.
		return
	}

	if !tk.ValidateResult(result.Output) {
		t.handleTaskErrorLocked(tk, fmt.Errorf("result does not match output schema %v", tk.OutputSchema))
		return
	}
	tk.Result = result.Output

	if tk.ExternalValidationRequired {
		t.appendTaskStatus(tk, task.StatusAwaitingValidation, "awaiting external validation", nil)
		t.maybeBlockWorkflow()
		return
	}

	t.completeTask(ref, tk)
}

// completeTask marks the task DONE with derived stats and finishes the
// workflow when it was the last one. Caller holds the lock.
func (t *Team) completeTask(ref string, tk *task.Task) {
	stats := eventlog.DeriveTaskStats(t.log.Entries(), ref)
	t.appendTaskStatus(tk, task.StatusDone, "task completed", map[string]any{
		eventlog.MetaInputTokens:  stats.InputTokens,
		eventlog.MetaOutputTokens: stats.OutputTokens,
		eventlog.MetaIterations:   stats.Iterations,
		eventlog.MetaCostUSD:      stats.CostUSD,
		eventlog.MetaDurationMS:   stats.Duration.Milliseconds(),
	})
	t.logger.Info("task completed", "team", t.name, "task", ref)

	for _, other := range t.order {
		if t.tasks[other].Status != task.StatusDone {
			t.schedule(context.Background())
			return
		}
	}
	t.finishWorkflow()
}

// finishWorkflow computes the final result and moves the workflow to
// FINISHED. Caller holds the lock.
func (t *Team) finishWorkflow() {
	t.result = ""
	for _, ref := range t.order {
		tk := t.tasks[ref]
		if tk.Deliverable {
			t.result = tk.Result
		}
	}
	if t.result == "" && len(t.order) > 0 {
		t.result = t.tasks[t.order[len(t.order)-1]].Result
	}

	if workflow.CanTransition(t.status, workflow.StatusFinished) {
		t.appendWorkflowStatus(workflow.StatusFinished, "all tasks completed", nil)
	}
	t.logger.Info("workflow finished", "team", t.name)
	t.finishRun()
}

// handleTaskErrorLocked marks the task BLOCKED and propagates a workflow
// BLOCKED transition. Caller holds the lock.
func (t *Team) handleTaskErrorLocked(tk *task.Task, err error) {
	if tk.Status == task.StatusDoing {
		t.appendTaskStatus(tk, task.StatusBlocked, "task failed", map[string]any{
			eventlog.MetaError: err.Error(),
		})
	}
	tk.MarkFeedbackProcessed()
	t.logger.Warn("task blocked", "team", t.name, "task", tk.ReferenceID, "error", err)
	t.maybeBlockWorkflow()
}

// maybeBlockWorkflow moves the workflow to BLOCKED when nothing can make
// progress without outside intervention: no unit in flight and no task
// dispatchable. Caller holds the lock.
func (t *Team) maybeBlockWorkflow() {
	if !t.status.IsActive() || t.queue == nil {
		return
	}
	if len(t.dispatched) > 0 {
		return
	}
	eligible := t.strat.Eligible(strategy.State{
		Graph:      t.graph,
		Tasks:      t.tasks,
		BusyAgents: t.busyAgents,
		Revised:    t.revised,
	})
	if len(eligible) > 0 {
		return
	}
	blocked := false
	for _, ref := range t.order {
		switch t.tasks[ref].Status {
		case task.StatusBlocked, task.StatusAwaitingValidation:
			blocked = true
		case task.StatusDoing:
			return
		}
	}
	if blocked && workflow.CanTransition(t.status, workflow.StatusBlocked) {
		t.appendWorkflowStatus(workflow.StatusBlocked, "workflow blocked awaiting intervention", nil)
	}
}
