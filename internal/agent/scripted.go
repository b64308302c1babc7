package agent

import (
	"context"
	"fmt"
	"time"
)

// ScriptedExecutor is a deterministic executor used by the CLI's dry runs and
// by tests. It emits the full think/act/observe event sequence and returns a
// canned response per task reference id, falling back to echoing the task.
type ScriptedExecutor struct {
	// Responses maps task reference id to the scripted output.
	Responses map[string]string

	// Failures maps task reference id to an error message; matching tasks emit
	// an AGENTIC_LOOP_ERROR event and fail.
	Failures map[string]string

	// StepDelay is slept between lifecycle events. Zero means no delay.
	StepDelay time.Duration
}

// NewScriptedExecutor creates a scripted executor with canned responses.
func NewScriptedExecutor(responses map[string]string) *ScriptedExecutor {
	return &ScriptedExecutor{Responses: responses}
}

// Execute runs one scripted invocation.
func (e *ScriptedExecutor) Execute(ctx context.Context, a *Agent, inv Invocation, emit EmitFunc) (*Result, error) {
	steps := []struct {
		status Status
		desc   string
	}{
		{StatusIterationStart, "iteration started"},
		{StatusThinking, "thinking about the task"},
		{StatusThinkingEnd, "thinking finished"},
		{StatusThought, "produced a thought"},
	}

	for _, step := range steps {
		if err := e.pause(ctx); err != nil {
			e.emit(emit, a, StatusTaskAborted, "invocation aborted", nil)
			return nil, err
		}
		e.emit(emit, a, step.status, step.desc, nil)
	}

	if msg, ok := e.failureFor(inv.Task.ReferenceID); ok {
		e.emit(emit, a, StatusAgenticLoopError, msg, map[string]any{"error": msg})
		return nil, fmt.Errorf("scripted failure: %s", msg)
	}

	output, ok := e.Responses[inv.Task.ReferenceID]
	if !ok {
		output = fmt.Sprintf("Completed: %s", inv.Task.Title)
	}

	if err := e.pause(ctx); err != nil {
		e.emit(emit, a, StatusTaskAborted, "invocation aborted", nil)
		return nil, err
	}

	inputTokens := approxTokens(inv.Context) + approxTokens(inv.Task.Description)
	outputTokens := approxTokens(output)

	e.emit(emit, a, StatusFinalAnswer, "produced final answer", nil)
	e.emit(emit, a, StatusTaskCompleted, "task completed", map[string]any{
		"input_tokens":  inputTokens,
		"output_tokens": outputTokens,
	})

	return &Result{
		Output:       output,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Iterations:   1,
		Model:        a.Model,
	}, nil
}

func (e *ScriptedExecutor) failureFor(refID string) (string, bool) {
	if e.Failures == nil {
		return "", false
	}
	msg, ok := e.Failures[refID]
	return msg, ok
}

// pause waits for the configured step delay, honoring cancellation.
func (e *ScriptedExecutor) pause(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.StepDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(e.StepDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *ScriptedExecutor) emit(emit EmitFunc, a *Agent, status Status, desc string, meta map[string]any) {
	if emit == nil {
		return
	}
	emit(StatusEvent{
		AgentID:     a.ID,
		Status:      status,
		Description: desc,
		Metadata:    meta,
		Timestamp:   time.Now(),
	})
}

// approxTokens estimates token counts for scripted runs. Four characters per
// token is close enough for cost derivation tests.
func approxTokens(s string) int {
	if s == "" {
		return 0
	}
	return len(s)/4 + 1
}
