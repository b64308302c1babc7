package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewkit/crewkit/internal/task"
)

func TestStatusPredicates(t *testing.T) {
	errStatuses := []Status{
		StatusThinkingError, StatusUsingToolError, StatusToolDoesNotExist,
		StatusIssuesParsingOutput, StatusAgenticLoopError,
		StatusMaxIterationsError, StatusWeirdOutput,
	}
	for _, s := range errStatuses {
		assert.True(t, s.IsError(), "%s should be an error status", s)
		assert.True(t, s.IsTerminal(), "%s should be terminal", s)
	}

	assert.True(t, StatusTaskCompleted.IsTerminal())
	assert.True(t, StatusTaskAborted.IsTerminal())
	assert.False(t, StatusTaskCompleted.IsError())
	assert.False(t, StatusThinking.IsTerminal())
	assert.False(t, StatusThinking.IsError())
}

func TestClone(t *testing.T) {
	a := New("writer", "Writer", "gpt-4o")
	a.CurrentIterations = 3
	a.Status = StatusThinking

	dup := a.Clone()
	assert.NotEqual(t, a.ID, dup.ID)
	assert.Equal(t, a.Name, dup.Name)
	assert.Equal(t, a.Model, dup.Model)
	assert.Equal(t, StatusInitial, dup.Status)
	assert.Zero(t, dup.CurrentIterations)
}

func TestScriptedExecutor_Success(t *testing.T) {
	a := New("writer", "Writer", "gpt-4o")
	exec := NewScriptedExecutor(map[string]string{"draft": "the draft text"})

	var events []StatusEvent
	res, err := exec.Execute(context.Background(), a, Invocation{
		Task:    task.New("draft", "Write the draft", a.ID),
		Context: "Task: research\nResult: findings\n",
	}, func(ev StatusEvent) { events = append(events, ev) })

	require.NoError(t, err)
	assert.Equal(t, "the draft text", res.Output)
	assert.Positive(t, res.InputTokens)
	assert.Positive(t, res.OutputTokens)

	require.NotEmpty(t, events)
	assert.Equal(t, StatusIterationStart, events[0].Status)
	last := events[len(events)-1]
	assert.Equal(t, StatusTaskCompleted, last.Status)
	assert.Contains(t, last.Metadata, "input_tokens")
}

func TestScriptedExecutor_FallbackOutput(t *testing.T) {
	a := New("writer", "Writer", "")
	exec := NewScriptedExecutor(nil)

	res, err := exec.Execute(context.Background(), a, Invocation{
		Task: task.New("draft", "Write the draft", a.ID),
	}, nil)

	require.NoError(t, err)
	assert.Contains(t, res.Output, "Write the draft")
}

func TestScriptedExecutor_Failure(t *testing.T) {
	a := New("writer", "Writer", "")
	exec := &ScriptedExecutor{Failures: map[string]string{"draft": "tool exploded"}}

	var last StatusEvent
	_, err := exec.Execute(context.Background(), a, Invocation{
		Task: task.New("draft", "Write the draft", a.ID),
	}, func(ev StatusEvent) { last = ev })

	require.Error(t, err)
	assert.Equal(t, StatusAgenticLoopError, last.Status)
}

func TestScriptedExecutor_Cancellation(t *testing.T) {
	a := New("writer", "Writer", "")
	exec := &ScriptedExecutor{StepDelay: 50 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var last StatusEvent
	_, err := exec.Execute(ctx, a, Invocation{
		Task: task.New("draft", "Write the draft", a.ID),
	}, func(ev StatusEvent) { last = ev })

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusTaskAborted, last.Status)
}
