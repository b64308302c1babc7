package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowError_Error(t *testing.T) {
	err := ErrIllegalTransition("pause", "PAUSED")
	assert.Contains(t, err.Error(), "cannot pause workflow in status PAUSED")
	assert.Contains(t, err.Error(), "not valid from the current workflow status")
}

func TestWorkflowError_IsByCode(t *testing.T) {
	err := ErrTaskNotFound("task-1")
	assert.True(t, stderrors.Is(err, ErrTaskNotFound("task-2")), "Is should match on code, not message")
	assert.False(t, stderrors.Is(err, ErrWorkflowRunning()))
}

func TestWorkflowError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := ErrConfigInvalid("strategy", "unknown value").WithCause(cause)
	assert.Equal(t, cause, stderrors.Unwrap(err))
	assert.Contains(t, err.Error(), "boom")
}

func TestWorkflowError_HTTPStatus(t *testing.T) {
	assert.Equal(t, 404, ErrTaskNotFound("x").HTTPStatus())
	assert.Equal(t, 409, ErrWorkflowRunning().HTTPStatus())
	assert.Equal(t, 400, ErrGraphCycle([]string{"a", "b"}).HTTPStatus())
	assert.Equal(t, 500, Wrap(fmt.Errorf("x"), "unknown").HTTPStatus())
}

func TestAsWorkflowError(t *testing.T) {
	inner := ErrGraphDangling("b", "missing")
	wrapped := fmt.Errorf("build graph: %w", inner)

	got := AsWorkflowError(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, CodeGraphDangling, got.Code)

	assert.Nil(t, AsWorkflowError(fmt.Errorf("plain")))
}

func TestUserMessage(t *testing.T) {
	msg := ErrGraphCycle([]string{"a", "b"}).UserMessage()
	assert.Contains(t, msg, "Error: ")
	assert.Contains(t, msg, "Why: ")
	assert.Contains(t, msg, "Fix: ")
}
