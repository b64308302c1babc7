// Package errors provides structured error types for crewkit.
package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for crewkit.
const (
	// Workflow control errors
	CodeWorkflowRunning    Code = "WORKFLOW_RUNNING"
	CodeWorkflowNotRunning Code = "WORKFLOW_NOT_RUNNING"
	CodeIllegalTransition  Code = "ILLEGAL_TRANSITION"

	// Task errors
	CodeTaskNotFound     Code = "TASK_NOT_FOUND"
	CodeTaskInvalidState Code = "TASK_INVALID_STATE"
	CodeAgentNotFound    Code = "AGENT_NOT_FOUND"

	// Graph configuration errors
	CodeGraphCycle    Code = "GRAPH_CYCLE"
	CodeGraphDangling Code = "GRAPH_DANGLING_DEPENDENCY"

	// Config errors
	CodeConfigInvalid Code = "CONFIG_INVALID"
)

// Category groups error codes for HTTP status mapping.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNotFound
	CategoryBadRequest
	CategoryConflict
	CategoryInternal
)

// codeCategories maps error codes to their categories.
var codeCategories = map[Code]Category{
	CodeWorkflowRunning:    CategoryConflict,
	CodeWorkflowNotRunning: CategoryConflict,
	CodeIllegalTransition:  CategoryConflict,
	CodeTaskNotFound:       CategoryNotFound,
	CodeTaskInvalidState:   CategoryBadRequest,
	CodeAgentNotFound:      CategoryNotFound,
	CodeGraphCycle:         CategoryBadRequest,
	CodeGraphDangling:      CategoryBadRequest,
	CodeConfigInvalid:      CategoryBadRequest,
}

// HTTPStatus returns the HTTP status code for a category.
func (c Category) HTTPStatus() int {
	switch c {
	case CategoryNotFound:
		return 404
	case CategoryBadRequest:
		return 400
	case CategoryConflict:
		return 409
	default:
		return 500
	}
}

// WorkflowError is the structured error type for crewkit.
type WorkflowError struct {
	Code  Code   `json:"code"`
	What  string `json:"what"`
	Why   string `json:"why,omitempty"`
	Fix   string `json:"fix,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *WorkflowError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *WorkflowError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly message for CLI output.
func (e *WorkflowError) UserMessage() string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString("\n\nWhy: ")
		b.WriteString(e.Why)
	}
	if e.Fix != "" {
		b.WriteString("\n\nFix: ")
		b.WriteString(e.Fix)
	}
	return b.String()
}

// Category returns the error category for HTTP status mapping.
func (e *WorkflowError) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e *WorkflowError) HTTPStatus() int {
	return e.Category().HTTPStatus()
}

// MarshalJSON implements json.Marshaler.
func (e *WorkflowError) MarshalJSON() ([]byte, error) {
	type alias WorkflowError
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is a WorkflowError with the same code.
func (e *WorkflowError) Is(target error) bool {
	t, ok := target.(*WorkflowError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause.
func (e *WorkflowError) WithCause(err error) *WorkflowError {
	return &WorkflowError{
		Code:  e.Code,
		What:  e.What,
		Why:   e.Why,
		Fix:   e.Fix,
		Cause: err,
	}
}

// --- Error constructors ---

// ErrWorkflowRunning returns an error when start is issued on a running workflow.
func ErrWorkflowRunning() *WorkflowError {
	return &WorkflowError{
		Code: CodeWorkflowRunning,
		What: "workflow is already running",
		Why:  "Start cannot be issued while a run is in progress",
		Fix:  "Wait for the run to finish, or call Stop first",
	}
}

// ErrIllegalTransition returns an error for a control call issued from a state
// where it is not meaningful (e.g. pause while paused).
func ErrIllegalTransition(op, from string) *WorkflowError {
	return &WorkflowError{
		Code: CodeIllegalTransition,
		What: fmt.Sprintf("cannot %s workflow in status %s", op, from),
		Why:  "The requested control operation is not valid from the current workflow status",
		Fix:  "Check Status() before issuing control operations",
	}
}

// ErrTaskNotFound returns an error when a task id doesn't resolve.
func ErrTaskNotFound(id string) *WorkflowError {
	return &WorkflowError{
		Code: CodeTaskNotFound,
		What: fmt.Sprintf("task %s not found", id),
		Why:  "No task with this id exists in the workflow",
	}
}

// ErrTaskInvalidState returns an error when a task operation is illegal for the
// task's current status.
func ErrTaskInvalidState(id, current, expected string) *WorkflowError {
	return &WorkflowError{
		Code: CodeTaskInvalidState,
		What: fmt.Sprintf("task %s is in status '%s', expected '%s'", id, current, expected),
		Why:  "The requested operation cannot be performed in the current task status",
	}
}

// ErrAgentNotFound returns an error when a task references an unknown agent.
func ErrAgentNotFound(id string) *WorkflowError {
	return &WorkflowError{
		Code: CodeAgentNotFound,
		What: fmt.Sprintf("agent %s not found", id),
		Why:  "A task is assigned to an agent that is not part of the workflow",
		Fix:  "Declare the agent in the workflow definition or fix the assignment",
	}
}

// ErrGraphCycle returns an error when the dependency relation contains a cycle.
func ErrGraphCycle(members []string) *WorkflowError {
	return &WorkflowError{
		Code: CodeGraphCycle,
		What: "task dependencies contain a cycle",
		Why:  fmt.Sprintf("Cycle involves tasks: %s", strings.Join(members, ", ")),
		Fix:  "Remove one of the dependencies to break the cycle",
	}
}

// ErrGraphDangling returns an error for a dependency on a nonexistent task.
func ErrGraphDangling(taskID, depID string) *WorkflowError {
	return &WorkflowError{
		Code: CodeGraphDangling,
		What: fmt.Sprintf("task %s depends on unknown task %s", taskID, depID),
		Why:  "Dependencies must reference referenceIds declared in the same workflow",
		Fix:  "Fix the dependency to reference an existing task",
	}
}

// ErrConfigInvalid returns an error for invalid configuration.
func ErrConfigInvalid(field, reason string) *WorkflowError {
	return &WorkflowError{
		Code: CodeConfigInvalid,
		What: fmt.Sprintf("invalid configuration: %s", field),
		Why:  reason,
		Fix:  "Check .crewkit/config.yaml and fix the invalid field",
	}
}

// AsWorkflowError attempts to convert an error to a WorkflowError.
// Returns nil if the error is not a WorkflowError.
func AsWorkflowError(err error) *WorkflowError {
	var wfErr *WorkflowError
	if As(err, &wfErr) {
		return wfErr
	}
	return nil
}

// As is a convenience wrapper for errors.As behavior on WorkflowError.
func As(err error, target any) bool {
	return asError(err, target)
}

func asError(err error, target any) bool {
	if err == nil {
		return false
	}
	if wfErr, ok := err.(*WorkflowError); ok {
		if t, ok := target.(**WorkflowError); ok {
			*t = wfErr
			return true
		}
	}
	if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
		return asError(unwrapper.Unwrap(), target)
	}
	return false
}

// Wrap wraps a generic error into a WorkflowError with unknown code.
func Wrap(err error, what string) *WorkflowError {
	return &WorkflowError{
		Code:  Code("UNKNOWN"),
		What:  what,
		Cause: err,
	}
}
