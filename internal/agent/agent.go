// Package agent provides the agent model and the execution boundary between
// the orchestrator and the reasoning loop that performs a task.
package agent

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/crewkit/crewkit/internal/task"
)

// Status represents the agent's position in its think/act/observe cycle.
//
// The orchestrator logs every transition but only interprets terminal
// success/error statuses; the rest are telemetry.
type Status string

const (
	StatusInitial         Status = "INITIAL"
	StatusIterationStart  Status = "ITERATION_START"
	StatusThinking        Status = "THINKING"
	StatusThinkingEnd     Status = "THINKING_END"
	StatusThought         Status = "THOUGHT"
	StatusExecutingAction Status = "EXECUTING_ACTION"
	StatusUsingTool       Status = "USING_TOOL"
	StatusUsingToolEnd    Status = "USING_TOOL_END"
	StatusObservation     Status = "OBSERVATION"
	StatusFinalAnswer     Status = "FINAL_ANSWER"
	StatusTaskCompleted   Status = "TASK_COMPLETED"

	StatusThinkingError         Status = "THINKING_ERROR"
	StatusUsingToolError        Status = "USING_TOOL_ERROR"
	StatusToolDoesNotExist      Status = "TOOL_DOES_NOT_EXIST"
	StatusIssuesParsingOutput   Status = "ISSUES_PARSING_LLM_OUTPUT"
	StatusAgenticLoopError      Status = "AGENTIC_LOOP_ERROR"
	StatusMaxIterationsError    Status = "MAX_ITERATIONS_ERROR"
	StatusWeirdOutput           Status = "WEIRD_LLM_OUTPUT"

	StatusPaused      Status = "PAUSED"
	StatusResumed     Status = "RESUMED"
	StatusTaskAborted Status = "TASK_ABORTED"
)

// IsError reports whether the status is one of the error branches that
// converge on the task being marked blocked.
func (s Status) IsError() bool {
	switch s {
	case StatusThinkingError, StatusUsingToolError, StatusToolDoesNotExist,
		StatusIssuesParsingOutput, StatusAgenticLoopError,
		StatusMaxIterationsError, StatusWeirdOutput:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status ends an invocation.
func (s Status) IsTerminal() bool {
	return s == StatusTaskCompleted || s == StatusTaskAborted || s.IsError()
}

// Agent is a capability that executes tasks through an internal reasoning loop.
//
// An agent handles at most one active task at a time. The orchestrator either
// defers a second ready task or, when CloneWhenBusy is set, duplicates the
// agent for concurrent dispatch.
type Agent struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Role   string `json:"role,omitempty" yaml:"role,omitempty"`
	Model  string `json:"model,omitempty" yaml:"model,omitempty"`
	Status Status `json:"status" yaml:"status"`

	CurrentIterations int `json:"current_iterations" yaml:"current_iterations"`
	MaxIterations     int `json:"max_iterations" yaml:"max_iterations"`

	// CloneWhenBusy permits duplicating this agent when two ready tasks would
	// otherwise contend for it.
	CloneWhenBusy bool `json:"clone_when_busy,omitempty" yaml:"clone_when_busy,omitempty"`

	// Executor performs invocations. Not serialized.
	Executor Executor `json:"-" yaml:"-"`
}

// New creates an agent with the given id, name and model.
func New(id, name, model string) *Agent {
	if id == "" {
		id = uuid.New().String()
	}
	return &Agent{
		ID:            id,
		Name:          name,
		Model:         model,
		Status:        StatusInitial,
		MaxIterations: 10,
	}
}

// Clone returns a duplicate agent instance sharing the same executor and
// configuration but with fresh identity and iteration counters.
func (a *Agent) Clone() *Agent {
	dup := *a
	dup.ID = uuid.New().String()
	dup.Status = StatusInitial
	dup.CurrentIterations = 0
	return &dup
}

// Invocation carries everything an executor needs to perform a task.
type Invocation struct {
	Task    *task.Task
	Context string
	Inputs  map[string]any
}

// Result is the terminal output of a successful invocation.
type Result struct {
	Output       string
	InputTokens  int
	OutputTokens int
	Iterations   int
	Model        string
}

// StatusEvent is one lifecycle signal emitted during an invocation.
type StatusEvent struct {
	AgentID     string
	Status      Status
	Description string
	Metadata    map[string]any
	Timestamp   time.Time
}

// EmitFunc receives lifecycle events from an executor. Implementations must be
// safe to call from the executor's goroutine.
type EmitFunc func(StatusEvent)

// Executor is the collaborator boundary: given a task, its context and inputs,
// eventually produce a result or an error. Executors must observe ctx and
// return ctx's error promptly once it is cancelled; intermediate status events
// are optional telemetry.
type Executor interface {
	Execute(ctx context.Context, a *Agent, inv Invocation, emit EmitFunc) (*Result, error)
}
