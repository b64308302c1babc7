// Package team implements the orchestrator: it owns the task set, the event
// log, the dependency graphs, and the work queue of one workflow run, and
// drives the execution strategy in reaction to status changes.
package team

import (
	"log/slog"
	"sync"

	"github.com/crewkit/crewkit/internal/agent"
	"github.com/crewkit/crewkit/internal/errors"
	"github.com/crewkit/crewkit/internal/eventlog"
	"github.com/crewkit/crewkit/internal/graph"
	"github.com/crewkit/crewkit/internal/queue"
	"github.com/crewkit/crewkit/internal/strategy"
	"github.com/crewkit/crewkit/internal/task"
	"github.com/crewkit/crewkit/internal/variable"
	"github.com/crewkit/crewkit/internal/workflow"
)

// DefaultMaxConcurrency bounds simultaneous task executions when no explicit
// bound is configured.
const DefaultMaxConcurrency = 4

// Team composes agents, tasks and inputs into one orchestrated workflow.
//
// All mutable state (task statuses, the log, the graphs) is serialized
// through the team's lock; execution units never mutate it directly, they
// call back into the team which appends a log entry before any status change
// becomes visible.
type Team struct {
	name string

	mu     sync.Mutex
	status workflow.Status

	agents map[string]*agent.Agent
	tasks  map[string]*task.Task // by reference id
	order  []string              // reference ids in declaration order
	inputs variable.Set

	strat          strategy.Strategy
	maxConcurrency int
	executor       agent.Executor
	logger         *slog.Logger

	log   *eventlog.Log
	graph *graph.Graph
	queue *queue.Queue

	dispatched map[string]bool // ref id -> submitted and not yet finished
	busyAgents map[string]bool // agent id -> executing
	revised    map[string]bool // ref id -> re-entering after feedback

	result   string
	runDone  chan struct{}
	stopping sync.WaitGroup
}

// Option configures a Team.
type Option func(*Team)

// WithAgents registers the agents available to tasks.
func WithAgents(agents ...*agent.Agent) Option {
	return func(t *Team) {
		for _, a := range agents {
			t.agents[a.ID] = a
		}
	}
}

// WithTasks registers the tasks in declaration order.
func WithTasks(tasks ...*task.Task) Option {
	return func(t *Team) {
		for _, tk := range tasks {
			t.tasks[tk.ReferenceID] = tk
			t.order = append(t.order, tk.ReferenceID)
		}
	}
}

// WithInputs sets the workflow inputs available to placeholder interpolation.
func WithInputs(inputs map[string]any) Option {
	return func(t *Team) {
		t.inputs = variable.Set(inputs)
	}
}

// WithStrategy selects the execution strategy.
func WithStrategy(s strategy.Strategy) Option {
	return func(t *Team) {
		t.strat = s
	}
}

// WithMaxConcurrency bounds simultaneous task executions.
func WithMaxConcurrency(n int) Option {
	return func(t *Team) {
		if n > 0 {
			t.maxConcurrency = n
		}
	}
}

// WithExecutor sets the default executor for agents without their own.
func WithExecutor(e agent.Executor) Option {
	return func(t *Team) {
		t.executor = e
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Team) {
		t.logger = l
	}
}

// New creates a team. Tasks and agents are validated on Start, not here.
func New(name string, opts ...Option) *Team {
	t := &Team{
		name:           name,
		status:         workflow.StatusInitial,
		agents:         make(map[string]*agent.Agent),
		tasks:          make(map[string]*task.Task),
		inputs:         variable.Set{},
		maxConcurrency: DefaultMaxConcurrency,
		logger:         slog.Default(),
		log:            eventlog.New(),
		dispatched:     make(map[string]bool),
		busyAgents:     make(map[string]bool),
		revised:        make(map[string]bool),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.strat == nil {
		t.strat, _ = strategy.New(strategy.NameDeterministic)
	}
	return t
}

// FromDefinition creates a team from a validated workflow definition.
func FromDefinition(def *workflow.Definition, opts ...Option) (*Team, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	strat, err := strategy.New(def.Strategy)
	if err != nil {
		return nil, errors.ErrConfigInvalid("strategy", err.Error())
	}

	agents := def.BuildAgents()
	base := []Option{
		WithTasks(def.BuildTasks()...),
		WithInputs(def.Inputs),
		WithStrategy(strat),
	}
	for _, a := range agents {
		base = append(base, WithAgents(a))
	}
	if def.MaxConcurrency > 0 {
		base = append(base, WithMaxConcurrency(def.MaxConcurrency))
	}
	return New(def.Name, append(base, opts...)...), nil
}

// Name returns the team name.
func (t *Team) Name() string {
	return t.name
}

// Status returns the current workflow status.
func (t *Team) Status() workflow.Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Result returns the workflow result: the last deliverable task's result,
// falling back to the last declared task's result. Empty until FINISHED.
func (t *Team) Result() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// Task returns the task with the given reference id.
func (t *Team) Task(refID string) (*task.Task, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tk, ok := t.tasks[refID]
	if !ok {
		return nil, errors.ErrTaskNotFound(refID)
	}
	return tk, nil
}

// EventLog returns a copy of the run's event log in append order.
func (t *Team) EventLog() []eventlog.Entry {
	return t.log.Entries()
}

// Subscribe returns a channel of log entries for the given task id, or all
// entries for eventlog.GlobalTaskID.
func (t *Team) Subscribe(taskID string) <-chan eventlog.Entry {
	return t.log.Subscribe(taskID)
}

// Unsubscribe releases a subscription obtained from Subscribe.
func (t *Team) Unsubscribe(taskID string, ch <-chan eventlog.Entry) {
	t.log.Unsubscribe(taskID, ch)
}

// TaskStats derives the usage stats of one task from the event log.
func (t *Team) TaskStats(refID string) (eventlog.TaskStats, error) {
	if _, err := t.Task(refID); err != nil {
		return eventlog.TaskStats{}, err
	}
	return eventlog.DeriveTaskStats(t.log.Entries(), refID), nil
}

// WorkflowStats derives the aggregate usage stats of the run.
func (t *Team) WorkflowStats() eventlog.WorkflowStats {
	return eventlog.DeriveWorkflowStats(t.log.Entries())
}

// executorFor resolves the executor used to invoke an agent.
func (t *Team) executorFor(a *agent.Agent) agent.Executor {
	if a.Executor != nil {
		return a.Executor
	}
	return t.executor
}

// appendWorkflowStatus records and applies a workflow status change. The log
// entry is appended before the status mutation is visible. Caller holds the
// lock.
func (t *Team) appendWorkflowStatus(to workflow.Status, description string, meta map[string]any) {
	t.log.Append(eventlog.Entry{
		Type:           eventlog.EntryWorkflowStatus,
		WorkflowStatus: to,
		Description:    description,
		Metadata:       meta,
	})
	t.status = to
}

// appendTaskStatus records and applies a task status change. Caller holds the
// lock.
func (t *Team) appendTaskStatus(tk *task.Task, to task.Status, description string, meta map[string]any) {
	t.log.Append(eventlog.Entry{
		Type:        eventlog.EntryTaskStatus,
		TaskID:      tk.ReferenceID,
		TaskStatus:  to,
		AgentID:     tk.AgentID,
		Description: description,
		Metadata:    meta,
	})
	tk.Status = to
}
