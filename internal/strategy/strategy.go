// Package strategy implements the pluggable scheduling policies that decide
// which tasks may run and what context they receive.
package strategy

import (
	"fmt"
	"strings"

	"github.com/crewkit/crewkit/internal/graph"
	"github.com/crewkit/crewkit/internal/task"
	"github.com/crewkit/crewkit/internal/variable"
)

// Strategy names accepted by New.
const (
	NameDeterministic = "deterministic"
	NameSequential    = "sequential"
	NameHierarchical  = "hierarchical"
)

// State is the scheduling view a strategy computes over. It is assembled by
// the orchestrator under its lock and never retained by a strategy.
type State struct {
	// Graph is the run's dependency graph.
	Graph *graph.Graph

	// Tasks maps reference id to task.
	Tasks map[string]*task.Task

	// BusyAgents holds the ids of agents with an execution in flight that
	// cannot take on more work.
	BusyAgents map[string]bool

	// Revised holds reference ids of tasks re-entering after feedback. They
	// dispatch ahead of ordinary eligible tasks.
	Revised map[string]bool
}

// Strategy decides which tasks are eligible to dispatch and assembles the
// context handed to each task's agent.
type Strategy interface {
	// Name returns the strategy's registered name.
	Name() string

	// GraphOptions returns the options used when building the run's graph.
	GraphOptions() []graph.Option

	// Eligible returns reference ids ready to dispatch, in dispatch order.
	Eligible(s State) []string

	// Invalidates returns the reference ids whose work is stale once refID
	// is revised, in declaration order.
	Invalidates(s State, refID string) []string

	// ContextFor renders the free-text context and the variable set for the
	// task, from the results of its context-graph ancestors merged over the
	// workflow inputs.
	ContextFor(s State, refID string, inputs variable.Set) (string, variable.Set)
}

// New returns the named strategy. Defaults to deterministic when name is
// empty.
func New(name string) (Strategy, error) {
	switch name {
	case "", NameDeterministic:
		return deterministic{}, nil
	case NameSequential:
		return sequential{}, nil
	case NameHierarchical:
		return hierarchical{}, nil
	default:
		return nil, fmt.Errorf("unknown execution strategy %q", name)
	}
}

// depsSatisfied reports whether every execution-graph parent of refID has
// reached a terminal success status.
func depsSatisfied(s State, refID string) bool {
	for _, dep := range s.Graph.DependenciesOf(refID) {
		t, ok := s.Tasks[dep]
		if !ok || !t.Status.IsTerminalSuccess() {
			return false
		}
	}
	return true
}

// orderEligible sorts revised tasks ahead of the rest, keeping declaration
// order within each class. ids must already be in declaration order.
func orderEligible(s State, ids []string) []string {
	var revised, normal []string
	for _, id := range ids {
		if s.Revised[id] {
			revised = append(revised, id)
		} else {
			normal = append(normal, id)
		}
	}
	return append(revised, normal...)
}

// renderContext walks the context-graph ancestors of refID in declaration
// order and renders each finished ancestor's result. Structured results are
// additionally exposed in the returned variable set keyed by ancestor
// reference id, winning over workflow inputs on collision.
func renderContext(s State, refID string, inputs variable.Set) (string, variable.Set) {
	vars := variable.Set{}.Merge(inputs)
	var blocks []string

	for _, anc := range s.Graph.ContextAncestors(refID) {
		t, ok := s.Tasks[anc]
		if !ok || !t.Status.IsTerminalSuccess() || t.Result == "" {
			continue
		}
		desc := t.Description
		if desc == "" {
			desc = t.Title
		}
		blocks = append(blocks, fmt.Sprintf("Task: %s\nResult: %s\n", desc, t.Result))

		if structured := t.StructuredResult(); structured != nil {
			vars[anc] = structured
		}
	}

	return strings.Join(blocks, "\n"), vars
}
