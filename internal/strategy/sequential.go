package strategy

import (
	"github.com/crewkit/crewkit/internal/graph"
	"github.com/crewkit/crewkit/internal/task"
	"github.com/crewkit/crewkit/internal/variable"
)

// sequential ignores dependency edges entirely and runs strictly one task at
// a time in declaration order.
type sequential struct{}

func (sequential) Name() string { return NameSequential }

func (sequential) GraphOptions() []graph.Option {
	return []graph.Option{graph.WithoutImplicitChaining()}
}

func (sequential) Eligible(s State) []string {
	for _, id := range s.Graph.Order() {
		t, ok := s.Tasks[id]
		if !ok {
			continue
		}
		if t.Status.IsTerminalSuccess() {
			continue
		}
		// The first unfinished task is the only candidate. Anything in
		// flight or waiting on outside intervention stalls the run here.
		if t.Status == task.StatusDoing || !t.Status.IsDispatchable() {
			return nil
		}
		if s.BusyAgents[t.AgentID] {
			return nil
		}
		return []string{id}
	}
	return nil
}

// Invalidates rewinds everything declared after the revised task. Sequential
// runs are ordered by declaration, not by edges, so positional successors are
// the downstream work.
func (sequential) Invalidates(s State, refID string) []string {
	var out []string
	seen := false
	for _, id := range s.Graph.Order() {
		if seen {
			out = append(out, id)
		}
		if id == refID {
			seen = true
		}
	}
	return out
}

func (sequential) ContextFor(s State, refID string, inputs variable.Set) (string, variable.Set) {
	return renderContext(s, refID, inputs)
}
