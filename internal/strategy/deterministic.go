package strategy

import (
	"github.com/crewkit/crewkit/internal/graph"
	"github.com/crewkit/crewkit/internal/variable"
)

// deterministic is the default dependency-driven policy: a task is eligible
// when all of its execution-graph parents have succeeded and its agent is
// free. Non-parallel tasks are chained in declaration order via the graph's
// implicit edges.
type deterministic struct{}

func (deterministic) Name() string { return NameDeterministic }

func (deterministic) GraphOptions() []graph.Option { return nil }

func (deterministic) Eligible(s State) []string {
	var out []string
	for _, id := range s.Graph.Order() {
		t, ok := s.Tasks[id]
		if !ok || !t.Status.IsDispatchable() {
			continue
		}
		if !depsSatisfied(s, id) {
			continue
		}
		if s.BusyAgents[t.AgentID] {
			continue
		}
		out = append(out, id)
	}
	return orderEligible(s, out)
}

func (deterministic) Invalidates(s State, refID string) []string {
	return s.Graph.TransitiveDependents(refID)
}

func (deterministic) ContextFor(s State, refID string, inputs variable.Set) (string, variable.Set) {
	return renderContext(s, refID, inputs)
}
