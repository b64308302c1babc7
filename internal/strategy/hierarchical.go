package strategy

import (
	"github.com/crewkit/crewkit/internal/graph"
	"github.com/crewkit/crewkit/internal/variable"
)

// hierarchical dispatches every currently-eligible task together, gated only
// by the declared dependency edges. There is no implicit chaining and no
// agent-busy serialization, so it suits workflows modeled as an explicit DAG.
type hierarchical struct{}

func (hierarchical) Name() string { return NameHierarchical }

func (hierarchical) GraphOptions() []graph.Option {
	return []graph.Option{graph.WithoutImplicitChaining()}
}

func (hierarchical) Eligible(s State) []string {
	var out []string
	for _, id := range s.Graph.Order() {
		t, ok := s.Tasks[id]
		if !ok || !t.Status.IsDispatchable() {
			continue
		}
		if !depsSatisfied(s, id) {
			continue
		}
		out = append(out, id)
	}
	return orderEligible(s, out)
}

func (hierarchical) Invalidates(s State, refID string) []string {
	return s.Graph.TransitiveDependents(refID)
}

func (hierarchical) ContextFor(s State, refID string, inputs variable.Set) (string, variable.Set) {
	return renderContext(s, refID, inputs)
}
