// Package graph builds and queries the dependency graphs of a workflow run.
//
// Two edge sets are maintained over the same node set: execution edges gate
// when a task may start, context edges decide whose results feed a task's
// input. Both are derived once per run from the declared task list.
package graph

import (
	"sort"

	"github.com/crewkit/crewkit/internal/errors"
	"github.com/crewkit/crewkit/internal/task"
)

// Graph is the immutable dependency structure of one workflow run.
type Graph struct {
	order      []string            // task ids in declaration order
	index      map[string]int      // task id -> declaration index
	execDeps   map[string][]string // task id -> execution-graph parents
	dependents map[string][]string // task id -> direct execution dependents
	ctxDeps    map[string][]string // task id -> context-graph parents
}

// Option configures graph construction.
type Option func(*builder)

type builder struct {
	implicitChaining bool
}

// WithoutImplicitChaining disables the declaration-order chain between tasks
// that disallow parallel execution. Used for workflows modeled as an explicit
// DAG where only declared dependencies should gate execution.
func WithoutImplicitChaining() Option {
	return func(b *builder) {
		b.implicitChaining = false
	}
}

// Build validates the task set and constructs both graphs.
//
// Execution edges come from each task's declared dependencies, plus an
// implicit chain between consecutive non-parallel tasks in declaration order
// (skipped when the declared dependencies already order the pair). Context
// edges are the declared dependencies, or every previously declared task when
// a task declares none.
func Build(tasks []*task.Task, opts ...Option) (*Graph, error) {
	b := &builder{implicitChaining: true}
	for _, opt := range opts {
		opt(b)
	}

	g := &Graph{
		index:      make(map[string]int, len(tasks)),
		execDeps:   make(map[string][]string, len(tasks)),
		dependents: make(map[string][]string, len(tasks)),
		ctxDeps:    make(map[string][]string, len(tasks)),
	}
	for i, t := range tasks {
		g.order = append(g.order, t.ReferenceID)
		g.index[t.ReferenceID] = i
	}

	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			if dep == t.ReferenceID {
				return nil, errors.ErrGraphCycle([]string{t.ReferenceID})
			}
			if _, ok := g.index[dep]; !ok {
				return nil, errors.ErrGraphDangling(t.ReferenceID, dep)
			}
			g.execDeps[t.ReferenceID] = append(g.execDeps[t.ReferenceID], dep)
		}
	}

	if b.implicitChaining {
		chainNonParallel(g, tasks)
	}

	for id, deps := range g.execDeps {
		for _, dep := range deps {
			g.dependents[dep] = append(g.dependents[dep], id)
		}
	}
	for _, deps := range g.dependents {
		g.sortByDeclaration(deps)
	}

	if cycle := g.findCycle(); len(cycle) > 0 {
		return nil, errors.ErrGraphCycle(cycle)
	}

	for i, t := range tasks {
		if len(t.Dependencies) > 0 {
			g.ctxDeps[t.ReferenceID] = append([]string(nil), t.Dependencies...)
			continue
		}
		// No declared dependencies: every earlier task's result is context.
		g.ctxDeps[t.ReferenceID] = append([]string(nil), g.order[:i]...)
	}

	return g, nil
}

// chainNonParallel links each non-parallel task to the task declared before
// it, unless the declared dependencies already order that pair.
func chainNonParallel(g *Graph, tasks []*task.Task) {
	prev := ""
	for _, t := range tasks {
		if t.AllowParallelExecution {
			continue
		}
		if prev != "" && !g.reachable(t.ReferenceID, prev) {
			g.execDeps[t.ReferenceID] = append(g.execDeps[t.ReferenceID], prev)
		}
		prev = t.ReferenceID
	}
}

// reachable reports whether anc is an ancestor of id over execution edges.
func (g *Graph) reachable(id, anc string) bool {
	seen := make(map[string]bool)
	stack := append([]string(nil), g.execDeps[id]...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == anc {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		stack = append(stack, g.execDeps[cur]...)
	}
	return false
}

// findCycle runs Kahn's algorithm and returns the ids left unsorted, which
// are exactly the members of (or downstream of) a dependency cycle.
func (g *Graph) findCycle() []string {
	inDegree := make(map[string]int, len(g.order))
	for _, id := range g.order {
		inDegree[id] = len(g.execDeps[id])
	}

	var ready []string
	for _, id := range g.order {
		if inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	sorted := 0
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		sorted++
		for _, dep := range g.dependents[id] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if sorted == len(g.order) {
		return nil
	}
	var cycle []string
	for _, id := range g.order {
		if inDegree[id] > 0 {
			cycle = append(cycle, id)
		}
	}
	return cycle
}

// Order returns the task ids in declaration order.
func (g *Graph) Order() []string {
	return append([]string(nil), g.order...)
}

// Contains reports whether the task id is a node of the graph.
func (g *Graph) Contains(id string) bool {
	_, ok := g.index[id]
	return ok
}

// DeclarationIndex returns the position of the task in the declared list,
// or -1 when unknown.
func (g *Graph) DeclarationIndex(id string) int {
	if i, ok := g.index[id]; ok {
		return i
	}
	return -1
}

// DependenciesOf returns the direct execution-graph parents of the task.
func (g *Graph) DependenciesOf(id string) []string {
	return append([]string(nil), g.execDeps[id]...)
}

// DependentsOf returns the direct execution-graph children of the task.
func (g *Graph) DependentsOf(id string) []string {
	return append([]string(nil), g.dependents[id]...)
}

// TransitiveDependents returns every task downstream of id over execution
// edges, in declaration order. Used to invalidate stale work after a
// revision.
func (g *Graph) TransitiveDependents(id string) []string {
	seen := make(map[string]bool)
	stack := append([]string(nil), g.dependents[id]...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		stack = append(stack, g.dependents[cur]...)
	}

	out := make([]string, 0, len(seen))
	for dep := range seen {
		out = append(out, dep)
	}
	g.sortByDeclaration(out)
	return out
}

// ContextAncestors returns every task upstream of id over context edges, in
// declaration order.
func (g *Graph) ContextAncestors(id string) []string {
	seen := make(map[string]bool)
	stack := append([]string(nil), g.ctxDeps[id]...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		stack = append(stack, g.ctxDeps[cur]...)
	}

	out := make([]string, 0, len(seen))
	for anc := range seen {
		out = append(out, anc)
	}
	g.sortByDeclaration(out)
	return out
}

func (g *Graph) sortByDeclaration(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		return g.index[ids[i]] < g.index[ids[j]]
	})
}
