package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewkit/crewkit/internal/graph"
	"github.com/crewkit/crewkit/internal/task"
	"github.com/crewkit/crewkit/internal/variable"
)

func mkTask(id, agentID string, parallel bool, deps ...string) *task.Task {
	t := task.New(id, "task "+id, agentID)
	t.AllowParallelExecution = parallel
	t.Dependencies = deps
	return t
}

func mkState(t *testing.T, strat Strategy, tasks ...*task.Task) State {
	t.Helper()
	g, err := graph.Build(tasks, strat.GraphOptions()...)
	require.NoError(t, err)

	byRef := make(map[string]*task.Task, len(tasks))
	for _, tk := range tasks {
		byRef[tk.ReferenceID] = tk
	}
	return State{
		Graph:      g,
		Tasks:      byRef,
		BusyAgents: make(map[string]bool),
		Revised:    make(map[string]bool),
	}
}

func TestNew(t *testing.T) {
	for _, name := range []string{"", NameDeterministic, NameSequential, NameHierarchical} {
		s, err := New(name)
		require.NoError(t, err)
		require.NotNil(t, s)
	}
	_, err := New("random")
	assert.Error(t, err)
}

func TestDeterministicEligibleRespectsDependencies(t *testing.T) {
	strat, _ := New(NameDeterministic)
	a := mkTask("a", "ag1", true)
	b := mkTask("b", "ag2", true, "a")
	s := mkState(t, strat, a, b)

	assert.Equal(t, []string{"a"}, strat.Eligible(s))

	a.Status = task.StatusDone
	assert.Equal(t, []string{"b"}, strat.Eligible(s))
}

func TestDeterministicTreatsValidatedAsDone(t *testing.T) {
	strat, _ := New(NameDeterministic)
	a := mkTask("a", "ag1", true)
	b := mkTask("b", "ag2", true, "a")
	s := mkState(t, strat, a, b)

	a.Status = task.StatusValidated
	assert.Equal(t, []string{"b"}, strat.Eligible(s))
}

func TestDeterministicSkipsBusyAgents(t *testing.T) {
	strat, _ := New(NameDeterministic)
	a := mkTask("a", "shared", true)
	b := mkTask("b", "shared", true)
	s := mkState(t, strat, a, b)

	s.BusyAgents["shared"] = true
	assert.Empty(t, strat.Eligible(s))

	delete(s.BusyAgents, "shared")
	assert.Equal(t, []string{"a", "b"}, strat.Eligible(s))
}

func TestDeterministicImplicitChainSerializesNonParallelTasks(t *testing.T) {
	strat, _ := New(NameDeterministic)
	a := mkTask("a", "ag1", false)
	b := mkTask("b", "ag2", false)
	s := mkState(t, strat, a, b)

	assert.Equal(t, []string{"a"}, strat.Eligible(s))
	a.Status = task.StatusDoing
	assert.Empty(t, strat.Eligible(s))
	a.Status = task.StatusDone
	assert.Equal(t, []string{"b"}, strat.Eligible(s))
}

func TestRevisedTasksDispatchFirst(t *testing.T) {
	strat, _ := New(NameDeterministic)
	a := mkTask("a", "ag1", true)
	b := mkTask("b", "ag2", true)
	s := mkState(t, strat, a, b)

	b.Status = task.StatusRevise
	s.Revised["b"] = true

	assert.Equal(t, []string{"b", "a"}, strat.Eligible(s))
}

func TestSequentialOneAtATime(t *testing.T) {
	strat, _ := New(NameSequential)
	a := mkTask("a", "ag1", true)
	b := mkTask("b", "ag2", true)
	s := mkState(t, strat, a, b)

	assert.Equal(t, []string{"a"}, strat.Eligible(s))

	a.Status = task.StatusDoing
	assert.Empty(t, strat.Eligible(s))

	a.Status = task.StatusDone
	assert.Equal(t, []string{"b"}, strat.Eligible(s))
}

func TestSequentialStallsOnBlockedTask(t *testing.T) {
	strat, _ := New(NameSequential)
	a := mkTask("a", "ag1", true)
	b := mkTask("b", "ag2", true)
	s := mkState(t, strat, a, b)

	a.Status = task.StatusBlocked
	assert.Empty(t, strat.Eligible(s))
}

func TestDeterministicInvalidatesTransitiveDependents(t *testing.T) {
	strat, _ := New(NameDeterministic)
	a := mkTask("a", "ag1", true)
	b := mkTask("b", "ag1", true, "a")
	c := mkTask("c", "ag1", true, "b")
	d := mkTask("d", "ag1", true)
	s := mkState(t, strat, a, b, c, d)

	assert.Equal(t, []string{"b", "c"}, strat.Invalidates(s, "a"))
	assert.Empty(t, strat.Invalidates(s, "d"))
}

func TestSequentialInvalidatesPositionalSuccessors(t *testing.T) {
	strat, _ := New(NameSequential)
	a := mkTask("a", "ag1", false)
	b := mkTask("b", "ag1", false)
	c := mkTask("c", "ag1", false)
	s := mkState(t, strat, a, b, c)

	// Sequential ignores edges, so revision rewinds by declaration order
	// even with no dependencies declared.
	assert.Equal(t, []string{"b", "c"}, strat.Invalidates(s, "a"))
	assert.Equal(t, []string{"c"}, strat.Invalidates(s, "b"))
	assert.Empty(t, strat.Invalidates(s, "c"))
}

func TestHierarchicalDispatchesAllEligibleTogether(t *testing.T) {
	strat, _ := New(NameHierarchical)
	// Non-parallel flags are ignored; only declared edges gate dispatch.
	a := mkTask("a", "shared", false)
	b := mkTask("b", "shared", false)
	c := mkTask("c", "ag3", false, "a", "b")
	s := mkState(t, strat, a, b, c)

	assert.Equal(t, []string{"a", "b"}, strat.Eligible(s))

	// Busy agents do not serialize hierarchical dispatch.
	s.BusyAgents["shared"] = true
	assert.Equal(t, []string{"a", "b"}, strat.Eligible(s))

	a.Status = task.StatusDone
	b.Status = task.StatusDone
	assert.Equal(t, []string{"c"}, strat.Eligible(s))
}

func TestContextForRendersAncestorResults(t *testing.T) {
	strat, _ := New(NameDeterministic)
	a := mkTask("a", "ag1", true)
	a.Description = "research the topic"
	b := mkTask("b", "ag2", true, "a")
	c := mkTask("c", "ag3", true, "b")
	s := mkState(t, strat, a, b, c)

	a.Status = task.StatusDone
	a.Result = "renewables are growing"
	b.Status = task.StatusDone
	b.Result = "draft written"

	ctx, vars := strat.ContextFor(s, "c", variable.Set{"topic": "energy"})

	assert.Equal(t,
		"Task: research the topic\nResult: renewables are growing\n"+
			"\n"+
			"Task: task b\nResult: draft written\n",
		ctx)
	assert.Equal(t, "energy", vars["topic"])
}

func TestContextForSkipsUnfinishedAncestors(t *testing.T) {
	strat, _ := New(NameDeterministic)
	a := mkTask("a", "ag1", true)
	b := mkTask("b", "ag2", true)
	c := mkTask("c", "ag3", true)
	s := mkState(t, strat, a, b, c)

	a.Status = task.StatusDone
	a.Result = "finished"
	b.Status = task.StatusBlocked
	b.Result = "partial"

	ctx, _ := strat.ContextFor(s, "c", nil)
	assert.Contains(t, ctx, "finished")
	assert.NotContains(t, ctx, "partial")
}

func TestContextForExposesStructuredResults(t *testing.T) {
	strat, _ := New(NameDeterministic)
	a := mkTask("research", "ag1", true)
	a.OutputSchema = []string{"summary"}
	b := mkTask("write", "ag2", true, "research")
	s := mkState(t, strat, a, b)

	a.Status = task.StatusDone
	a.Result = `{"summary":"solar is cheap","research":"ignored"}`

	_, vars := strat.ContextFor(s, "write", variable.Set{"research": "input value"})

	structured, ok := vars["research"].(map[string]any)
	require.True(t, ok, "structured result wins over the workflow input")
	assert.Equal(t, "solar is cheap", structured["summary"])
}
