package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewkit/crewkit/internal/eventlog"
	"github.com/crewkit/crewkit/internal/task"
	"github.com/crewkit/crewkit/internal/workflow"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(context.Background(), DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func sampleEntries() []eventlog.Entry {
	base := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	return []eventlog.Entry{
		{
			ID: "e0", Seq: 0, Timestamp: base,
			Type:           eventlog.EntryWorkflowStatus,
			WorkflowStatus: workflow.StatusRunning,
			Description:    "workflow started",
		},
		{
			ID: "e1", Seq: 1, Timestamp: base.Add(time.Second),
			Type:       eventlog.EntryTaskStatus,
			TaskID:     "research",
			TaskStatus: task.StatusDoing,
			AgentID:    "analyst",
		},
		{
			ID: "e2", Seq: 2, Timestamp: base.Add(2 * time.Second),
			Type:       eventlog.EntryTaskStatus,
			TaskID:     "research",
			TaskStatus: task.StatusDone,
			Metadata:   map[string]any{"input_tokens": float64(120)},
		},
	}
}

func TestOpenUnknownDialect(t *testing.T) {
	_, err := Open(context.Background(), Dialect("oracle"), "")
	assert.Error(t, err)
}

func TestSaveAndQueryEntries(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, d.SaveEntries(ctx, "run-1", sampleEntries()))

	got, err := d.QueryEntries(ctx, "run-1", QueryOptions{})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, 0, got[0].Seq)
	assert.Equal(t, workflow.StatusRunning, got[0].WorkflowStatus)
	assert.Equal(t, "research", got[1].TaskID)
	assert.Equal(t, task.StatusDone, got[2].TaskStatus)
	assert.Equal(t, float64(120), got[2].Metadata["input_tokens"])
}

func TestSaveEntriesIdempotent(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	entries := sampleEntries()

	require.NoError(t, d.SaveEntries(ctx, "run-1", entries))
	require.NoError(t, d.SaveEntries(ctx, "run-1", entries))

	got, err := d.QueryEntries(ctx, "run-1", QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestQueryEntriesByTask(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, d.SaveEntries(ctx, "run-1", sampleEntries()))

	got, err := d.QueryEntries(ctx, "run-1", QueryOptions{TaskID: "research"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, e := range got {
		assert.Equal(t, "research", e.TaskID)
	}
}

func TestQueryEntriesLimit(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, d.SaveEntries(ctx, "run-1", sampleEntries()))

	got, err := d.QueryEntries(ctx, "run-1", QueryOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].Seq)
}

func TestRunsIsolatedAndListed(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, d.SaveEntries(ctx, "run-old", sampleEntries()))

	newer := sampleEntries()
	for i := range newer {
		newer[i].Timestamp = newer[i].Timestamp.Add(time.Hour)
	}
	require.NoError(t, d.SaveEntries(ctx, "run-new", newer))

	other, err := d.QueryEntries(ctx, "run-old", QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, other, 3)

	runs, err := d.Runs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-new", "run-old"}, runs)
}

func TestEmptySaveIsNoop(t *testing.T) {
	d := openTestDB(t)
	require.NoError(t, d.SaveEntries(context.Background(), "run-1", nil))
}
