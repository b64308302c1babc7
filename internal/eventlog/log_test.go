package eventlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewkit/crewkit/internal/task"
	"github.com/crewkit/crewkit/internal/workflow"
)

func TestAppendAssignsSequence(t *testing.T) {
	l := New()

	first := l.Append(Entry{Type: EntryWorkflowStatus, WorkflowStatus: workflow.StatusRunning})
	second := l.Append(Entry{Type: EntryTaskStatus, TaskID: "t1", TaskStatus: task.StatusDoing})

	assert.Equal(t, 0, first.Seq)
	assert.Equal(t, 1, second.Seq)
	assert.NotEmpty(t, first.ID)
	assert.NotEmpty(t, second.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, first.Timestamp.IsZero())
}

func TestEntriesReturnsCopy(t *testing.T) {
	l := New()
	l.Append(Entry{Type: EntryTaskStatus, TaskID: "t1", TaskStatus: task.StatusDoing})

	got := l.Entries()
	require.Len(t, got, 1)
	got[0].TaskID = "mutated"

	assert.Equal(t, "t1", l.Entries()[0].TaskID)
}

func TestTaskEntriesFilters(t *testing.T) {
	l := New()
	l.Append(Entry{Type: EntryTaskStatus, TaskID: "t1", TaskStatus: task.StatusDoing})
	l.Append(Entry{Type: EntryTaskStatus, TaskID: "t2", TaskStatus: task.StatusDoing})
	l.Append(Entry{Type: EntryTaskStatus, TaskID: "t1", TaskStatus: task.StatusDone})

	got := l.TaskEntries("t1")
	require.Len(t, got, 2)
	assert.Equal(t, task.StatusDoing, got[0].TaskStatus)
	assert.Equal(t, task.StatusDone, got[1].TaskStatus)
}

func TestSubscribePerTask(t *testing.T) {
	l := New()
	ch := l.Subscribe("t1")

	l.Append(Entry{Type: EntryTaskStatus, TaskID: "t2", TaskStatus: task.StatusDoing})
	l.Append(Entry{Type: EntryTaskStatus, TaskID: "t1", TaskStatus: task.StatusDoing})

	select {
	case e := <-ch:
		assert.Equal(t, "t1", e.TaskID)
	case <-time.After(time.Second):
		t.Fatal("no entry received")
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected entry for task %s", e.TaskID)
	default:
	}
}

func TestSubscribeGlobal(t *testing.T) {
	l := New()
	ch := l.Subscribe(GlobalTaskID)

	l.Append(Entry{Type: EntryWorkflowStatus, WorkflowStatus: workflow.StatusRunning})
	l.Append(Entry{Type: EntryTaskStatus, TaskID: "t1", TaskStatus: task.StatusDoing})

	e1 := <-ch
	e2 := <-ch
	assert.Equal(t, 0, e1.Seq)
	assert.Equal(t, 1, e2.Seq)
}

func TestSlowSubscriberDoesNotBlockAppend(t *testing.T) {
	l := New(WithBufferSize(1))
	ch := l.Subscribe("t1")

	l.Append(Entry{Type: EntryTaskStatus, TaskID: "t1", TaskStatus: task.StatusDoing})
	l.Append(Entry{Type: EntryTaskStatus, TaskID: "t1", TaskStatus: task.StatusDone})

	// First append fills the buffer; second is dropped, not blocked on.
	assert.Equal(t, 2, l.Len())
	e := <-ch
	assert.Equal(t, task.StatusDoing, e.TaskStatus)
	select {
	case <-ch:
		t.Fatal("dropped entry was delivered")
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	l := New()
	ch := l.Subscribe("t1")
	l.Unsubscribe("t1", ch)

	_, ok := <-ch
	assert.False(t, ok)

	// Appends after unsubscribe do not panic.
	l.Append(Entry{Type: EntryTaskStatus, TaskID: "t1", TaskStatus: task.StatusDoing})
}

func TestCloseShutsDownSubscribers(t *testing.T) {
	l := New()
	ch := l.Subscribe("t1")
	l.Append(Entry{Type: EntryTaskStatus, TaskID: "t1", TaskStatus: task.StatusDoing})
	l.Close()

	// Buffered entry is still readable, then the channel reports closed.
	e, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, "t1", e.TaskID)
	_, ok = <-ch
	assert.False(t, ok)

	// Entries survive Close.
	assert.Equal(t, 1, l.Len())

	got := l.Subscribe("t2")
	_, ok = <-got
	assert.False(t, ok)
}

func TestClearResetsSequence(t *testing.T) {
	l := New()
	l.Append(Entry{Type: EntryWorkflowStatus, WorkflowStatus: workflow.StatusRunning})
	l.Append(Entry{Type: EntryWorkflowStatus, WorkflowStatus: workflow.StatusFinished})
	l.Clear()

	assert.Equal(t, 0, l.Len())
	e := l.Append(Entry{Type: EntryWorkflowStatus, WorkflowStatus: workflow.StatusRunning})
	assert.Equal(t, 0, e.Seq)
}
