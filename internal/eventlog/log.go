package eventlog

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// GlobalTaskID is the special task id for subscribing to all entries.
const GlobalTaskID = "*"

// Log is an append-only, totally ordered event log. Entries are immutable
// once appended; the log grows monotonically until Clear.
type Log struct {
	mu          sync.RWMutex
	entries     []Entry
	subscribers map[string][]chan Entry
	bufferSize  int
	closed      bool
}

// Option configures a Log.
type Option func(*Log)

// WithBufferSize sets the subscription channel buffer size.
func WithBufferSize(size int) Option {
	return func(l *Log) {
		l.bufferSize = size
	}
}

// New creates an empty event log.
func New(opts ...Option) *Log {
	l := &Log{
		subscribers: make(map[string][]chan Entry),
		bufferSize:  100,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append assigns the entry a sequence number, id and timestamp (when unset),
// stores it, and fans it out to subscribers. Returns the stored entry.
func (l *Log) Append(e Entry) Entry {
	l.mu.Lock()

	e.Seq = len(l.entries)
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	l.entries = append(l.entries, e)

	if l.closed {
		l.mu.Unlock()
		return e
	}

	// Collect target channels under the lock, send after releasing it so a
	// slow subscriber can't block an append.
	var targets []chan Entry
	targets = append(targets, l.subscribers[e.TaskID]...)
	if e.TaskID != GlobalTaskID {
		targets = append(targets, l.subscribers[GlobalTaskID]...)
	}
	l.mu.Unlock()

	for _, ch := range targets {
		select {
		case ch <- e:
		default:
			// Skip subscribers with full buffers.
		}
	}
	return e
}

// Entries returns a copy of the full log in append order.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// TaskEntries returns a copy of the entries referencing the given task.
func (l *Log) TaskEntries(taskID string) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for _, e := range l.entries {
		if e.TaskID == taskID {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Clear discards all entries. Used only on full workflow reset.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// Subscribe returns a channel receiving entries for the given task id.
// Use GlobalTaskID to receive every entry.
func (l *Log) Subscribe(taskID string) <-chan Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		ch := make(chan Entry)
		close(ch)
		return ch
	}

	ch := make(chan Entry, l.bufferSize)
	l.subscribers[taskID] = append(l.subscribers[taskID], ch)
	return ch
}

// Unsubscribe removes a subscription channel and closes it.
func (l *Log) Unsubscribe(taskID string, ch <-chan Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	subs := l.subscribers[taskID]
	for i, sub := range subs {
		if sub == ch {
			l.subscribers[taskID] = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}
	if len(l.subscribers[taskID]) == 0 {
		delete(l.subscribers, taskID)
	}
}

// Close shuts down all subscriptions. The entries remain readable.
func (l *Log) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.closed = true
	for taskID, subs := range l.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(l.subscribers, taskID)
	}
}
