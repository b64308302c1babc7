package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/crewkit/crewkit/internal/agent"
	"github.com/crewkit/crewkit/internal/eventlog"
	"github.com/crewkit/crewkit/internal/task"
	"github.com/crewkit/crewkit/internal/workflow"
)

// QueryOptions filters QueryEntries. Zero values mean no filter.
type QueryOptions struct {
	TaskID string
	Since  time.Time
	Limit  int
}

// SaveEntries persists log entries under the given run id in one
// transaction. Re-saving a (run, seq) pair is ignored, so exporting the same
// log twice is safe.
func (d *DB) SaveEntries(ctx context.Context, runID string, entries []eventlog.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	insert := `INSERT INTO event_log
		(run_id, seq, entry_id, recorded_at, entry_type, workflow_status,
		 task_id, task_status, agent_id, agent_status, description, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, seq) DO NOTHING`

	stmt, err := tx.PrepareContext(ctx, d.rebind(insert))
	if err != nil {
		return fmt.Errorf("prepare save: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		var metadata any
		if e.Metadata != nil {
			raw, err := json.Marshal(e.Metadata)
			if err != nil {
				return fmt.Errorf("marshal entry %d metadata: %w", e.Seq, err)
			}
			metadata = string(raw)
		}
		_, err := stmt.ExecContext(ctx,
			runID, e.Seq, e.ID, e.Timestamp.UTC(), string(e.Type),
			nullable(string(e.WorkflowStatus)), nullable(e.TaskID),
			nullable(string(e.TaskStatus)), nullable(e.AgentID),
			nullable(string(e.AgentStatus)), nullable(e.Description), metadata)
		if err != nil {
			return fmt.Errorf("save entry %d: %w", e.Seq, err)
		}
	}
	return tx.Commit()
}

// QueryEntries reads persisted entries for a run in seq order.
func (d *DB) QueryEntries(ctx context.Context, runID string, opts QueryOptions) ([]eventlog.Entry, error) {
	query := `SELECT seq, entry_id, recorded_at, entry_type, workflow_status,
		task_id, task_status, agent_id, agent_status, description, metadata
		FROM event_log WHERE run_id = ?`
	args := []any{runID}

	if opts.TaskID != "" {
		query += ` AND task_id = ?`
		args = append(args, opts.TaskID)
	}
	if !opts.Since.IsZero() {
		query += ` AND recorded_at >= ?`
		args = append(args, opts.Since.UTC())
	}
	query += ` ORDER BY seq`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := d.conn.QueryContext(ctx, d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var out []eventlog.Entry
	for rows.Next() {
		var (
			e          eventlog.Entry
			entryType  string
			wfStatus   sql.NullString
			taskID     sql.NullString
			taskStatus sql.NullString
			agentID    sql.NullString
			agStatus   sql.NullString
			desc       sql.NullString
			metadata   sql.NullString
		)
		err := rows.Scan(&e.Seq, &e.ID, &e.Timestamp, &entryType, &wfStatus,
			&taskID, &taskStatus, &agentID, &agStatus, &desc, &metadata)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Type = eventlog.EntryType(entryType)
		e.WorkflowStatus = workflow.Status(wfStatus.String)
		e.TaskID = taskID.String
		e.TaskStatus = task.Status(taskStatus.String)
		e.AgentID = agentID.String
		e.AgentStatus = agent.Status(agStatus.String)
		e.Description = desc.String
		if metadata.Valid && metadata.String != "" {
			var m map[string]any
			if err := json.Unmarshal([]byte(metadata.String), &m); err != nil {
				return nil, fmt.Errorf("unmarshal entry %d metadata: %w", e.Seq, err)
			}
			e.Metadata = m
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Runs lists the distinct run ids in the store, most recent first.
func (d *DB) Runs(ctx context.Context) ([]string, error) {
	rows, err := d.conn.QueryContext(ctx, d.rebind(
		`SELECT run_id FROM event_log GROUP BY run_id ORDER BY MAX(recorded_at) DESC`))
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
