package cli

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/crewkit/crewkit/internal/config"
	"github.com/crewkit/crewkit/internal/db"
	"github.com/crewkit/crewkit/internal/eventlog"
	"github.com/crewkit/crewkit/internal/task"
	"github.com/crewkit/crewkit/internal/workflow"
)

// ANSI codes for event log rendering
const (
	ansiDim    = "\033[2m"
	ansiCyan   = "\033[36m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiRed    = "\033[31m"
	ansiReset  = "\033[0m"
)

// newLogCmd creates the log command
func newLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log [run-id]",
		Short: "Show a persisted run's event log",
		Long: `Show the event log of a persisted run.

Without a run id, lists persisted runs newest first. Requires persistence
to be enabled in the configuration.

Example:
  crewkit log
  crewkit log 3f2a... --task review --tail 50`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Persistence.Enabled {
				return fmt.Errorf("persistence is disabled; enable it in %s", config.ConfigFileName)
			}

			store, err := db.Open(cmd.Context(), db.Dialect(cfg.Persistence.Dialect), cfg.Persistence.DSN)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if len(args) == 0 {
				runs, err := store.Runs(cmd.Context())
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					fmt.Println("No persisted runs found.")
					return nil
				}
				for _, id := range runs {
					fmt.Println(id)
				}
				return nil
			}

			taskID, _ := cmd.Flags().GetString("task")
			tail, _ := cmd.Flags().GetInt("tail")
			noColor, _ := cmd.Flags().GetBool("no-color")

			entries, err := store.QueryEntries(cmd.Context(), args[0], db.QueryOptions{TaskID: taskID})
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Printf("No entries found for run %s\n", args[0])
				return nil
			}
			if tail > 0 && len(entries) > tail {
				entries = entries[len(entries)-tail:]
			}

			useColor := !noColor && isatty.IsTerminal(os.Stdout.Fd())
			for _, e := range entries {
				printEntry(e, useColor)
			}
			return nil
		},
	}

	cmd.Flags().String("task", "", "only entries for this task id")
	cmd.Flags().Int("tail", 0, "only the last N entries")
	cmd.Flags().Bool("no-color", false, "disable colored output")

	return cmd
}

func printEntry(e eventlog.Entry, useColor bool) {
	dim, reset := ansiDim, ansiReset
	if !useColor {
		dim, reset = "", ""
	}

	timeStr := e.Timestamp.Format("15:04:05.000")
	fmt.Printf("%s%4d [%s]%s ", dim, e.Seq, timeStr, reset)

	switch e.Type {
	case eventlog.EntryWorkflowStatus:
		fmt.Printf("workflow %s", paint(string(e.WorkflowStatus), workflowStatusColor(e.WorkflowStatus), useColor))
	case eventlog.EntryTaskStatus:
		fmt.Printf("task %s %s", e.TaskID, paint(string(e.TaskStatus), taskStatusColor(e.TaskStatus), useColor))
	case eventlog.EntryAgentStatus:
		fmt.Printf("agent %s %s", e.AgentID, paint(string(e.AgentStatus), ansiCyan, useColor))
	}

	if e.Description != "" {
		fmt.Printf(" %s%s%s", dim, e.Description, reset)
	}
	fmt.Println()
}

func paint(s, color string, useColor bool) string {
	if !useColor {
		return s
	}
	return color + s + ansiReset
}

func taskStatusColor(s task.Status) string {
	switch s {
	case task.StatusDone, task.StatusValidated:
		return ansiGreen
	case task.StatusDoing, task.StatusResumed:
		return ansiCyan
	case task.StatusBlocked, task.StatusAborted:
		return ansiRed
	case task.StatusPaused, task.StatusRevise, task.StatusAwaitingValidation:
		return ansiYellow
	default:
		return ansiDim
	}
}

func workflowStatusColor(s workflow.Status) string {
	switch s {
	case workflow.StatusFinished:
		return ansiGreen
	case workflow.StatusRunning, workflow.StatusResumed:
		return ansiCyan
	case workflow.StatusBlocked, workflow.StatusErrored:
		return ansiRed
	default:
		return ansiYellow
	}
}
