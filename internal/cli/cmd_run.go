package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/crewkit/crewkit/internal/agent"
	"github.com/crewkit/crewkit/internal/config"
	"github.com/crewkit/crewkit/internal/db"
	"github.com/crewkit/crewkit/internal/eventlog"
	"github.com/crewkit/crewkit/internal/team"
	"github.com/crewkit/crewkit/internal/workflow"
)

// newRunCmd creates the run command
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [workflow]",
		Short: "Execute a workflow",
		Long: `Execute a workflow definition to completion.

Tasks run with the built-in scripted executor; use --responses to script
per-task outputs from a YAML file mapping task id to output. Without a
workflow argument the configured workflows glob is searched, which must
then match exactly one file.

Example:
  crewkit run workflow.yaml
  crewkit run workflow.yaml --strategy sequential
  crewkit run workflow.yaml --set ticket=PROJ-42 --responses replies.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			path, err := resolveWorkflowPath(cfg, args)
			if err != nil {
				return err
			}

			def, err := workflow.Load(path)
			if err != nil {
				return err
			}

			strategyName, _ := cmd.Flags().GetString("strategy")
			maxConcurrency, _ := cmd.Flags().GetInt("max-concurrency")
			inputs, _ := cmd.Flags().GetStringToString("set")
			responsesFile, _ := cmd.Flags().GetString("responses")
			noPersist, _ := cmd.Flags().GetBool("no-persist")

			applyOverrides(def, cfg, strategyName, maxConcurrency)
			for k, v := range inputs {
				if def.Inputs == nil {
					def.Inputs = make(map[string]any)
				}
				def.Inputs[k] = coerceInput(v)
			}

			executor := agent.NewScriptedExecutor(nil)
			if responsesFile != "" {
				responses, err := loadResponses(responsesFile)
				if err != nil {
					return err
				}
				executor.Responses = responses
			}

			logger := newLogger(cfg)
			tm, err := team.FromDefinition(def,
				team.WithExecutor(executor),
				team.WithLogger(logger),
			)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := tm.Start(context.Background()); err != nil {
				return err
			}

			// A signal stops the run cooperatively and the drained workflow
			// unblocks Wait. waitDone keeps the deferred cancel from
			// stopping an already finished run.
			waitDone := make(chan struct{})
			go func() {
				select {
				case <-ctx.Done():
					if err := tm.Stop("interrupted"); err != nil {
						logger.Warn("stop after signal", "error", err)
					}
				case <-waitDone:
				}
			}()

			// A run has no operator attached, so a workflow that blocks
			// waiting for intervention is stopped rather than hung.
			events := tm.Subscribe(eventlog.GlobalTaskID)
			defer tm.Unsubscribe(eventlog.GlobalTaskID, events)
			blocked := make(chan struct{}, 1)
			go func() {
				for e := range events {
					if e.Type == eventlog.EntryWorkflowStatus && e.WorkflowStatus == workflow.StatusBlocked {
						select {
						case blocked <- struct{}{}:
						default:
						}
						if err := tm.Stop("blocked awaiting intervention"); err != nil {
							logger.Warn("stop blocked workflow", "error", err)
						}
					}
				}
			}()

			result, err := tm.Wait(context.Background())
			close(waitDone)

			if !noPersist && cfg.Persistence.Enabled {
				runID := uuid.New().String()
				if perr := persistRun(cfg, runID, tm); perr != nil {
					logger.Warn("persist event log", "error", perr)
				} else if !quiet {
					fmt.Printf("Run persisted as %s\n", runID)
				}
			}

			printRunSummary(def, tm)
			if err != nil {
				return err
			}
			select {
			case <-blocked:
				return fmt.Errorf("workflow blocked awaiting intervention; use 'crewkit serve' to validate or give feedback")
			default:
			}
			if result != "" && !quiet {
				fmt.Printf("\nResult:\n%s\n", result)
			}
			return nil
		},
	}

	cmd.Flags().String("strategy", "", "execution strategy (deterministic, sequential, hierarchical)")
	cmd.Flags().Int("max-concurrency", 0, "maximum simultaneous task executions")
	cmd.Flags().StringToString("set", nil, "workflow input as key=value (repeatable)")
	cmd.Flags().String("responses", "", "YAML file mapping task id to scripted output")
	cmd.Flags().Bool("no-persist", false, "skip persisting the event log")

	return cmd
}

// resolveWorkflowPath picks the workflow file for a command invocation.
func resolveWorkflowPath(cfg *config.Config, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	paths, err := workflow.Discover(cfg.Workflows)
	if err != nil {
		return "", err
	}
	switch len(paths) {
	case 0:
		return "", fmt.Errorf("no workflow matched %s; pass a workflow file", cfg.Workflows)
	case 1:
		return paths[0], nil
	default:
		return "", fmt.Errorf("%d workflows matched %s; pass a workflow file", len(paths), cfg.Workflows)
	}
}

// applyOverrides folds config defaults and flag overrides into a definition.
// Flags win over the file, the file wins over config.
func applyOverrides(def *workflow.Definition, cfg *config.Config, strategyName string, maxConcurrency int) {
	if strategyName != "" {
		def.Strategy = strategyName
	} else if def.Strategy == "" {
		def.Strategy = cfg.Strategy
	}
	if maxConcurrency > 0 {
		def.MaxConcurrency = maxConcurrency
	} else if def.MaxConcurrency == 0 {
		def.MaxConcurrency = cfg.MaxConcurrency
	}
}

// coerceInput parses flag values so numeric and boolean inputs interpolate
// the same way they would from YAML.
func coerceInput(v string) any {
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}

func loadResponses(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read responses %s: %w", path, err)
	}
	responses := make(map[string]string)
	if err := yaml.Unmarshal(data, &responses); err != nil {
		return nil, fmt.Errorf("parse responses %s: %w", path, err)
	}
	return responses, nil
}

func persistRun(cfg *config.Config, runID string, tm *team.Team) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := db.Open(ctx, db.Dialect(cfg.Persistence.Dialect), cfg.Persistence.DSN)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	return store.SaveEntries(ctx, runID, tm.EventLog())
}

// printRunSummary renders the per-task outcome table after a run.
func printRunSummary(def *workflow.Definition, tm *team.Team) {
	if quiet {
		return
	}

	fmt.Printf("\nWorkflow %s: %s\n\n", def.Name, colorWorkflowStatus(tm.Status()))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tSTATUS\tDURATION\tTOKENS\tCOST")
	for _, td := range def.Tasks {
		t, err := tm.Task(td.ReferenceID)
		if err != nil {
			continue
		}
		stats, err := tm.TaskStats(td.ReferenceID)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t$%.4f\n",
			td.ReferenceID,
			colorTaskStatus(t.Status),
			stats.Duration.Round(time.Millisecond),
			stats.InputTokens+stats.OutputTokens,
			stats.CostUSD,
		)
	}
	w.Flush()

	total := tm.WorkflowStats()
	fmt.Printf("\nTotal: %s, %d tokens, $%.4f\n",
		total.Duration.Round(time.Millisecond),
		total.InputTokens+total.OutputTokens,
		total.CostUSD,
	)
}
