package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crewkit/crewkit/internal/config"
	"github.com/crewkit/crewkit/internal/graph"
	"github.com/crewkit/crewkit/internal/strategy"
	"github.com/crewkit/crewkit/internal/workflow"
)

// newValidateCmd creates the validate command
func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [workflow...]",
		Short: "Validate workflow definitions",
		Long: `Validate workflow definitions without running them.

Checks the YAML structure, agent references, and the dependency graph,
including cycles and references to undeclared tasks, under the workflow's
declared strategy. Without arguments the configured workflows glob is
validated.

Example:
  crewkit validate workflow.yaml
  crewkit validate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			paths := args
			if len(paths) == 0 {
				paths, err = workflow.Discover(cfg.Workflows)
				if err != nil {
					return err
				}
				if len(paths) == 0 {
					return fmt.Errorf("no workflow matched %s", cfg.Workflows)
				}
			}

			failed := 0
			for _, path := range paths {
				if err := validateWorkflow(cfg, path); err != nil {
					failed++
					fmt.Printf("✗ %s: %v\n", path, err)
					continue
				}
				fmt.Printf("✓ %s\n", path)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d workflows invalid", failed, len(paths))
			}
			return nil
		},
	}
}

func validateWorkflow(cfg *config.Config, path string) error {
	def, err := workflow.Load(path)
	if err != nil {
		return err
	}
	applyOverrides(def, cfg, "", 0)

	strat, err := strategy.New(def.Strategy)
	if err != nil {
		return err
	}
	_, err = graph.Build(def.BuildTasks(), strat.GraphOptions()...)
	return err
}
