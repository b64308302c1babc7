package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/crewkit/crewkit/internal/workflow"
)

// newListCmd creates the list command
func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List discovered workflows",
		Long: `List workflow definitions matching the configured workflows glob.

Example:
  crewkit list
  CREWKIT_WORKFLOWS='flows/**/*.yaml' crewkit list`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			paths, err := workflow.Discover(cfg.Workflows)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				fmt.Printf("No workflows matched %s\n", cfg.Workflows)
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "FILE\tNAME\tSTRATEGY\tAGENTS\tTASKS")
			for _, path := range paths {
				def, err := workflow.Load(path)
				if err != nil {
					fmt.Fprintf(w, "%s\tinvalid: %v\t\t\t\n", path, err)
					continue
				}
				strategyName := def.Strategy
				if strategyName == "" {
					strategyName = cfg.Strategy
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n",
					path, def.Name, strategyName, len(def.Agents), len(def.Tasks))
			}
			w.Flush()
			return nil
		},
	}
}
