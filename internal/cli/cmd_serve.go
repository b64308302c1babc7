package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crewkit/crewkit/internal/agent"
	"github.com/crewkit/crewkit/internal/api"
	"github.com/crewkit/crewkit/internal/team"
	"github.com/crewkit/crewkit/internal/workflow"
)

// newServeCmd creates the serve command
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [workflow]",
		Short: "Serve the control API for a workflow",
		Long: `Load a workflow and expose it over the HTTP control API.

The workflow is not started automatically; POST /api/workflow/start begins
a run, and GET /api/events streams the event log over a websocket.

Example:
  crewkit serve workflow.yaml
  crewkit serve workflow.yaml --addr 0.0.0.0:8080`,
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
			applyOverrides(def, cfg, "", 0)

			logger := newLogger(cfg)
			tm, err := team.FromDefinition(def,
				team.WithExecutor(agent.NewScriptedExecutor(nil)),
				team.WithLogger(logger),
			)
			if err != nil {
				return err
			}

			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = cfg.API.Addr
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if !quiet {
				fmt.Printf("Serving workflow %s on http://%s\n", def.Name, addr)
			}
			return api.New(tm, logger).ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().String("addr", "", "listen address (overrides config)")

	return cmd
}
