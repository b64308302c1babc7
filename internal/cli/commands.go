package cli

import (
	"os"

	"github.com/mattn/go-isatty"

	"github.com/crewkit/crewkit/internal/task"
	"github.com/crewkit/crewkit/internal/workflow"
)

// stdoutColor reports whether stdout should receive ANSI colors.
func stdoutColor() bool {
	return isatty.IsTerminal(os.Stdout.Fd())
}

func colorTaskStatus(s task.Status) string {
	return paint(string(s), taskStatusColor(s), stdoutColor())
}

func colorWorkflowStatus(s workflow.Status) string {
	return paint(string(s), workflowStatusColor(s), stdoutColor())
}
