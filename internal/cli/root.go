// Package cli implements the advise command line tool.
package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "none"
)

// NewRootCmd builds the command tree. Each call returns fresh flag state.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "advise",
		Version: Version + " (" + Commit + ")",
		Short:   "Offline composition advice and load testing",
		Long: `advise runs the composition rules against saved telemetry without a
vision analyzer, renders overlay primitives, and load tests a running
service.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("output", "o", "json", "output format: json or yaml")

	root.AddCommand(newEvaluateCmd(), newOverlayCmd(), newLoadCmd())
	return root
}

// Execute runs the root command with os.Args.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}
