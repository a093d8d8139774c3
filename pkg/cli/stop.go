package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStopCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a running server",
		Long:  "Stop a running server. Every listener drains in-flight requests before closing.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := g.client().Stop(cmd.Context()); err != nil {
				return fmt.Errorf("%w: %w", ErrServerNotRunning, err)
			}
			if !g.jsonOutput {
				fmt.Fprintf(cmd.OutOrStdout(), "Stopping server %s\n", g.server)
			}
			return nil
		},
	}
}
