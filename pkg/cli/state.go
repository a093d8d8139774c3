package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newResetCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Remove every expectation and recorded request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := g.client().Reset(cmd.Context()); err != nil {
				return err
			}
			if !g.jsonOutput {
				fmt.Fprintln(cmd.OutOrStdout(), "Reset expectations and request log")
			}
			return nil
		},
	}
}

func newClearCmd(g *globalFlags) *cobra.Command {
	var (
		p       patternFlags
		logOnly bool
	)
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the expectations and recorded requests matching a pattern",
		Long: `Remove the expectations and recorded requests matching a pattern. Without
pattern flags everything is removed.`,
		Example: `  mockserver clear --path /users
  mockserver clear --method POST --log-only`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pattern, err := p.build()
			if err != nil {
				return err
			}
			c := g.client()
			if logOnly {
				err = c.ClearRequestLog(cmd.Context(), pattern)
			} else {
				err = c.Clear(cmd.Context(), pattern)
			}
			if err != nil {
				return err
			}
			if !g.jsonOutput {
				fmt.Fprintln(cmd.OutOrStdout(), "Cleared")
			}
			return nil
		},
	}
	p.register(cmd.Flags())
	cmd.Flags().BoolVar(&logOnly, "log-only", false, "Only clear recorded requests, keep expectations")
	return cmd
}

func newDumpCmd(g *globalFlags) *cobra.Command {
	var p patternFlags
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Write the active expectations matching a pattern to the server log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pattern, err := p.build()
			if err != nil {
				return err
			}
			return g.client().DumpToLog(cmd.Context(), pattern)
		},
	}
	p.register(cmd.Flags())
	return cmd
}
