package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/getmockd/mockserver/pkg/serialization"
)

func newStatusCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the ports a running server listens on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ports, err := g.client().Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("%w: %w", ErrServerNotRunning, err)
			}
			return printResult(cmd.OutOrStdout(), g, serialization.Ports{Ports: ports}, func(w io.Writer) {
				fmt.Fprintf(w, "Server %s is running\n", g.server)
				for _, p := range ports {
					fmt.Fprintf(w, "  listening on port %d\n", p)
				}
			})
		},
	}
}

func newBindCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "bind PORT...",
		Short: "Open additional ports on a running server",
		Long: `Open additional ports on a running server. Port 0 picks a free port.
Either every port is bound or none is.`,
		Example: `  mockserver bind 1081 1082
  mockserver bind 0 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ports := make([]int, 0, len(args))
			for _, a := range args {
				p, err := strconv.Atoi(a)
				if err != nil || p < 0 || p > 65535 {
					return fmt.Errorf("invalid port %q", a)
				}
				ports = append(ports, p)
			}

			bound, err := g.client().Bind(cmd.Context(), ports...)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), g, serialization.Ports{Ports: bound}, func(w io.Writer) {
				for _, p := range bound {
					fmt.Fprintf(w, "Bound port %d\n", p)
				}
			})
		},
	}
}
