package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/getmockd/mockserver/pkg/mock"
	"github.com/getmockd/mockserver/pkg/serialization"
)

func newVerifyCmd(g *globalFlags) *cobra.Command {
	var (
		p       patternFlags
		atLeast int
		atMost  int
		exactly int
	)
	cmd := &cobra.Command{
		Use:   "verify [FILE]",
		Short: "Check how many recorded requests match a pattern",
		Long: `Check how many recorded requests match a pattern. The verification is read
from a JSON file, or built from the pattern and count flags. The command
fails when the verification does not hold.`,
		Example: `  mockserver verify --path /users --exactly 2
  mockserver verify --method POST --path /orders --at-least 1 --at-most 3
  mockserver verify verification.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var v *mock.Verification
			if len(args) == 1 {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("failed to read verification: %w", err)
				}
				if v, err = serialization.DeserializeVerification(data); err != nil {
					return err
				}
			} else {
				pattern, err := p.build()
				if err != nil {
					return err
				}
				times := mock.VerificationTimes{AtLeast: atLeast, AtMost: atMost}
				if cmd.Flags().Changed("exactly") {
					times = mock.VerifyExactly(exactly)
				}
				v = mock.NewVerification(pattern, times)
			}

			if err := g.client().Verify(cmd.Context(), v); err != nil {
				return err
			}
			if !g.jsonOutput {
				fmt.Fprintln(cmd.OutOrStdout(), "Verified")
			}
			return nil
		},
	}
	p.register(cmd.Flags())
	fl := cmd.Flags()
	fl.IntVar(&atLeast, "at-least", 1, "Minimum number of matching requests")
	fl.IntVar(&atMost, "at-most", -1, "Maximum number of matching requests (-1 = no limit)")
	fl.IntVar(&exactly, "exactly", 0, "Exact number of matching requests")
	return cmd
}

func newVerifySequenceCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify-sequence FILE",
		Short: "Check that requests were received in order",
		Long: `Check that recorded requests match the patterns of a JSON file holding
{"httpRequests": [...]} in that relative order.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read verification sequence: %w", err)
			}
			seq, err := serialization.DeserializeVerificationSequence(data)
			if err != nil {
				return err
			}
			if err := g.client().VerifySequence(cmd.Context(), seq); err != nil {
				return err
			}
			if !g.jsonOutput {
				fmt.Fprintln(cmd.OutOrStdout(), "Verified")
			}
			return nil
		},
	}
}
