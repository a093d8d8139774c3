package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/getmockd/mockserver/pkg/cli/internal/output"
	"github.com/getmockd/mockserver/pkg/mock"
)

func newRetrieveCmd(g *globalFlags) *cobra.Command {
	var (
		p    patternFlags
		kind string
	)
	cmd := &cobra.Command{
		Use:   "retrieve",
		Short: "List recorded requests or active expectations",
		Example: `  mockserver retrieve --path /users
  mockserver retrieve --type expectations --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pattern, err := p.build()
			if err != nil {
				return err
			}
			c := g.client()
			w := cmd.OutOrStdout()

			switch strings.ToLower(kind) {
			case "requests":
				requests, err := c.RetrieveRequests(cmd.Context(), pattern)
				if err != nil {
					return err
				}
				if requests == nil {
					requests = []*mock.HTTPRequest{}
				}
				return printResult(w, g, requests, func(w io.Writer) { printRequests(w, requests) })
			case "expectations":
				exps, err := c.RetrieveExpectations(cmd.Context(), pattern)
				if err != nil {
					return err
				}
				if exps == nil {
					exps = []*mock.Expectation{}
				}
				return printResult(w, g, exps, func(w io.Writer) { printExpectations(w, exps) })
			default:
				return fmt.Errorf("unknown type %q (valid: requests, expectations)", kind)
			}
		},
	}
	p.register(cmd.Flags())
	cmd.Flags().StringVarP(&kind, "type", "t", "requests", "What to retrieve (requests, expectations)")
	return cmd
}

func printRequests(w io.Writer, requests []*mock.HTTPRequest) {
	if len(requests) == 0 {
		fmt.Fprintln(w, "No requests recorded")
		return
	}
	tw := output.Table(w)
	fmt.Fprintln(tw, "METHOD\tPATH\tBODY")
	for _, r := range requests {
		fmt.Fprintf(tw, "%s\t%s\t%d bytes\n", r.Method, r.Path, len(r.Body.Bytes()))
	}
	_ = tw.Flush()
}

func printExpectations(w io.Writer, exps []*mock.Expectation) {
	if len(exps) == 0 {
		fmt.Fprintln(w, "No active expectations")
		return
	}
	tw := output.Table(w)
	fmt.Fprintln(tw, "ID\tMETHOD\tPATH\tACTION\tREMAINING")
	for _, e := range exps {
		action := "-"
		if a := e.Action(); a != nil {
			action = string(a.ActionType())
		}
		remaining := "unlimited"
		if times := e.RemainingTimes(); !times.Unlimited {
			remaining = fmt.Sprint(times.RemainingTimes)
		}
		method, path := "*", "*"
		if e.HTTPRequest.Method != "" {
			method = e.HTTPRequest.Method
		}
		if e.HTTPRequest.Path != "" {
			path = e.HTTPRequest.Path
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.ID, method, path, action, remaining)
	}
	_ = tw.Flush()
}
