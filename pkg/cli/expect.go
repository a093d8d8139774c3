package cli

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/getmockd/mockserver/pkg/cli/internal/flags"
	"github.com/getmockd/mockserver/pkg/cli/internal/parse"
	"github.com/getmockd/mockserver/pkg/config"
	"github.com/getmockd/mockserver/pkg/mock"
)

// responseFlags describe an inline canned response.
type responseFlags struct {
	status  int
	body    string
	headers flags.StringSlice
	delay   time.Duration
	times   int
	ttl     time.Duration
}

func (r *responseFlags) expectation(pattern *mock.HTTPRequest) (*mock.Expectation, error) {
	times := mock.TimesUnlimited()
	if r.times > 0 {
		times = mock.TimesExactly(r.times)
	}
	ttl := mock.TTLUnlimited()
	if r.ttl > 0 {
		ttl = mock.TTLExactly(mock.Milliseconds, r.ttl.Milliseconds())
	}

	resp := mock.NewResponse().WithStatusCode(r.status)
	headers, err := parse.Headers(r.headers)
	if err != nil {
		return nil, err
	}
	resp.Headers = headers
	if r.body != "" {
		resp.WithBody(mock.StringBody(r.body))
	}
	if r.delay > 0 {
		resp.WithDelay(mock.NewDelay(mock.Milliseconds, r.delay.Milliseconds()))
	}
	return mock.NewExpectation(pattern, times, ttl).ThenRespond(resp), nil
}

func newExpectCmd(g *globalFlags) *cobra.Command {
	var (
		p patternFlags
		r responseFlags
	)
	cmd := &cobra.Command{
		Use:   "expect [FILE...]",
		Short: "Register expectations on a running server",
		Long: `Register expectations on a running server, either from JSON or YAML files
holding one expectation or a list of them, or from flags describing a
single canned response.`,
		Example: `  # From files
  mockserver expect expectations.json more.yaml

  # Inline
  mockserver expect --method GET --path /hello --status 200 --response-body world --times 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var exps []*mock.Expectation
			for _, path := range args {
				loaded, err := config.LoadExpectationFile(path)
				if err != nil {
					return err
				}
				exps = append(exps, loaded...)
			}

			if len(args) == 0 {
				pattern, err := p.build()
				if err != nil {
					return err
				}
				if pattern == nil && !cmd.Flags().Changed("status") && r.body == "" {
					return ErrNothingToExpect
				}
				exp, err := r.expectation(pattern)
				if err != nil {
					return err
				}
				exps = append(exps, exp)
			}

			if err := g.client().Expect(cmd.Context(), exps...); err != nil {
				return err
			}
			if !g.jsonOutput {
				fmt.Fprintf(cmd.OutOrStdout(), "Registered %d expectation(s)\n", len(exps))
			}
			return nil
		},
	}
	p.register(cmd.Flags())
	fl := cmd.Flags()
	fl.IntVar(&r.status, "status", http.StatusOK, "Response status code")
	fl.StringVar(&r.body, "response-body", "", "Response body")
	fl.Var(&r.headers, "response-header", "Response header (name:value), repeatable")
	fl.DurationVar(&r.delay, "delay", 0, "Delay before responding")
	fl.IntVar(&r.times, "times", 0, "Number of matches served (0 = unlimited)")
	fl.DurationVar(&r.ttl, "ttl", 0, "Time the expectation stays active (0 = forever)")
	return cmd
}
