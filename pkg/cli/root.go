package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/getmockd/mockserver/pkg/client"
)

// EnvServerURL overrides the default --server value.
const EnvServerURL = "MOCKSERVER_URL"

// DefaultServerURL is the control plane address used when none is given.
const DefaultServerURL = "http://localhost:1080"

var (
	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	server     string
	timeout    time.Duration
	jsonOutput bool
}

func (g *globalFlags) client() *client.Client {
	return client.New(g.server, client.WithTimeout(g.timeout))
}

// NewRootCmd builds the mockserver command tree.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "mockserver",
		Short: "mockserver is a programmable HTTP mock server",
		Long: `mockserver answers HTTP requests from registered expectations, records
every request it receives, and verifies the recorded traffic on demand.

Expectations, verifications and listener management are driven over the
control plane, which every bound port serves alongside the mocked traffic.
The commands below other than serve talk to a running server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultServer := DefaultServerURL
	if v := os.Getenv(EnvServerURL); v != "" {
		defaultServer = v
	}
	root.PersistentFlags().StringVarP(&g.server, "server", "s", defaultServer, "Control plane URL of the running server (env "+EnvServerURL+")")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", client.DefaultTimeout, "Timeout for control plane calls")
	root.PersistentFlags().BoolVar(&g.jsonOutput, "json", false, "Output command results in JSON format")

	root.AddCommand(
		newServeCmd(),
		newStatusCmd(g),
		newBindCmd(g),
		newStopCmd(g),
		newResetCmd(g),
		newClearCmd(g),
		newDumpCmd(g),
		newExpectCmd(g),
		newRetrieveCmd(g),
		newVerifyCmd(g),
		newVerifySequenceCmd(g),
		newVersionCmd(g),
	)
	return root
}

// Execute runs the command tree with os.Args and returns the process exit code.
func Execute() int {
	return run(NewRootCmd(), os.Args[1:], os.Stderr)
}

func run(root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}
