// mockserver CLI - Command-line interface for the mockserver HTTP mock server
package main

import (
	"os"

	"github.com/getmockd/mockserver/pkg/cli"
)

// Build-time variables set via ldflags
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cli.Version = Version
	cli.Commit = Commit
	cli.BuildDate = BuildDate
	os.Exit(cli.Execute())
}
