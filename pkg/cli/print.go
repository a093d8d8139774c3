package cli

import (
	"io"

	"github.com/getmockd/mockserver/pkg/cli/internal/output"
)

// printResult outputs a single operation result.
//
// When --json is active only the JSON encoding of data is written to w.
// textFn is called only in text mode.
func printResult(w io.Writer, g *globalFlags, data any, textFn func(io.Writer)) error {
	if g.jsonOutput {
		return output.JSON(w, data)
	}
	textFn(w)
	return nil
}
