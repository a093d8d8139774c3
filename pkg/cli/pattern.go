package cli

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/getmockd/mockserver/pkg/cli/internal/flags"
	"github.com/getmockd/mockserver/pkg/cli/internal/parse"
	"github.com/getmockd/mockserver/pkg/mock"
	"github.com/getmockd/mockserver/pkg/serialization"
)

// patternFlags select requests by their fields, or load a JSON request
// pattern from a file.
type patternFlags struct {
	method  string
	path    string
	body    string
	file    string
	headers flags.StringSlice
	query   flags.StringSlice
}

func (p *patternFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&p.method, "method", "X", "", "Match requests with this method")
	fs.StringVar(&p.path, "path", "", "Match requests with this path (regular expressions allowed)")
	fs.StringVar(&p.body, "body", "", "Match requests with this exact body")
	fs.VarP(&p.headers, "header", "H", "Match requests carrying this header (name:value), repeatable")
	fs.Var(&p.query, "query", "Match requests carrying this query parameter (name=value), repeatable")
	fs.StringVar(&p.file, "pattern-file", "", "Read the request pattern from a JSON file")
}

func (p *patternFlags) empty() bool {
	return p.method == "" && p.path == "" && p.body == "" && len(p.headers) == 0 && len(p.query) == 0
}

// build returns the pattern, or nil when no field was given, which selects
// every request.
func (p *patternFlags) build() (*mock.HTTPRequest, error) {
	if p.file != "" {
		if !p.empty() {
			return nil, fmt.Errorf("--pattern-file cannot be combined with other pattern flags")
		}
		data, err := os.ReadFile(p.file)
		if err != nil {
			return nil, fmt.Errorf("failed to read pattern: %w", err)
		}
		return serialization.DeserializeRequest(data)
	}
	if p.empty() {
		return nil, nil
	}

	req := mock.NewRequest().WithMethod(p.method).WithPath(p.path)
	headers, err := parse.Headers(p.headers)
	if err != nil {
		return nil, err
	}
	req.Headers = headers
	query, err := parse.Query(p.query)
	if err != nil {
		return nil, err
	}
	req.QueryStringParameters = query
	if p.body != "" {
		req.WithBody(mock.StringBody(p.body))
	}
	return req, nil
}
