package flags

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringSlice(t *testing.T) {
	t.Parallel()

	var headers StringSlice
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Var(&headers, "header", "header")

	require.NoError(t, fs.Parse([]string{"--header", "Accept: a, b", "--header", "X-Id: 1"}))
	assert.Equal(t, StringSlice{"Accept: a, b", "X-Id: 1"}, headers)
	assert.Equal(t, "Accept: a, b,X-Id: 1", headers.String())
	assert.Equal(t, "stringSlice", headers.Type())
}
