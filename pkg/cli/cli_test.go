package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/mockserver/pkg/config"
	"github.com/getmockd/mockserver/pkg/engine"
)

func startServer(t *testing.T) (*engine.Server, string) {
	t.Helper()
	cfg := config.DefaultServerConfiguration()
	cfg.Ports = []int{0}
	s := engine.NewServer(cfg)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s, fmt.Sprintf("http://127.0.0.1:%d", s.Ports()[0])
}

// execute runs the command tree against server and returns stdout.
func execute(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--server", server}, args...))
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestCLI_ExpectInlineAndVerify(t *testing.T) {
	t.Parallel()

	s, url := startServer(t)

	out, err := execute(t, url, "expect", "--method", "GET", "--path", "/hello",
		"--status", "201", "--response-body", "world", "--response-header", "X-Kind: greeting", "--times", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Registered 1 expectation(s)")

	exps, err := s.Registry().Retrieve(nil)
	require.NoError(t, err)
	require.Len(t, exps, 1)
	assert.Equal(t, 2, exps[0].RemainingTimes().RemainingTimes)

	resp := httpGet(t, url+"/hello")
	assert.Equal(t, 201, resp.status)
	assert.Equal(t, "world", resp.body)
	assert.Equal(t, "greeting", resp.header.Get("X-Kind"))

	out, err = execute(t, url, "verify", "--path", "/hello", "--exactly", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Verified")

	_, err = execute(t, url, "verify", "--path", "/hello", "--at-least", "2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Request not found at least 2 times")
}

func TestCLI_ExpectWithoutInput(t *testing.T) {
	t.Parallel()

	_, url := startServer(t)
	_, err := execute(t, url, "expect")
	assert.ErrorIs(t, err, ErrNothingToExpect)
}

func TestCLI_ExpectFromFiles(t *testing.T) {
	t.Parallel()

	s, url := startServer(t)
	jsonFile := writeFile(t, "a.json", `[{"httpRequest":{"path":"/a"},"httpResponse":{"statusCode":202}}]`)
	yamlFile := writeFile(t, "b.yaml", "httpRequest:\n  path: /b\nhttpResponse:\n  statusCode: 203\n")

	out, err := execute(t, url, "expect", jsonFile, yamlFile)
	require.NoError(t, err)
	assert.Contains(t, out, "Registered 2 expectation(s)")
	assert.Equal(t, 2, s.Registry().Count())

	assert.Equal(t, 203, httpGet(t, url+"/b").status)

	_, err = execute(t, url, "expect", filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, config.ErrFileNotFound)
}

func TestCLI_RetrieveJSON(t *testing.T) {
	t.Parallel()

	_, url := startServer(t)
	_, err := execute(t, url, "expect", "--path", "/x", "--status", "200")
	require.NoError(t, err)
	httpGet(t, url+"/x")
	httpGet(t, url+"/y")

	out, err := execute(t, url, "retrieve", "--json")
	require.NoError(t, err)
	var requests []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &requests))
	require.Len(t, requests, 2)
	assert.Equal(t, "/x", requests[0]["path"])

	out, err = execute(t, url, "retrieve", "--path", "/y")
	require.NoError(t, err)
	assert.Contains(t, out, "METHOD")
	assert.Contains(t, out, "/y")
	assert.NotContains(t, out, "/x")

	out, err = execute(t, url, "retrieve", "--type", "expectations")
	require.NoError(t, err)
	assert.Contains(t, out, "RESPOND")
	assert.Contains(t, out, "unlimited")

	out, err = execute(t, url, "retrieve", "--path", "/none", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, out)

	_, err = execute(t, url, "retrieve", "--type", "bogus")
	assert.Error(t, err)
}

func TestCLI_ClearAndReset(t *testing.T) {
	t.Parallel()

	s, url := startServer(t)
	_, err := execute(t, url, "expect", "--path", "/a")
	require.NoError(t, err)
	_, err = execute(t, url, "expect", "--path", "/b")
	require.NoError(t, err)
	httpGet(t, url+"/a")
	httpGet(t, url+"/b")

	_, err = execute(t, url, "clear", "--path", "/a", "--log-only")
	require.NoError(t, err)
	assert.Equal(t, 2, s.Registry().Count())
	assert.Equal(t, 1, s.RequestLog().Count())

	_, err = execute(t, url, "clear", "--path", "/b")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Registry().Count())
	assert.Equal(t, 0, s.RequestLog().Count())

	_, err = execute(t, url, "dump")
	require.NoError(t, err)

	out, err := execute(t, url, "reset")
	require.NoError(t, err)
	assert.Contains(t, out, "Reset")
	assert.Equal(t, 0, s.Registry().Count())
}

func TestCLI_VerifySequence(t *testing.T) {
	t.Parallel()

	_, url := startServer(t)
	httpGet(t, url+"/one")
	httpGet(t, url+"/two")

	inOrder := writeFile(t, "seq.json", `{"httpRequests":[{"path":"/one"},{"path":"/two"}]}`)
	_, err := execute(t, url, "verify-sequence", inOrder)
	require.NoError(t, err)

	reversed := writeFile(t, "seq.json", `{"httpRequests":[{"path":"/two"},{"path":"/one"}]}`)
	_, err = execute(t, url, "verify-sequence", reversed)
	assert.Error(t, err)

	verification := writeFile(t, "v.json", `{"httpRequest":{"path":"/one"},"times":{"atLeast":1,"atMost":1}}`)
	_, err = execute(t, url, "verify", verification)
	require.NoError(t, err)
}

func TestCLI_StatusBindStop(t *testing.T) {
	t.Parallel()

	s, url := startServer(t)

	out, err := execute(t, url, "status", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, fmt.Sprintf(`{"ports":[%d]}`, s.Ports()[0]), out)

	out, err = execute(t, url, "bind", "0")
	require.NoError(t, err)
	require.Len(t, s.Ports(), 2)
	assert.Contains(t, out, fmt.Sprintf("Bound port %d", s.Ports()[1]))

	_, err = execute(t, url, "bind", "http")
	assert.Error(t, err)

	_, err = execute(t, url, "stop")
	require.NoError(t, err)
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestCLI_ServerNotRunning(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "http://127.0.0.1:1", "status", "--timeout", "1s")
	assert.ErrorIs(t, err, ErrServerNotRunning)
}

func TestCLI_Version(t *testing.T) {
	t.Parallel()

	out, err := execute(t, DefaultServerURL, "version", "--json")
	require.NoError(t, err)
	var v VersionOutput
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.NotEmpty(t, v.Go)
	assert.NotEmpty(t, v.OS)

	out, err = execute(t, DefaultServerURL, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "mockserver ")
}

func TestRun_ExitCode(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	assert.Equal(t, 1, run(root, []string{"no-such-command"}, &stderr))
	assert.Contains(t, stderr.String(), "Error:")

	root = NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	assert.Equal(t, 0, run(root, []string{"version"}, &stderr))
}
