package engine

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/mockserver/pkg/config"
	"github.com/getmockd/mockserver/pkg/mock"
)

func testConfig(ports ...int) *config.ServerConfiguration {
	cfg := config.DefaultServerConfiguration()
	cfg.Ports = ports
	cfg.ShutdownTimeout = config.Duration(2 * time.Second)
	return cfg
}

func startServer(t *testing.T, cfg *config.ServerConfiguration, opts ...ServerOption) *Server {
	t.Helper()
	s := NewServer(cfg, opts...)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s
}

func baseURL(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

func send(t *testing.T, method string, port int, path, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, baseURL(port)+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestServer_SharedStateAcrossPorts(t *testing.T) {
	t.Parallel()

	s := startServer(t, testConfig(0, 0))
	ports := s.Ports()
	require.Len(t, ports, 2)
	assert.NotEqual(t, ports[0], ports[1])

	status, _ := send(t, http.MethodPut, ports[0], "/expectation",
		`{"httpRequest":{"method":"GET","path":"/greeting"},"httpResponse":{"statusCode":200,"body":"hello"}}`)
	require.Equal(t, http.StatusCreated, status)

	status, body := send(t, http.MethodGet, ports[1], "/greeting", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "hello", body)

	status, body = send(t, http.MethodGet, ports[0], "/missing", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Empty(t, body)

	status, _ = send(t, http.MethodPut, ports[1], "/verify",
		`{"httpRequest":{"path":"/greeting"},"times":{"atLeast":1,"atMost":1}}`)
	assert.Equal(t, http.StatusAccepted, status)

	status, body = send(t, http.MethodPut, ports[0], "/status", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, fmt.Sprintf(`{"ports":[%d,%d]}`, ports[0], ports[1]), body)
}

func TestServer_BindOverControlPlane(t *testing.T) {
	t.Parallel()

	s := startServer(t, testConfig(0))
	port := s.Ports()[0]

	status, body := send(t, http.MethodPut, port, "/bind", `{"ports":[0]}`)
	require.Equal(t, http.StatusAccepted, status)
	require.Len(t, s.Ports(), 2)
	assert.JSONEq(t, fmt.Sprintf(`{"ports":[%d]}`, s.Ports()[1]), body)

	status, _ = send(t, http.MethodPut, s.Ports()[1], "/status", "")
	assert.Equal(t, http.StatusOK, status)
}

func TestServer_BindIsAllOrNothing(t *testing.T) {
	t.Parallel()

	taken, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer taken.Close()
	busy := taken.Addr().(*net.TCPAddr).Port

	s := startServer(t, testConfig(0))
	_, err = s.Bind(context.Background(), []int{0, busy})
	assert.ErrorIs(t, err, ErrPortInUse)
	assert.Len(t, s.Ports(), 1)

	status, body := send(t, http.MethodPut, s.Ports()[0], "/bind", fmt.Sprintf(`{"ports":[%d]}`, busy))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "port unavailable")
}

func TestServer_StartFailsOnBusyPort(t *testing.T) {
	t.Parallel()

	taken, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer taken.Close()

	s := NewServer(testConfig(taken.Addr().(*net.TCPAddr).Port))
	assert.ErrorIs(t, s.Start(context.Background()), ErrPortInUse)
	assert.Empty(t, s.Ports())
}

func TestServer_Stop(t *testing.T) {
	t.Parallel()

	s := NewServer(testConfig(0))
	require.NoError(t, s.Start(context.Background()))
	port := s.Ports()[0]

	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))

	select {
	case <-s.Done():
	default:
		t.Fatal("done channel not closed")
	}
	assert.Empty(t, s.Ports())

	var buf strings.Builder
	_, werr := s.Metrics().WriteTo(&buf)
	require.NoError(t, werr)
	assert.Contains(t, buf.String(), `mockserver_listeners{tls="false"} 0`)

	_, err := http.Get(baseURL(port) + "/anything")
	assert.Error(t, err)

	_, err = s.Bind(context.Background(), []int{0})
	assert.ErrorIs(t, err, ErrServerStopped)
}

func TestServer_StopCommand(t *testing.T) {
	t.Parallel()

	s := NewServer(testConfig(0))
	require.NoError(t, s.Start(context.Background()))

	status, _ := send(t, http.MethodPut, s.Ports()[0], "/stop", "")
	assert.Equal(t, http.StatusAccepted, status)

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServer_ErrorActionDropsConnection(t *testing.T) {
	t.Parallel()

	s := startServer(t, testConfig(0))
	port := s.Ports()[0]

	require.NoError(t, s.AddExpectations([]*mock.Expectation{
		mock.NewExpectation(mock.NewRequest().WithPath("/drop"), mock.TimesUnlimited(), mock.TTLUnlimited()).
			ThenError(mock.NewError()),
		mock.NewExpectation(mock.NewRequest().WithPath("/garbage"), mock.TimesUnlimited(), mock.TTLUnlimited()).
			ThenError(mock.NewError().WithResponseBytes([]byte("not http"))),
	}))

	_, err := http.Get(baseURL(port) + "/drop")
	assert.Error(t, err)

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer conn.Close()
	_, err = io.WriteString(conn, "GET /garbage HTTP/1.1\r\nHost: localhost\r\n\r\n")
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	raw, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, "not http", string(raw))
}

func TestServer_InProcessCallback(t *testing.T) {
	t.Parallel()

	s := startServer(t, testConfig(0), WithCallback("upper", func(_ context.Context, req *mock.HTTPRequest) (*mock.HTTPResponse, error) {
		return mock.NewResponse().WithStatusCode(http.StatusTeapot).WithBody(mock.StringBody(strings.ToUpper(req.Body.String()))), nil
	}))
	port := s.Ports()[0]

	status, _ := send(t, http.MethodPut, port, "/expectation",
		`{"httpRequest":{"path":"/shout"},"httpCallback":{"callbackName":"upper"}}`)
	require.Equal(t, http.StatusCreated, status)

	status, body := send(t, http.MethodPost, port, "/shout", "quiet")
	assert.Equal(t, http.StatusTeapot, status)
	assert.Equal(t, "QUIET", body)
}

func TestServer_InitializationFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "expectations.json"), []byte(`[
		{"httpRequest": {"path": "/from-json"}, "httpResponse": {"statusCode": 203}}
	]`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "more.yaml"), []byte(`
httpRequest:
  path: /from-yaml
httpResponse:
  statusCode: 206
`), 0o600))

	cfg := testConfig(0)
	cfg.InitializationFiles = []string{"*.json", "more.yaml"}
	s := startServer(t, cfg, WithBaseDir(dir))
	port := s.Ports()[0]

	status, _ := send(t, http.MethodGet, port, "/from-json", "")
	assert.Equal(t, 203, status)
	status, _ = send(t, http.MethodGet, port, "/from-yaml", "")
	assert.Equal(t, 206, status)
}

func TestServer_InitializationFileMissing(t *testing.T) {
	t.Parallel()

	cfg := testConfig(0)
	cfg.InitializationFiles = []string{"does-not-exist.json"}
	s := NewServer(cfg, WithBaseDir(t.TempDir()))
	assert.Error(t, s.Start(context.Background()))
	assert.Empty(t, s.Ports())
}

func TestServer_TLSAndPlaintextOnOnePort(t *testing.T) {
	t.Parallel()

	cfg := testConfig(0)
	cfg.TLS.Enabled = true
	s := startServer(t, cfg)
	port := s.Ports()[0]

	status, _ := send(t, http.MethodPut, port, "/expectation",
		`{"httpRequest":{"path":"/secure-only","secure":true},"httpResponse":{"body":"over tls"}}`)
	require.Equal(t, http.StatusCreated, status)

	status, _ = send(t, http.MethodGet, port, "/secure-only", "")
	assert.Equal(t, http.StatusNotFound, status, "plaintext request does not match secure:true")

	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // self-signed test certificate
	}}
	resp, err := client.Get(fmt.Sprintf("https://127.0.0.1:%d/secure-only", port))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "over tls", string(body))

	var buf strings.Builder
	_, err = s.Metrics().WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `mockserver_listeners{tls="true"} 1`)
}

func TestServer_TLSMissingCertificate(t *testing.T) {
	t.Parallel()

	cfg := testConfig(0)
	cfg.TLS = config.TLSConfig{Enabled: true, CertFile: "missing.pem", KeyFile: "missing-key.pem"}
	s := NewServer(cfg)
	assert.Error(t, s.Start(context.Background()))
	assert.Empty(t, s.Ports())
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	cfg := testConfig(0)
	cfg.Metrics = config.MetricsConfig{Enabled: true}
	s := startServer(t, cfg)
	port := s.Ports()[0]
	require.NotZero(t, s.MetricsPort())

	status, _ := send(t, http.MethodPut, port, "/expectation",
		`{"httpRequest":{"path":"/counted"},"httpResponse":{"statusCode":200}}`)
	require.Equal(t, http.StatusCreated, status)
	send(t, http.MethodGet, port, "/counted", "")
	send(t, http.MethodGet, port, "/missing", "")

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/metrics", s.MetricsPort()))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(data)

	assert.Contains(t, text, `mockserver_requests_total{outcome="expectation",plane="control"} 1`)
	assert.Contains(t, text, `mockserver_requests_total{outcome="matched",plane="data"} 1`)
	assert.Contains(t, text, `mockserver_requests_total{outcome="unmatched",plane="data"} 1`)
	assert.Contains(t, text, "mockserver_expectations_active 1")
	assert.Contains(t, text, "mockserver_requests_logged 2")
	assert.Contains(t, text, "mockserver_ports_bound 1")
	assert.Contains(t, text, `mockserver_listeners{tls="false"} 1`)
	assert.NotContains(t, text, `mockserver_listeners{tls="true"}`)
	assert.Contains(t, text, `mockserver_request_duration_seconds_count{plane="data"} 2`)
}

func TestServer_MetricsDisabledByDefault(t *testing.T) {
	t.Parallel()

	s := startServer(t, testConfig(0))
	assert.Zero(t, s.MetricsPort())
}
