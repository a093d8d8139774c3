package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/mockserver/pkg/mock"
	"github.com/getmockd/mockserver/pkg/proxy"
)

func newExpectation() *mock.Expectation {
	return mock.NewExpectation(nil, mock.TimesUnlimited(), mock.TTLUnlimited())
}

func hostPort(t *testing.T, rawURL string) (string, int) {
	t.Helper()
	host, port, err := net.SplitHostPort(rawURL[len("http://"):])
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return host, p
}

func TestExecute_RespondReturnsCopy(t *testing.T) {
	t.Parallel()

	stored := mock.NewResponse().WithStatusCode(418).WithHeader("X-A", "1").WithBody(mock.StringBody("teapot"))
	exp := newExpectation().ThenRespond(stored)

	out, err := NewActionHandler(nil, 0, nil).Execute(context.Background(), exp, get("/"))
	require.NoError(t, err)
	require.NotNil(t, out.Response)
	assert.Nil(t, out.Fault)
	assert.Equal(t, 418, out.Response.StatusCode)
	assert.Equal(t, "teapot", out.Response.Body.String())

	out.Response.Headers.Set("X-A", "changed")
	assert.Equal(t, "1", stored.Headers.Get("X-A"))
}

func TestExecute_RespondDelay(t *testing.T) {
	t.Parallel()

	exp := newExpectation().ThenRespond(mock.NewResponse().WithDelay(mock.NewDelay(mock.Milliseconds, 30)))

	start := time.Now()
	_, err := NewActionHandler(nil, 0, nil).Execute(context.Background(), exp, get("/"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestExecute_Forward(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Path", r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write(body)
	}))
	defer upstream.Close()

	host, port := hostPort(t, upstream.URL)
	exp := newExpectation().ThenForward(mock.NewForward(host, port))
	req := mock.NewRequest().WithMethod("POST").WithPath("/relay").WithBody(mock.StringBody("hi"))

	out, err := NewActionHandler(nil, 0, nil).Execute(context.Background(), exp, req)
	require.NoError(t, err)
	require.NotNil(t, out.Response)
	assert.Equal(t, http.StatusAccepted, out.Response.StatusCode)
	assert.Equal(t, "/relay", out.Response.Headers.Get("X-Path"))
	assert.Equal(t, "hi", out.Response.Body.String())
}

func TestExecute_ForwardTimeoutDropsConnection(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer upstream.Close()
	defer close(release)

	host, port := hostPort(t, upstream.URL)
	exp := newExpectation().ThenForward(mock.NewForward(host, port))
	actions := NewActionHandler(proxy.New(proxy.Options{Timeout: 50 * time.Millisecond}), 0, nil)

	out, err := actions.Execute(context.Background(), exp, get("/slow"))
	assert.ErrorIs(t, err, ErrForwardFailed)
	require.NotNil(t, out.Fault)
	assert.True(t, out.Fault.DropConnection)
	assert.Nil(t, out.Response)
}

func TestExecute_Error(t *testing.T) {
	t.Parallel()

	exp := newExpectation().ThenError(mock.NewError().WithResponseBytes([]byte("garbage")))
	out, err := NewActionHandler(nil, 0, nil).Execute(context.Background(), exp, get("/"))
	require.NoError(t, err)
	require.NotNil(t, out.Fault)
	assert.Equal(t, []byte("garbage"), out.Fault.ResponseBytes)
}

func TestExecute_WebhookCallback(t *testing.T) {
	t.Parallel()

	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req mock.HTTPRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"statusCode": 201,
			"body":       "callback saw " + req.Path,
		})
	}))
	defer webhook.Close()

	exp := newExpectation().ThenCallback(&mock.HTTPCallback{URL: webhook.URL})
	out, err := NewActionHandler(nil, 0, nil).Execute(context.Background(), exp, get("/cb"))
	require.NoError(t, err)
	require.NotNil(t, out.Response)
	assert.Equal(t, 201, out.Response.StatusCode)
	assert.Equal(t, "callback saw /cb", out.Response.Body.String())
}

func TestExecute_WebhookCallbackFailure(t *testing.T) {
	t.Parallel()

	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer webhook.Close()

	exp := newExpectation().ThenCallback(&mock.HTTPCallback{URL: webhook.URL})
	out, err := NewActionHandler(nil, 0, nil).Execute(context.Background(), exp, get("/cb"))
	assert.ErrorIs(t, err, ErrCallbackFailed)
	require.NotNil(t, out.Fault)
	assert.True(t, out.Fault.DropConnection)
}

func TestExecute_InProcessCallback(t *testing.T) {
	t.Parallel()

	actions := NewActionHandler(nil, 0, nil)
	actions.RegisterCallback("echo", func(_ context.Context, req *mock.HTTPRequest) (*mock.HTTPResponse, error) {
		return mock.NewResponse().WithBody(mock.StringBody(req.Method + " " + req.Path)), nil
	})
	actions.RegisterCallback("fails", func(context.Context, *mock.HTTPRequest) (*mock.HTTPResponse, error) {
		return nil, errors.New("boom")
	})
	actions.RegisterCallback("panics", func(context.Context, *mock.HTTPRequest) (*mock.HTTPResponse, error) {
		panic("bad callback")
	})

	out, err := actions.Execute(context.Background(), newExpectation().ThenCallback(&mock.HTTPCallback{Name: "echo"}), get("/x"))
	require.NoError(t, err)
	assert.Equal(t, "GET /x", out.Response.Body.String())

	for _, name := range []string{"fails", "panics", "missing"} {
		out, err := actions.Execute(context.Background(), newExpectation().ThenCallback(&mock.HTTPCallback{Name: name}), get("/x"))
		assert.ErrorIs(t, err, ErrCallbackFailed, name)
		require.NotNil(t, out.Fault, name)
	}
}

func TestExecute_InProcessCallbackTimeout(t *testing.T) {
	t.Parallel()

	actions := NewActionHandler(nil, 30*time.Millisecond, nil)
	actions.RegisterCallback("slow", func(ctx context.Context, _ *mock.HTTPRequest) (*mock.HTTPResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, err := actions.Execute(context.Background(), newExpectation().ThenCallback(&mock.HTTPCallback{Name: "slow"}), get("/"))
	assert.ErrorIs(t, err, ErrCallbackFailed)
}

func TestExecute_NoAction(t *testing.T) {
	t.Parallel()

	out, err := NewActionHandler(nil, 0, nil).Execute(context.Background(), newExpectation(), get("/"))
	assert.ErrorIs(t, err, ErrNoAction)
	require.NotNil(t, out.Response)
	assert.Equal(t, http.StatusInternalServerError, out.Response.StatusCode)
	require.NotNil(t, out.Response.Body)
	assert.Empty(t, out.Response.Body.String())
}
