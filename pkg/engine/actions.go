package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/getmockd/mockserver/pkg/httputil"
	"github.com/getmockd/mockserver/pkg/logging"
	"github.com/getmockd/mockserver/pkg/mock"
	"github.com/getmockd/mockserver/pkg/proxy"
	"github.com/getmockd/mockserver/pkg/serialization"
)

// Outcome is the result of handling one request: either a response to
// write or a transport fault to inflict on the connection.
type Outcome struct {
	Response *mock.HTTPResponse
	Fault    *mock.HTTPError
}

// respond wraps a response in an Outcome.
func respond(resp *mock.HTTPResponse) *Outcome {
	return &Outcome{Response: resp}
}

// dropConnection is the fault used when an action cannot produce a response.
func dropConnection() *Outcome {
	return &Outcome{Fault: mock.NewError()}
}

// CallbackFunc generates a response for a request in-process.
type CallbackFunc func(ctx context.Context, req *mock.HTTPRequest) (*mock.HTTPResponse, error)

// ActionHandler turns a matched expectation into an Outcome.
type ActionHandler struct {
	forwarder       *proxy.Forwarder
	callbackTimeout time.Duration
	log             *slog.Logger

	mu        sync.RWMutex
	callbacks map[string]CallbackFunc
}

// NewActionHandler creates an ActionHandler using forwarder for forward and
// webhook callback actions.
func NewActionHandler(forwarder *proxy.Forwarder, callbackTimeout time.Duration, log *slog.Logger) *ActionHandler {
	if forwarder == nil {
		forwarder = proxy.New(proxy.Options{})
	}
	if callbackTimeout <= 0 {
		callbackTimeout = proxy.DefaultTimeout
	}
	if log == nil {
		log = logging.Nop()
	}
	return &ActionHandler{
		forwarder:       forwarder,
		callbackTimeout: callbackTimeout,
		log:             log,
		callbacks:       make(map[string]CallbackFunc),
	}
}

// RegisterCallback makes fn available to callback actions under name.
func (a *ActionHandler) RegisterCallback(name string, fn CallbackFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if fn == nil {
		delete(a.callbacks, name)
		return
	}
	a.callbacks[name] = fn
}

func (a *ActionHandler) callback(name string) (CallbackFunc, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	fn, ok := a.callbacks[name]
	return fn, ok
}

// Execute performs the action of exp for req. When the action fails the
// returned Outcome is still usable: a drop-connection fault for forward
// and callback failures, a 500 with an empty body for a missing action.
func (a *ActionHandler) Execute(ctx context.Context, exp *mock.Expectation, req *mock.HTTPRequest) (*Outcome, error) {
	switch act := exp.Action().(type) {
	case *mock.HTTPResponse:
		if err := sleep(ctx, act.Delay.Duration()); err != nil {
			return dropConnection(), err
		}
		return respond(act.Clone()), nil

	case *mock.HTTPForward:
		resp, err := a.forwarder.Forward(ctx, req, act.URL())
		if err != nil {
			a.log.Warn("forward failed", "target", act.String(), "error", err)
			return dropConnection(), fmt.Errorf("%w: %w", ErrForwardFailed, err)
		}
		return respond(resp), nil

	case *mock.HTTPError:
		if err := sleep(ctx, act.Delay.Duration()); err != nil {
			return dropConnection(), err
		}
		fault := *act
		return &Outcome{Fault: &fault}, nil

	case *mock.HTTPCallback:
		resp, err := a.runCallback(ctx, act, req)
		if err != nil {
			a.log.Warn("callback failed", "url", act.URL, "name", act.Name, "error", err)
			return dropConnection(), fmt.Errorf("%w: %w", ErrCallbackFailed, err)
		}
		return respond(resp), nil

	default:
		return respond(httputil.Empty(http.StatusInternalServerError)), fmt.Errorf("%w: %s", ErrNoAction, exp.ID)
	}
}

func (a *ActionHandler) runCallback(ctx context.Context, cb *mock.HTTPCallback, req *mock.HTTPRequest) (*mock.HTTPResponse, error) {
	if err := cb.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, a.callbackTimeout)
	defer cancel()

	if cb.URL != "" {
		return a.callWebhook(ctx, cb.URL, req)
	}

	fn, ok := a.callback(cb.Name)
	if !ok {
		return nil, fmt.Errorf("no callback registered as %q", cb.Name)
	}

	type result struct {
		resp *mock.HTTPResponse
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("callback %q panicked: %v", cb.Name, p)}
			}
		}()
		resp, err := fn(ctx, req.Clone())
		done <- result{resp: resp, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		if r.resp == nil {
			return nil, fmt.Errorf("callback %q returned no response", cb.Name)
		}
		return r.resp, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("callback %q: %w", cb.Name, ctx.Err())
	}
}

// callWebhook posts the request as JSON and reads a JSON response back.
func (a *ActionHandler) callWebhook(ctx context.Context, url string, req *mock.HTTPRequest) (*mock.HTTPResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("serializing request: %w", err)
	}
	out, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	out.Header.Set("Content-Type", httputil.ContentTypeJSON)

	resp, body, err := a.forwarder.Do(ctx, out)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("webhook %s returned status %d", url, resp.StatusCode)
	}
	return serialization.DeserializeResponse(body)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
