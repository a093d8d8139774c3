package engine

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/getmockd/mockserver/internal/matching"
	"github.com/getmockd/mockserver/pkg/codec"
	"github.com/getmockd/mockserver/pkg/httputil"
	"github.com/getmockd/mockserver/pkg/logging"
	"github.com/getmockd/mockserver/pkg/mock"
	"github.com/getmockd/mockserver/pkg/requestlog"
	"github.com/getmockd/mockserver/pkg/verify"
)

// Controller manages the listeners behind a Handler.
type Controller interface {
	Ports() []int
	Bind(ctx context.Context, ports []int) ([]int, error)
	Stop(ctx context.Context) error
}

// Handler serves both planes: PUT requests to a control path run that
// command, everything else is logged and matched against the registry.
type Handler struct {
	registry   ExpectationRegistry
	requests   requestlog.Store
	verifier   *verify.Verifier
	actions    *ActionHandler
	codec      *codec.Codec
	controller Controller
	matcher    *matching.Matcher
	log        *slog.Logger
	metrics    *Metrics
	commands   map[Command]commandFunc
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithHandlerCodec sets the wire codec.
func WithHandlerCodec(c *codec.Codec) HandlerOption {
	return func(h *Handler) {
		if c != nil {
			h.codec = c
		}
	}
}

// WithHandlerMatcher sets the matcher used by verification.
func WithHandlerMatcher(m *matching.Matcher) HandlerOption {
	return func(h *Handler) {
		if m != nil {
			h.matcher = m
		}
	}
}

// WithHandlerLogger sets the operational logger.
func WithHandlerLogger(log *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// WithHandlerMetrics records every exchange in m.
func WithHandlerMetrics(m *Metrics) HandlerOption {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithController sets the listener controller used by /status, /bind and /stop.
func WithController(c Controller) HandlerOption {
	return func(h *Handler) {
		h.controller = c
	}
}

// NewHandler creates a Handler over the given registry, request log and
// action executor.
func NewHandler(registry ExpectationRegistry, requests requestlog.Store, actions *ActionHandler, opts ...HandlerOption) *Handler {
	h := &Handler{
		registry: registry,
		requests: requests,
		actions:  actions,
		codec:    codec.New(codec.Options{}),
		matcher:  matching.New(matching.Options{}),
		log:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.actions == nil {
		h.actions = NewActionHandler(nil, 0, h.log)
	}
	h.verifier = verify.New(requests, h.matcher)
	h.commands = h.commandTable()
	return h
}

// Handle produces the outcome for a decoded request.
func (h *Handler) Handle(ctx context.Context, req *mock.HTTPRequest) *Outcome {
	start := time.Now()
	if req.Method == http.MethodPut {
		cmd := Command(req.Path)
		if run, ok := h.commands[cmd]; ok {
			h.log.Debug("control command", "command", req.Path)
			out := respond(run(ctx, req))
			h.metrics.observeControl(cmd, time.Since(start))
			return out
		}
	}
	out, outcome := h.serveData(ctx, req)
	h.metrics.observeData(outcome, time.Since(start))
	return out
}

// serveData records req, then answers it from the first eligible expectation.
func (h *Handler) serveData(ctx context.Context, req *mock.HTTPRequest) (*Outcome, string) {
	h.requests.Log(req)

	exp, err := h.registry.Match(ctx, req)
	if err != nil {
		h.log.Warn("request could not be matched", "method", req.Method, "path", req.Path, "error", err)
		return respond(httputil.Empty(http.StatusBadRequest)), outcomeInvalid
	}
	if exp == nil {
		h.log.Debug("no expectation matched", "method", req.Method, "path", req.Path)
		return respond(httputil.Absent(http.StatusNotFound)), outcomeUnmatched
	}

	out, err := h.actions.Execute(ctx, exp, req)
	if err != nil {
		h.log.Warn("action failed", "expectation", exp.ID, "error", err)
		return out, outcomeError
	}
	return out, outcomeMatched
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := h.codec.DecodeRequest(r)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, codec.ErrBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httputil.WriteText(w, status, err.Error())
		return
	}

	out := h.Handle(r.Context(), req)
	if out.Fault != nil {
		writeFault(w, out.Fault)
		return
	}
	h.writeResponse(w, req, out.Response)
}

// writeResponse finishes resp for the wire: Content-Length follows the
// encoded body, and the connection is closed after the exchange unless the
// client asked to keep it alive.
func (h *Handler) writeResponse(w http.ResponseWriter, req *mock.HTTPRequest, resp *mock.HTTPResponse) {
	if resp.Headers == nil {
		resp.Headers = http.Header{}
	}
	if resp.Body != nil {
		resp.Headers.Set("Content-Length", strconv.Itoa(len(codec.EncodeBody(resp.Body))))
	} else {
		resp.Headers.Del("Content-Length")
	}
	if !req.IsKeepAlive() {
		resp.Headers.Set("Connection", "close")
	}
	if err := h.codec.WriteResponse(w, resp); err != nil {
		h.log.Debug("writing response failed", "path", req.Path, "error", err)
	}
}

// writeFault takes over the connection, writes the raw bytes of the fault
// if any, and closes it. Writers that cannot be hijacked, such as HTTP/2
// streams, are reset instead.
func writeFault(w http.ResponseWriter, fault *mock.HTTPError) {
	hijacker, ok := w.(http.Hijacker)
	if !ok {
		panic(http.ErrAbortHandler)
	}
	conn, buf, err := hijacker.Hijack()
	if err != nil {
		panic(http.ErrAbortHandler)
	}
	defer func() { _ = conn.Close() }()

	if len(fault.ResponseBytes) > 0 {
		_, _ = buf.Write(fault.ResponseBytes)
		_ = buf.Flush()
	}
}

// retrieveType reads the type query parameter of /retrieve.
func retrieveType(req *mock.HTTPRequest) string {
	return strings.ToLower(req.QueryStringParameters.Get("type"))
}
