// Package proxy relays requests to upstream servers for forward and
// callback actions. Every outbound call is bounded by a timeout and by a
// limit on concurrent calls.
package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/getmockd/mockserver/pkg/codec"
	"github.com/getmockd/mockserver/pkg/logging"
	"github.com/getmockd/mockserver/pkg/mock"
)

const (
	// DefaultTimeout bounds a single outbound call.
	DefaultTimeout = 20 * time.Second

	// DefaultMaxConcurrent is the default number of outbound calls in flight.
	DefaultMaxConcurrent = 256
)

// ErrUpstream is returned when the upstream cannot be reached or does not
// answer in time.
var ErrUpstream = errors.New("upstream request failed")

// Options configures a Forwarder.
type Options struct {
	// Timeout bounds each call, including reading the response body.
	Timeout time.Duration
	// MaxConcurrent bounds the number of calls in flight.
	MaxConcurrent int
	// Codec encodes outbound requests and decodes responses.
	Codec *codec.Codec
	// MaxBodySize bounds upstream response bodies. Zero uses the codec's
	// limit.
	MaxBodySize int64
	// Transport overrides the HTTP transport. An *http.Transport is cloned
	// with transparent compression turned off.
	Transport http.RoundTripper
	// Logger for operational logging (nil = no logging).
	Logger *slog.Logger
}

// Forwarder sends requests upstream.
type Forwarder struct {
	client  *http.Client
	codec   *codec.Codec
	sem     *semaphore.Weighted
	timeout time.Duration
	maxBody int64
	log     *slog.Logger
}

// New creates a Forwarder with the given options.
func New(opts Options) *Forwarder {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	c := opts.Codec
	if c == nil {
		c = codec.New(codec.Options{})
	}
	maxBody := opts.MaxBodySize
	if maxBody <= 0 {
		maxBody = c.MaxBodySize()
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}

	return &Forwarder{
		client: &http.Client{
			Transport: relayTransport(opts.Transport),
			// Redirects are returned to the caller unmodified.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		codec:   c,
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		timeout: timeout,
		maxBody: maxBody,
		log:     log,
	}
}

// relayTransport returns a transport that sends and receives bodies
// exactly as given: no Accept-Encoding is added and nothing is
// decompressed.
func relayTransport(rt http.RoundTripper) http.RoundTripper {
	switch t := rt.(type) {
	case nil:
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.DisableCompression = true
		return tr
	case *http.Transport:
		tr := t.Clone()
		tr.DisableCompression = true
		return tr
	default:
		return rt
	}
}

// Timeout returns the per-call timeout.
func (f *Forwarder) Timeout() time.Duration {
	return f.timeout
}

// Forward sends req to target, which supplies scheme and host, and returns
// the upstream response.
func (f *Forwarder) Forward(ctx context.Context, req *mock.HTTPRequest, target *url.URL) (*mock.HTTPResponse, error) {
	out, err := f.codec.EncodeRequest(ctx, req, target)
	if err != nil {
		return nil, err
	}
	removeHopByHopHeaders(out.Header)

	resp, body, err := f.Do(ctx, out)
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	decoded, err := f.codec.DecodeResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if decoded.Headers != nil {
		removeHopByHopHeaders(decoded.Headers)
	}

	f.log.Debug("forwarded request",
		"method", out.Method,
		"url", out.URL.String(),
		"status", decoded.Status(),
	)
	return decoded, nil
}

// Do executes req within the concurrency limit and timeout and returns the
// response with its body fully read. A body larger than the limit is an
// error, never a truncated response.
func (f *Forwarder) Do(ctx context.Context, req *http.Request) (*http.Response, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, nil, fmt.Errorf("%w: waiting for a free slot: %v", ErrUpstream, err)
	}
	defer f.sem.Release(1)

	resp, err := f.client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s %s: %v", ErrUpstream, req.Method, req.URL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reading response: %v", ErrUpstream, err)
	}
	if int64(len(body)) > f.maxBody {
		return nil, nil, fmt.Errorf("%w: %s %s: response body exceeds %d bytes", ErrUpstream, req.Method, req.URL, f.maxBody)
	}
	return resp, body, nil
}

// removeHopByHopHeaders removes headers that should not be forwarded.
func removeHopByHopHeaders(h http.Header) {
	hopByHopHeaders := []string{
		"Connection",
		"Keep-Alive",
		"Proxy-Authenticate",
		"Proxy-Authorization",
		"Proxy-Connection",
		"TE",
		"Trailers",
		"Transfer-Encoding",
		"Upgrade",
	}

	for _, header := range hopByHopHeaders {
		h.Del(header)
	}
}
