// Package client is a Go client for the mock server control plane.
//
// Every method maps to one control command sent as a PUT request:
//
//	c := client.New("http://localhost:1080")
//	err := c.Expect(ctx, mock.NewExpectation(
//		mock.NewRequest().WithPath("/hello"), mock.TimesOnce(), mock.TTLUnlimited(),
//	).ThenRespond(mock.NewResponse().WithBody(mock.StringBody("world"))))
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/getmockd/mockserver/pkg/mock"
	"github.com/getmockd/mockserver/pkg/serialization"
)

// Sentinel errors for client operations.
var (
	// ErrVerificationFailed is returned when the server rejects a
	// verification. The error text carries the server's description.
	ErrVerificationFailed = errors.New("verification failed")
	// ErrUnexpectedStatus is returned for any other unexpected status code.
	ErrUnexpectedStatus = errors.New("unexpected status")
)

// DefaultTimeout is the HTTP timeout used when none is configured.
const DefaultTimeout = 30 * time.Second

// Client sends control commands to a mock server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New creates a client for the server at baseURL, e.g. "http://localhost:1080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Reset removes every expectation and recorded request.
func (c *Client) Reset(ctx context.Context) error {
	_, err := c.command(ctx, "/reset", nil, nil, http.StatusAccepted)
	return err
}

// Clear removes the expectations and recorded requests matching pattern.
// A nil pattern clears everything.
func (c *Client) Clear(ctx context.Context, pattern *mock.HTTPRequest) error {
	_, err := c.command(ctx, "/clear", nil, pattern, http.StatusAccepted)
	return err
}

// ClearRequestLog removes the recorded requests matching pattern and keeps
// every expectation.
func (c *Client) ClearRequestLog(ctx context.Context, pattern *mock.HTTPRequest) error {
	_, err := c.command(ctx, "/clearRequestLog", nil, pattern, http.StatusAccepted)
	return err
}

// DumpToLog asks the server to write the active expectations matching
// pattern to its log.
func (c *Client) DumpToLog(ctx context.Context, pattern *mock.HTTPRequest) error {
	_, err := c.command(ctx, "/dumpToLog", nil, pattern, http.StatusAccepted)
	return err
}

// Expect registers expectations in order.
func (c *Client) Expect(ctx context.Context, exps ...*mock.Expectation) error {
	if len(exps) == 0 {
		return nil
	}
	_, err := c.command(ctx, "/expectation", nil, exps, http.StatusCreated)
	return err
}

// RetrieveRequests returns the recorded requests matching pattern.
func (c *Client) RetrieveRequests(ctx context.Context, pattern *mock.HTTPRequest) ([]*mock.HTTPRequest, error) {
	body, err := c.command(ctx, "/retrieve", nil, pattern, http.StatusOK)
	if err != nil {
		return nil, err
	}
	var requests []*mock.HTTPRequest
	if err := json.Unmarshal(body, &requests); err != nil {
		return nil, fmt.Errorf("failed to decode requests: %w", err)
	}
	return requests, nil
}

// RetrieveExpectations returns the active expectations matching pattern.
func (c *Client) RetrieveExpectations(ctx context.Context, pattern *mock.HTTPRequest) ([]*mock.Expectation, error) {
	query := url.Values{"type": {"expectations"}}
	body, err := c.command(ctx, "/retrieve", query, pattern, http.StatusOK)
	if err != nil {
		return nil, err
	}
	var exps []*mock.Expectation
	if err := json.Unmarshal(body, &exps); err != nil {
		return nil, fmt.Errorf("failed to decode expectations: %w", err)
	}
	return exps, nil
}

// Verify checks the request log against v. A failed verification returns
// an error wrapping ErrVerificationFailed.
func (c *Client) Verify(ctx context.Context, v *mock.Verification) error {
	_, err := c.command(ctx, "/verify", nil, v, http.StatusAccepted)
	return err
}

// VerifySequence checks that the patterns were received in order.
func (c *Client) VerifySequence(ctx context.Context, seq *mock.VerificationSequence) error {
	_, err := c.command(ctx, "/verifySequence", nil, seq, http.StatusAccepted)
	return err
}

// Status returns the ports the server listens on.
func (c *Client) Status(ctx context.Context) ([]int, error) {
	body, err := c.command(ctx, "/status", nil, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return decodePorts(body)
}

// Bind opens additional ports and returns the ports actually bound.
func (c *Client) Bind(ctx context.Context, ports ...int) ([]int, error) {
	body, err := c.command(ctx, "/bind", nil, serialization.Ports{Ports: ports}, http.StatusAccepted)
	if err != nil {
		return nil, err
	}
	return decodePorts(body)
}

// Stop asks the server to shut down.
func (c *Client) Stop(ctx context.Context) error {
	_, err := c.command(ctx, "/stop", nil, nil, http.StatusAccepted)
	return err
}

func decodePorts(body []byte) ([]int, error) {
	var p serialization.Ports
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("failed to decode ports: %w", err)
	}
	return p.Ports, nil
}

// command sends PUT path with payload encoded as JSON, nil meaning an empty
// body, and returns the response body when the status is want.
func (c *Client) command(ctx context.Context, path string, query url.Values, payload any, want int) ([]byte, error) {
	var body io.Reader
	if payload != nil && !isNilRequest(payload) {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", path, err)
	}
	switch {
	case resp.StatusCode == want:
		return data, nil
	case resp.StatusCode == http.StatusNotAcceptable:
		return nil, fmt.Errorf("%w: %s", ErrVerificationFailed, data)
	default:
		return nil, parseError(path, resp.StatusCode, data)
	}
}

func isNilRequest(payload any) bool {
	req, ok := payload.(*mock.HTTPRequest)
	return ok && req == nil
}

func parseError(path string, status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, path, status)
	}
	return fmt.Errorf("%w: %s returned %d: %s", ErrUnexpectedStatus, path, status, msg)
}
