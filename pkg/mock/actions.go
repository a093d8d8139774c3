package mock

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// ActionType identifies what a matched expectation does.
type ActionType string

const (
	ActionRespond  ActionType = "RESPOND"
	ActionForward  ActionType = "FORWARD"
	ActionError    ActionType = "ERROR"
	ActionCallback ActionType = "CALLBACK"
)

// Action is the outcome attached to an expectation. It is one of
// *HTTPResponse, *HTTPForward, *HTTPError or *HTTPCallback.
type Action interface {
	ActionType() ActionType
}

// ActionType implements Action.
func (r *HTTPResponse) ActionType() ActionType { return ActionRespond }

// Scheme is the protocol used to reach a forward target.
type Scheme string

const (
	SchemeHTTP  Scheme = "HTTP"
	SchemeHTTPS Scheme = "HTTPS"
)

// HTTPForward relays the matched request to another server and returns its
// response unmodified.
type HTTPForward struct {
	Host   string `json:"host"`
	Port   int    `json:"port,omitempty"`
	Scheme Scheme `json:"scheme,omitempty"`
}

// NewForward returns a forward to host:port over plain HTTP.
func NewForward(host string, port int) *HTTPForward {
	return &HTTPForward{Host: host, Port: port, Scheme: SchemeHTTP}
}

// ActionType implements Action.
func (f *HTTPForward) ActionType() ActionType { return ActionForward }

// URL returns the base URL of the forward target.
func (f *HTTPForward) URL() *url.URL {
	scheme := "http"
	port := f.Port
	if strings.EqualFold(string(f.Scheme), string(SchemeHTTPS)) {
		scheme = "https"
		if port == 0 {
			port = 443
		}
	}
	if port == 0 {
		port = 80
	}
	return &url.URL{Scheme: scheme, Host: net.JoinHostPort(f.Host, strconv.Itoa(port))}
}

// String returns the target address.
func (f *HTTPForward) String() string {
	return f.URL().String()
}

// HTTPError makes the server misbehave at the transport level instead of
// answering with a well-formed response.
type HTTPError struct {
	// DropConnection closes the connection.
	DropConnection bool `json:"dropConnection,omitempty"`
	// ResponseBytes are written verbatim before the connection closes.
	ResponseBytes []byte `json:"responseBytes,omitempty"`
	Delay         *Delay `json:"delay,omitempty"`
}

// NewError returns an error action that drops the connection.
func NewError() *HTTPError {
	return &HTTPError{DropConnection: true}
}

// WithResponseBytes sets raw bytes to write before closing.
func (e *HTTPError) WithResponseBytes(b []byte) *HTTPError {
	e.ResponseBytes = b
	return e
}

// ActionType implements Action.
func (e *HTTPError) ActionType() ActionType { return ActionError }

// HTTPCallback delegates response generation. With URL set the request is
// posted to that webhook as JSON and the JSON reply is the response. With
// Name set a callback registered in-process under that name is invoked.
type HTTPCallback struct {
	URL  string `json:"url,omitempty"`
	Name string `json:"callbackName,omitempty"`
}

// ActionType implements Action.
func (c *HTTPCallback) ActionType() ActionType { return ActionCallback }

// Validate checks that exactly one target is set.
func (c *HTTPCallback) Validate() error {
	if (c.URL == "") == (c.Name == "") {
		return fmt.Errorf("callback needs exactly one of url or callbackName")
	}
	return nil
}
