// Package httputil provides shared helpers for building control-plane responses.
package httputil

import (
	"net/http"

	"github.com/getmockd/mockserver/pkg/mock"
)

// Content types used by control responses.
const (
	ContentTypeJSON = "application/json; charset=utf-8"
	ContentTypeText = "text/plain; charset=utf-8"
)

// Empty returns a response with the given status and a zero-length body.
func Empty(status int) *mock.HTTPResponse {
	return mock.NewResponse().WithStatusCode(status).WithBody(mock.StringBody(""))
}

// Absent returns a response with the given status and no body at all.
func Absent(status int) *mock.HTTPResponse {
	return mock.NewResponse().WithStatusCode(status)
}

// Text returns a plain text response. An empty text yields Empty.
func Text(status int, text string) *mock.HTTPResponse {
	if text == "" {
		return Empty(status)
	}
	return mock.NewResponse().
		WithStatusCode(status).
		WithHeader("Content-Type", ContentTypeText).
		WithBody(mock.StringBody(text))
}

// JSON returns a response carrying an already serialized JSON document.
func JSON(status int, data []byte) *mock.HTTPResponse {
	return mock.NewResponse().
		WithStatusCode(status).
		WithHeader("Content-Type", ContentTypeJSON).
		WithBody(mock.StringBody(string(data)))
}

// WriteText writes a plain text response directly, for failures that
// happen before a request could be decoded.
func WriteText(w http.ResponseWriter, status int, text string) {
	if text != "" {
		w.Header().Set("Content-Type", ContentTypeText)
	}
	w.WriteHeader(status)
	if text != "" {
		_, _ = w.Write([]byte(text))
	}
}
