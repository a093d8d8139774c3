package mock

import (
	"encoding/json"
	"net/http"
)

// HTTPResponse is a normalized HTTP response. It is both what the server
// returns for a matched expectation and what a forward or callback yields.
type HTTPResponse struct {
	// StatusCode defaults to 200 when zero.
	StatusCode int               `json:"statusCode,omitempty"`
	Headers    http.Header       `json:"headers,omitempty"`
	Cookies    map[string]string `json:"cookies,omitempty"`
	// Body is nil when the response has no body at all.
	Body  *Body  `json:"body,omitempty"`
	Delay *Delay `json:"delay,omitempty"`
}

// NewResponse returns a 200 response with no headers and no body.
func NewResponse() *HTTPResponse {
	return &HTTPResponse{}
}

// WithStatusCode sets the status code.
func (r *HTTPResponse) WithStatusCode(code int) *HTTPResponse {
	r.StatusCode = code
	return r
}

// WithHeader appends values for a header.
func (r *HTTPResponse) WithHeader(name string, values ...string) *HTTPResponse {
	if r.Headers == nil {
		r.Headers = http.Header{}
	}
	key := http.CanonicalHeaderKey(name)
	r.Headers[key] = append(r.Headers[key], values...)
	return r
}

// WithCookie sets a cookie.
func (r *HTTPResponse) WithCookie(name, value string) *HTTPResponse {
	if r.Cookies == nil {
		r.Cookies = make(map[string]string)
	}
	r.Cookies[name] = value
	return r
}

// WithBody sets the body.
func (r *HTTPResponse) WithBody(body *Body) *HTTPResponse {
	r.Body = body
	return r
}

// WithDelay delays writing the response.
func (r *HTTPResponse) WithDelay(delay *Delay) *HTTPResponse {
	r.Delay = delay
	return r
}

// Status returns the status code, defaulting to 200.
func (r *HTTPResponse) Status() int {
	if r == nil || r.StatusCode == 0 {
		return http.StatusOK
	}
	return r.StatusCode
}

// Clone returns a deep copy.
func (r *HTTPResponse) Clone() *HTTPResponse {
	if r == nil {
		return nil
	}
	c := &HTTPResponse{
		StatusCode: r.StatusCode,
		Body:       r.Body.Clone(),
	}
	if r.Headers != nil {
		c.Headers = r.Headers.Clone()
	}
	if r.Cookies != nil {
		c.Cookies = make(map[string]string, len(r.Cookies))
		for k, v := range r.Cookies {
			c.Cookies[k] = v
		}
	}
	if r.Delay != nil {
		d := *r.Delay
		c.Delay = &d
	}
	return c
}

// UnmarshalJSON accepts the same header and cookie shapes as HTTPRequest.
func (r *HTTPResponse) UnmarshalJSON(data []byte) error {
	var proxy struct {
		StatusCode int             `json:"statusCode"`
		Headers    json.RawMessage `json:"headers"`
		Cookies    json.RawMessage `json:"cookies"`
		Body       *Body           `json:"body"`
		Delay      *Delay          `json:"delay"`
	}
	if err := json.Unmarshal(data, &proxy); err != nil {
		return err
	}

	headers, err := decodeMultiMap(proxy.Headers)
	if err != nil {
		return err
	}
	cookies, err := decodeCookies(proxy.Cookies)
	if err != nil {
		return err
	}

	*r = HTTPResponse{
		StatusCode: proxy.StatusCode,
		Cookies:    cookies,
		Body:       proxy.Body,
		Delay:      proxy.Delay,
	}
	if headers != nil {
		r.Headers = http.Header{}
		for name, values := range headers {
			key := http.CanonicalHeaderKey(name)
			r.Headers[key] = append(r.Headers[key], values...)
		}
	}
	return nil
}
