package mock

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// HTTPRequest is a normalized HTTP request. As a pattern, every zero-valued
// field matches anything.
type HTTPRequest struct {
	Method                string            `json:"method,omitempty"`
	Path                  string            `json:"path,omitempty"`
	QueryStringParameters url.Values        `json:"queryStringParameters,omitempty"`
	Headers               http.Header       `json:"headers,omitempty"`
	Cookies               map[string]string `json:"cookies,omitempty"`
	Body                  *Body             `json:"body,omitempty"`
	KeepAlive             *bool             `json:"keepAlive,omitempty"`
	Secure                *bool             `json:"secure,omitempty"`
	RemoteAddress         string            `json:"remoteAddress,omitempty"`
}

// NewRequest returns an empty request, which as a pattern matches every request.
func NewRequest() *HTTPRequest {
	return &HTTPRequest{}
}

// WithMethod sets the method.
func (r *HTTPRequest) WithMethod(method string) *HTTPRequest {
	r.Method = method
	return r
}

// WithPath sets the path.
func (r *HTTPRequest) WithPath(path string) *HTTPRequest {
	r.Path = path
	return r
}

// WithQueryStringParameter appends values for a query parameter.
func (r *HTTPRequest) WithQueryStringParameter(name string, values ...string) *HTTPRequest {
	if r.QueryStringParameters == nil {
		r.QueryStringParameters = url.Values{}
	}
	r.QueryStringParameters[name] = append(r.QueryStringParameters[name], values...)
	return r
}

// WithHeader appends values for a header. Names are case-insensitive.
func (r *HTTPRequest) WithHeader(name string, values ...string) *HTTPRequest {
	if r.Headers == nil {
		r.Headers = http.Header{}
	}
	key := http.CanonicalHeaderKey(name)
	r.Headers[key] = append(r.Headers[key], values...)
	return r
}

// WithCookie sets a cookie, replacing any earlier value with the same name.
func (r *HTTPRequest) WithCookie(name, value string) *HTTPRequest {
	if r.Cookies == nil {
		r.Cookies = make(map[string]string)
	}
	r.Cookies[name] = value
	return r
}

// WithBody sets the body.
func (r *HTTPRequest) WithBody(body *Body) *HTTPRequest {
	r.Body = body
	return r
}

// WithKeepAlive records whether the connection should stay open after the exchange.
func (r *HTTPRequest) WithKeepAlive(keepAlive bool) *HTTPRequest {
	r.KeepAlive = &keepAlive
	return r
}

// WithSecure records whether the request arrived over TLS.
func (r *HTTPRequest) WithSecure(secure bool) *HTTPRequest {
	r.Secure = &secure
	return r
}

// Header returns the first value of the named header.
func (r *HTTPRequest) Header(name string) string {
	if r == nil {
		return ""
	}
	return r.Headers.Get(name)
}

// IsKeepAlive reports whether the client asked to keep the connection open.
// An unset flag means the connection is closed after the exchange.
func (r *HTTPRequest) IsKeepAlive() bool {
	return r != nil && r.KeepAlive != nil && *r.KeepAlive
}

// Clone returns a deep copy.
func (r *HTTPRequest) Clone() *HTTPRequest {
	if r == nil {
		return nil
	}
	c := &HTTPRequest{
		Method:        r.Method,
		Path:          r.Path,
		Body:          r.Body.Clone(),
		RemoteAddress: r.RemoteAddress,
	}
	if r.QueryStringParameters != nil {
		c.QueryStringParameters = url.Values(cloneMultiMap(r.QueryStringParameters))
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
	if r.KeepAlive != nil {
		v := *r.KeepAlive
		c.KeepAlive = &v
	}
	if r.Secure != nil {
		v := *r.Secure
		c.Secure = &v
	}
	return c
}

// String renders the request as indented JSON for logs and failure messages.
func (r *HTTPRequest) String() string {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return r.Method + " " + r.Path
	}
	return string(data)
}

// UnmarshalJSON accepts headers, query parameters and cookies either as
// objects or as lists of {"name": ..., "values": [...]} entries.
func (r *HTTPRequest) UnmarshalJSON(data []byte) error {
	var proxy struct {
		Method                string          `json:"method"`
		Path                  string          `json:"path"`
		QueryStringParameters json.RawMessage `json:"queryStringParameters"`
		Headers               json.RawMessage `json:"headers"`
		Cookies               json.RawMessage `json:"cookies"`
		Body                  *Body           `json:"body"`
		KeepAlive             *bool           `json:"keepAlive"`
		Secure                *bool           `json:"secure"`
		RemoteAddress         string          `json:"remoteAddress"`
	}
	if err := json.Unmarshal(data, &proxy); err != nil {
		return err
	}

	query, err := decodeMultiMap(proxy.QueryStringParameters)
	if err != nil {
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

	*r = HTTPRequest{
		Method:    proxy.Method,
		Path:      proxy.Path,
		Cookies:   cookies,
		Body:      proxy.Body,
		KeepAlive: proxy.KeepAlive,
		Secure:    proxy.Secure,

		RemoteAddress: proxy.RemoteAddress,
	}
	if query != nil {
		r.QueryStringParameters = url.Values(query)
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

type namedValues struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
	Value  *string  `json:"value"`
}

// decodeMultiMap reads {"k": ["v"]}, {"k": "v"} or [{"name": "k", "values": ["v"]}].
func decodeMultiMap(raw json.RawMessage) (map[string][]string, error) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	out := make(map[string][]string)
	if raw[0] == '[' {
		var list []namedValues
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		for _, nv := range list {
			out[nv.Name] = append(out[nv.Name], nv.Values...)
			if nv.Value != nil {
				out[nv.Name] = append(out[nv.Name], *nv.Value)
			}
		}
		return out, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	for name, v := range obj {
		var values []string
		if err := json.Unmarshal(v, &values); err != nil {
			var single string
			if err := json.Unmarshal(v, &single); err != nil {
				return nil, err
			}
			values = []string{single}
		}
		out[name] = values
	}
	return out, nil
}

// decodeCookies reads {"k": "v"} or [{"name": "k", "value": "v"}]; the last
// duplicate name wins.
func decodeCookies(raw json.RawMessage) (map[string]string, error) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	out := make(map[string]string)
	if raw[0] == '[' {
		var list []namedValues
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		for _, nv := range list {
			switch {
			case nv.Value != nil:
				out[nv.Name] = *nv.Value
			case len(nv.Values) > 0:
				out[nv.Name] = nv.Values[len(nv.Values)-1]
			default:
				out[nv.Name] = ""
			}
		}
		return out, nil
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func cloneMultiMap(m map[string][]string) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[k] = append([]string(nil), v...)
	}
	return out
}
