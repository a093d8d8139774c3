// Package codec converts between net/http messages and the normalized
// request and response model.
package codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/getmockd/mockserver/pkg/mock"
)

// DefaultMaxBodySize is the largest body read from the wire (10MB).
const DefaultMaxBodySize = 10 * 1024 * 1024

// ErrDecode is returned when a message cannot be turned into the model.
var ErrDecode = errors.New("decode failed")

// ErrBodyTooLarge is returned, wrapped in ErrDecode, when a body exceeds
// the configured limit.
var ErrBodyTooLarge = fmt.Errorf("%w: body too large", ErrDecode)

// DefaultBinaryMediaTypes lists media types whose bodies are kept as bytes.
// A "/*" suffix matches every subtype.
func DefaultBinaryMediaTypes() []string {
	return []string{
		"application/octet-stream",
		"application/pdf",
		"application/zip",
		"application/gzip",
		"application/x-gzip",
		"application/x-tar",
		"application/x-7z-compressed",
		"application/x-rar-compressed",
		"application/java-archive",
		"application/vnd.ms-excel",
		"application/x-protobuf",
		"image/*",
		"audio/*",
		"video/*",
		"font/*",
	}
}

// Options configures a Codec.
type Options struct {
	// BinaryMediaTypes overrides DefaultBinaryMediaTypes when non-empty.
	BinaryMediaTypes []string
	// MaxBodySize overrides DefaultMaxBodySize when positive.
	MaxBodySize int64
}

// Codec decodes and encodes HTTP messages.
type Codec struct {
	binaryTypes []string
	maxBodySize int64
}

// New creates a Codec.
func New(opts Options) *Codec {
	types := opts.BinaryMediaTypes
	if len(types) == 0 {
		types = DefaultBinaryMediaTypes()
	}
	normalized := make([]string, 0, len(types))
	for _, t := range types {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(t)))
	}
	maxBody := opts.MaxBodySize
	if maxBody <= 0 {
		maxBody = DefaultMaxBodySize
	}
	return &Codec{binaryTypes: normalized, maxBodySize: maxBody}
}

// MaxBodySize returns the largest body the codec reads.
func (c *Codec) MaxBodySize() int64 {
	return c.maxBodySize
}

// IsBinary reports whether a Content-Type denotes an opaque payload.
func (c *Codec) IsBinary(contentType string) bool {
	mediaType, _ := parseContentType(contentType)
	if mediaType == "" {
		return false
	}
	for _, t := range c.binaryTypes {
		if prefix, ok := strings.CutSuffix(t, "/*"); ok {
			if major, _, _ := strings.Cut(mediaType, "/"); major == prefix {
				return true
			}
			continue
		}
		if mediaType == t {
			return true
		}
	}
	return false
}

// DecodeRequest builds the model of an inbound request. The request body is
// consumed.
func (c *Codec) DecodeRequest(r *http.Request) (*mock.HTTPRequest, error) {
	req := &mock.HTTPRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		RemoteAddress: r.RemoteAddr,
	}
	if r.URL.RawQuery != "" {
		req.QueryStringParameters = r.URL.Query()
	}

	if len(r.Header) > 0 || r.Host != "" {
		req.Headers = r.Header.Clone()
		if req.Headers == nil {
			req.Headers = http.Header{}
		}
		if r.Host != "" && req.Headers.Get("Host") == "" {
			req.Headers.Set("Host", r.Host)
		}
	}

	for _, ck := range r.Cookies() {
		req.WithCookie(ck.Name, ck.Value)
	}
	for _, line := range r.Header.Values("Set-Cookie") {
		if ck, err := http.ParseSetCookie(line); err == nil {
			req.WithCookie(ck.Name, ck.Value)
		}
	}

	body, err := c.readBody(r.Body, r.Header)
	if err != nil {
		return nil, err
	}
	req.Body = body

	req.WithKeepAlive(!r.Close)
	req.WithSecure(r.TLS != nil)
	return req, nil
}

// DecodeResponse builds the model of a response received from a forward
// target. The response body is consumed but not closed.
func (c *Codec) DecodeResponse(resp *http.Response) (*mock.HTTPResponse, error) {
	out := &mock.HTTPResponse{StatusCode: resp.StatusCode}
	if len(resp.Header) > 0 {
		out.Headers = resp.Header.Clone()
	}

	for _, line := range resp.Header.Values("Cookie") {
		cookies, err := http.ParseCookie(line)
		if err != nil {
			continue
		}
		for _, ck := range cookies {
			out.WithCookie(ck.Name, ck.Value)
		}
	}
	for _, ck := range resp.Cookies() {
		out.WithCookie(ck.Name, ck.Value)
	}

	body, err := c.readBody(resp.Body, resp.Header)
	if err != nil {
		return nil, err
	}
	out.Body = body
	return out, nil
}

// readBody returns nil when there are no bytes at all.
func (c *Codec) readBody(rc io.Reader, h http.Header) (*mock.Body, error) {
	if rc == nil || rc == http.NoBody {
		return nil, nil
	}
	raw, err := io.ReadAll(io.LimitReader(rc, c.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrDecode, err)
	}
	if int64(len(raw)) > c.maxBodySize {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, c.maxBodySize)
	}
	if isContentEncoded(h.Values("Content-Encoding")) {
		return mock.BinaryBody(raw), nil
	}
	return c.DecodeBody(raw, h.Get("Content-Type")), nil
}

// isContentEncoded reports whether a Content-Encoding other than identity
// applies, in which case the bytes are not text in any charset.
func isContentEncoded(values []string) bool {
	for _, v := range values {
		for coding := range strings.SplitSeq(v, ",") {
			coding = strings.TrimSpace(coding)
			if coding != "" && !strings.EqualFold(coding, "identity") {
				return true
			}
		}
	}
	return false
}

// DecodeBody classifies raw bytes using the Content-Type. Binary media types
// stay as bytes; everything else is decoded as text using the declared
// charset, or UTF-8 when it is absent or unknown. Text bodies keep raw so
// they encode back to the same bytes.
func (c *Codec) DecodeBody(raw []byte, contentType string) *mock.Body {
	if len(raw) == 0 {
		return nil
	}
	if c.IsBinary(contentType) {
		return mock.BinaryBody(raw)
	}
	_, charset := parseContentType(contentType)
	text, _ := DecodeText(raw, charset)
	return mock.WireStringBody(text, charset, raw)
}

// EncodeBody returns the wire bytes of a body. A text body decoded from the
// wire and left unchanged yields the bytes it was received as.
func EncodeBody(body *mock.Body) []byte {
	if body == nil {
		return nil
	}
	if body.Type == mock.BodyBinary {
		return body.Raw
	}
	if raw, ok := body.Wire(); ok {
		return raw
	}
	return EncodeText(body.Value, body.Charset)
}

// EncodeRequest builds an outbound request for req against base, which
// supplies the scheme and host. Headers keep their repeated values, cookies
// are emitted as a Cookie header unless one is already present.
func (c *Codec) EncodeRequest(ctx context.Context, req *mock.HTTPRequest, base *url.URL) (*http.Request, error) {
	u := *base
	u.Path = req.Path
	u.RawPath = ""
	u.RawQuery = ""
	if len(req.QueryStringParameters) > 0 {
		u.RawQuery = req.QueryStringParameters.Encode()
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader = http.NoBody
	if payload := EncodeBody(req.Body); len(payload) > 0 {
		body = bytes.NewReader(payload)
	}

	out, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	for name, values := range req.Headers {
		switch http.CanonicalHeaderKey(name) {
		case "Host":
			if len(values) > 0 {
				out.Host = values[0]
			}
			continue
		case "Content-Length":
			continue
		}
		for _, v := range values {
			out.Header.Add(name, v)
		}
	}

	if out.Header.Get("Cookie") == "" {
		for _, name := range sortedKeys(req.Cookies) {
			out.AddCookie(&http.Cookie{Name: name, Value: req.Cookies[name]})
		}
	}
	return out, nil
}

// WriteResponse writes resp to w. Cookies not already carried by a
// Set-Cookie header are added as one.
func (c *Codec) WriteResponse(w http.ResponseWriter, resp *mock.HTTPResponse) error {
	h := w.Header()
	for name, values := range resp.Headers {
		h[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}

	present := make(map[string]bool)
	for _, line := range h.Values("Set-Cookie") {
		if ck, err := http.ParseSetCookie(line); err == nil {
			present[ck.Name] = true
		}
	}
	for _, name := range sortedKeys(resp.Cookies) {
		if present[name] {
			continue
		}
		h.Add("Set-Cookie", (&http.Cookie{Name: name, Value: resp.Cookies[name]}).String())
	}

	payload := EncodeBody(resp.Body)
	if resp.Body != nil && h.Get("Content-Length") == "" {
		h.Set("Content-Length", strconv.Itoa(len(payload)))
	}

	w.WriteHeader(resp.Status())
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("writing body: %w", err)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
