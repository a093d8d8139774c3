package codec

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/mockserver/pkg/mock"
)

func TestIsBinary(t *testing.T) {
	t.Parallel()

	c := New(Options{})
	tests := []struct {
		contentType string
		want        bool
	}{
		{"application/octet-stream", true},
		{"image/png", true},
		{"IMAGE/JPEG; q=1", true},
		{"application/pdf", true},
		{"text/plain; charset=utf-8", false},
		{"application/json", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.IsBinary(tt.contentType), tt.contentType)
	}

	custom := New(Options{BinaryMediaTypes: []string{"application/x-custom"}})
	assert.True(t, custom.IsBinary("application/x-custom"))
	assert.False(t, custom.IsBinary("image/png"))
}

func TestDecodeRequest(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodPost, "http://example.com/some/path?a=1&a=2&b=3", strings.NewReader("hello"))
	r.Header.Add("X-Multi", "one")
	r.Header.Add("X-Multi", "two")
	r.Header.Add("Cookie", "session=first; other=x")
	r.Header.Add("Cookie", "session=second")
	r.Header.Set("Content-Type", "text/plain")

	req, err := New(Options{}).DecodeRequest(r)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/some/path", req.Path)
	assert.Equal(t, []string{"1", "2"}, req.QueryStringParameters["a"])
	assert.Equal(t, []string{"one", "two"}, req.Headers.Values("x-multi"))
	assert.Equal(t, "example.com", req.Headers.Get("Host"))
	assert.Equal(t, "second", req.Cookies["session"])
	assert.Equal(t, "x", req.Cookies["other"])
	require.NotNil(t, req.Body)
	assert.Equal(t, mock.BodyString, req.Body.Type)
	assert.Equal(t, "hello", req.Body.Value)
	assert.True(t, req.IsKeepAlive())
}

func TestDecodeRequest_EmptyBodyIsAbsent(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	req, err := New(Options{}).DecodeRequest(r)
	require.NoError(t, err)
	assert.Nil(t, req.Body)
	assert.Nil(t, req.QueryStringParameters)
}

func TestDecodeRequest_ConnectionClose(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.Close = true
	req, err := New(Options{}).DecodeRequest(r)
	require.NoError(t, err)
	assert.False(t, req.IsKeepAlive())
}

func TestDecodeRequest_Charset(t *testing.T) {
	t.Parallel()

	// "café" in ISO-8859-1
	raw := []byte{'c', 'a', 'f', 0xe9}
	r := httptest.NewRequest(http.MethodPut, "/x", strings.NewReader(string(raw)))
	r.Header.Set("Content-Type", "text/plain; charset=ISO-8859-1")

	req, err := New(Options{}).DecodeRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "café", req.Body.Value)
	assert.Equal(t, "ISO-8859-1", req.Body.Charset)
	assert.Equal(t, raw, EncodeBody(req.Body))
}

func TestDecodeRequest_UnknownCharsetFallsBackToUTF8(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodPut, "/x", strings.NewReader("grüße"))
	r.Header.Set("Content-Type", "text/plain; charset=no-such-charset")

	req, err := New(Options{}).DecodeRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "grüße", req.Body.Value)
	assert.Equal(t, []byte("grüße"), EncodeBody(req.Body))
}

func TestDecodeRequest_Binary(t *testing.T) {
	t.Parallel()

	raw := []byte{0x89, 'P', 'N', 'G', 0x00, 0xff}
	r := httptest.NewRequest(http.MethodPut, "/img", strings.NewReader(string(raw)))
	r.Header.Set("Content-Type", "image/png")

	req, err := New(Options{}).DecodeRequest(r)
	require.NoError(t, err)
	assert.Equal(t, mock.BodyBinary, req.Body.Type)
	assert.Equal(t, raw, req.Body.Raw)
}

func TestDecodeRequest_SetCookieHeaders(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.Header.Add("Cookie", "a=1; b=2")
	r.Header.Add("Set-Cookie", "b=3; Path=/")
	r.Header.Add("Set-Cookie", "c=4")

	req, err := New(Options{}).DecodeRequest(r)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "3", "c": "4"}, req.Cookies)
}

func TestDecodeRequest_ContentEncodedBodyIsBinary(t *testing.T) {
	t.Parallel()

	raw := []byte{0x1f, 0x8b, 0x08, 0x00, 0xff, 0xfe}
	r := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(string(raw)))
	r.Header.Set("Content-Type", "text/plain; charset=Shift_JIS")
	r.Header.Set("Content-Encoding", "gzip")

	req, err := New(Options{}).DecodeRequest(r)
	require.NoError(t, err)
	assert.Equal(t, mock.BodyBinary, req.Body.Type)
	assert.Equal(t, raw, EncodeBody(req.Body))
}

func TestEncodeBody_Text(t *testing.T) {
	t.Parallel()

	// Not valid Shift_JIS: decoding substitutes replacement characters.
	raw := []byte{0xff, 0xfe, 0x80, 0xa0, 0x81}
	body := New(Options{}).DecodeBody(raw, "text/plain; charset=Shift_JIS")
	require.NotNil(t, body)
	assert.Equal(t, mock.BodyString, body.Type)

	t.Run("unchanged text keeps the received bytes", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, raw, EncodeBody(body.Clone()))
	})

	t.Run("edited text is encoded again", func(t *testing.T) {
		t.Parallel()
		edited := body.Clone()
		edited.Value = "abc"
		assert.Equal(t, []byte("abc"), EncodeBody(edited))
	})

	t.Run("built text is encoded with its charset", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, []byte{'c', 'a', 'f', 0xe9}, EncodeBody(mock.StringBodyWithCharset("café", "ISO-8859-1")))
	})
}

func TestDecodeRequest_BodyTooLarge(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodPut, "/x", strings.NewReader(strings.Repeat("a", 11)))
	_, err := New(Options{MaxBodySize: 10}).DecodeRequest(r)
	assert.ErrorIs(t, err, ErrDecode)
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestDecodeResponse(t *testing.T) {
	t.Parallel()

	resp := &http.Response{
		StatusCode: http.StatusCreated,
		Header: http.Header{
			"Content-Type": {"application/json"},
			"Set-Cookie":   {"a=1; Path=/", "a=2", "b=3"},
		},
		Body: io.NopCloser(strings.NewReader(`{"ok":true}`)),
	}

	out, err := New(Options{}).DecodeResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, out.StatusCode)
	assert.Equal(t, "2", out.Cookies["a"])
	assert.Equal(t, "3", out.Cookies["b"])
	assert.Equal(t, `{"ok":true}`, out.Body.Value)
}

func TestEncodeRequest(t *testing.T) {
	t.Parallel()

	req := mock.NewRequest().
		WithMethod(http.MethodPost).
		WithPath("/target").
		WithQueryStringParameter("q", "1", "2").
		WithHeader("Host", "original.example").
		WithHeader("X-Repeat", "a", "b").
		WithCookie("session", "abc").
		WithBody(mock.StringBody("payload"))

	base, _ := url.Parse("http://127.0.0.1:9999")
	out, err := New(Options{}).EncodeRequest(context.Background(), req, base)
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:9999/target?q=1&q=2", out.URL.String())
	assert.Equal(t, "original.example", out.Host)
	assert.Equal(t, []string{"a", "b"}, out.Header.Values("X-Repeat"))
	ck, err := out.Cookie("session")
	require.NoError(t, err)
	assert.Equal(t, "abc", ck.Value)

	body, err := io.ReadAll(out.Body)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(body))
	assert.EqualValues(t, len("payload"), out.ContentLength)
}

func TestWriteResponse(t *testing.T) {
	t.Parallel()

	resp := mock.NewResponse().
		WithStatusCode(http.StatusTeapot).
		WithHeader("X-A", "1", "2").
		WithCookie("c", "v").
		WithBody(mock.StringBody("some_content"))

	rec := httptest.NewRecorder()
	require.NoError(t, New(Options{}).WriteResponse(rec, resp))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, []string{"1", "2"}, rec.Header().Values("X-A"))
	assert.Equal(t, "c=v", rec.Header().Get("Set-Cookie"))
	assert.Equal(t, "12", rec.Header().Get("Content-Length"))
	assert.Equal(t, "some_content", rec.Body.String())
}

func TestWriteResponse_DefaultStatusAndNoBody(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	require.NoError(t, New(Options{}).WriteResponse(rec, mock.NewResponse()))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
	assert.Empty(t, rec.Header().Get("Content-Length"))
}

func TestRoundTrip_ResponseDecodeThenWrite(t *testing.T) {
	t.Parallel()

	raw := []byte{'n', 0xe4, 'h'}
	c := New(Options{})
	decoded, err := c.DecodeResponse(&http.Response{
		StatusCode: http.StatusAccepted,
		Header: http.Header{
			"Content-Type": {"text/plain; charset=windows-1252"},
			"X-Trace":      {"1", "2"},
		},
		Body: io.NopCloser(strings.NewReader(string(raw))),
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	require.NoError(t, c.WriteResponse(rec, decoded))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"1", "2"}, rec.Header().Values("X-Trace"))
	assert.Equal(t, raw, rec.Body.Bytes())
}
