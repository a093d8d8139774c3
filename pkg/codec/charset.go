package codec

import (
	"mime"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
)

// lookupEncoding resolves a charset name. UTF-8 and unknown names report
// false; the caller then treats the bytes as UTF-8.
func lookupEncoding(name string) (encoding.Encoding, bool) {
	name = strings.TrimSpace(name)
	if name == "" || isUTF8(name) {
		return nil, false
	}
	if enc, err := ianaindex.IANA.Encoding(name); err == nil && enc != nil {
		return enc, true
	}
	if enc, err := htmlindex.Get(name); err == nil {
		return enc, true
	}
	return nil, false
}

func isUTF8(name string) bool {
	return strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8")
}

// KnownCharset reports whether name can be used to decode and encode text.
func KnownCharset(name string) bool {
	if isUTF8(name) {
		return true
	}
	_, ok := lookupEncoding(name)
	return ok
}

// DecodeText converts raw bytes in charset to a UTF-8 string. Unknown
// charsets fall back to UTF-8 and report false.
func DecodeText(raw []byte, charset string) (string, bool) {
	enc, ok := lookupEncoding(charset)
	if !ok {
		return string(raw), charset == "" || isUTF8(charset)
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw), false
	}
	return string(out), true
}

// EncodeText converts UTF-8 text to bytes in charset. Characters the charset
// cannot represent are replaced.
func EncodeText(text, charset string) []byte {
	enc, ok := lookupEncoding(charset)
	if !ok {
		return []byte(text)
	}
	out, err := encoding.ReplaceUnsupported(enc.NewEncoder()).Bytes([]byte(text))
	if err != nil {
		return []byte(text)
	}
	return out
}

// parseContentType splits a Content-Type value into its lower-cased media
// type and charset parameter.
func parseContentType(contentType string) (mediaType, charset string) {
	if contentType == "" {
		return "", ""
	}
	mt, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt, _, _ = strings.Cut(contentType, ";")
		return strings.ToLower(strings.TrimSpace(mt)), ""
	}
	return mt, params["charset"]
}
