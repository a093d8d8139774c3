package mock

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// BodyType identifies how a Body is interpreted.
type BodyType string

// Body types. STRING and BINARY describe concrete payloads; the others only
// make sense inside a request pattern.
const (
	BodyString     BodyType = "STRING"
	BodyBinary     BodyType = "BINARY"
	BodyRegex      BodyType = "REGEX"
	BodyJSON       BodyType = "JSON"
	BodyJSONPath   BodyType = "JSON_PATH"
	BodyXPath      BodyType = "XPATH"
	BodyJSONSchema BodyType = "JSON_SCHEMA"
)

// JSONMatchType controls how a JSON body pattern is compared.
type JSONMatchType string

const (
	// JSONOnlyMatchingFields accepts extra fields in the request.
	JSONOnlyMatchingFields JSONMatchType = "ONLY_MATCHING_FIELDS"
	// JSONStrict requires the request JSON to be equal to the pattern.
	JSONStrict JSONMatchType = "STRICT"
)

// Body is a request or response payload, or a body matcher when used in a
// request pattern.
type Body struct {
	Type BodyType

	// Value holds the text for STRING bodies and the expression for matcher
	// bodies (regex, JSON document, JSONPath, XPath or JSON schema).
	Value string

	// Raw holds the bytes of a BINARY body. On a STRING body decoded from
	// the wire it holds the bytes as received; see Wire.
	Raw []byte

	// Charset is the declared character set of a STRING body. Empty means UTF-8.
	Charset string

	// MatchType applies to JSON bodies only.
	MatchType JSONMatchType

	// wireText is the Value that Raw was decoded to.
	wireText string
}

// StringBody returns a UTF-8 text body.
func StringBody(s string) *Body {
	return &Body{Type: BodyString, Value: s}
}

// StringBodyWithCharset returns a text body that is encoded with charset on the wire.
func StringBodyWithCharset(s, charset string) *Body {
	return &Body{Type: BodyString, Value: s, Charset: charset}
}

// BinaryBody returns an opaque byte body.
func BinaryBody(b []byte) *Body {
	return &Body{Type: BodyBinary, Raw: b}
}

// WireStringBody returns a text body decoded from raw. The received bytes
// are kept so the body is written back verbatim while its text is unchanged.
func WireStringBody(s, charset string, raw []byte) *Body {
	return &Body{Type: BodyString, Value: s, Charset: charset, Raw: raw, wireText: s}
}

// Wire returns the bytes a STRING body was received as, if its text has not
// been changed since.
func (b *Body) Wire() ([]byte, bool) {
	if b == nil || b.Type != BodyString || b.Raw == nil || b.Value != b.wireText {
		return nil, false
	}
	return b.Raw, true
}

// RegexBody returns a body matcher that full-matches the request text.
func RegexBody(pattern string) *Body {
	return &Body{Type: BodyRegex, Value: pattern}
}

// JSONBody returns a body matcher comparing JSON documents.
func JSONBody(doc string, matchType JSONMatchType) *Body {
	return &Body{Type: BodyJSON, Value: doc, MatchType: matchType}
}

// JSONPathBody returns a body matcher that succeeds when the expression selects anything.
func JSONPathBody(expr string) *Body {
	return &Body{Type: BodyJSONPath, Value: expr}
}

// XPathBody returns a body matcher that succeeds when the expression selects an element.
func XPathBody(expr string) *Body {
	return &Body{Type: BodyXPath, Value: expr}
}

// JSONSchemaBody returns a body matcher validating the request against a JSON schema.
func JSONSchemaBody(schema string) *Body {
	return &Body{Type: BodyJSONSchema, Value: schema}
}

// Bytes returns the payload as bytes. Text is returned as UTF-8; charset
// encoding for the wire is done by the codec.
func (b *Body) Bytes() []byte {
	if b == nil {
		return nil
	}
	if b.Type == BodyBinary {
		return b.Raw
	}
	return []byte(b.Value)
}

// String returns the payload as text.
func (b *Body) String() string {
	if b == nil {
		return ""
	}
	if b.Type == BodyBinary {
		return string(b.Raw)
	}
	return b.Value
}

// IsEmpty reports whether the body carries no bytes.
func (b *Body) IsEmpty() bool {
	if b == nil {
		return true
	}
	if b.Type == BodyBinary {
		return len(b.Raw) == 0
	}
	return b.Value == ""
}

// Equal reports whether two bodies describe the same payload.
func (b *Body) Equal(other *Body) bool {
	if b == nil || other == nil {
		return b == other
	}
	if b.Type != other.Type || b.Charset != other.Charset || b.MatchType != other.MatchType {
		return false
	}
	if b.Type == BodyBinary {
		return bytes.Equal(b.Raw, other.Raw)
	}
	return b.Value == other.Value
}

// Clone returns a deep copy.
func (b *Body) Clone() *Body {
	if b == nil {
		return nil
	}
	c := *b
	if b.Raw != nil {
		c.Raw = append([]byte(nil), b.Raw...)
	}
	return &c
}

type bodyJSON struct {
	Type        BodyType        `json:"type"`
	String      *string         `json:"string,omitempty"`
	Regex       string          `json:"regex,omitempty"`
	JSON        json.RawMessage `json:"json,omitempty"`
	JSONPath    string          `json:"jsonPath,omitempty"`
	XPath       string          `json:"xpath,omitempty"`
	JSONSchema  json.RawMessage `json:"jsonSchema,omitempty"`
	Base64Bytes string          `json:"base64Bytes,omitempty"`
	Charset     string          `json:"charset,omitempty"`
	MatchType   JSONMatchType   `json:"matchType,omitempty"`
}

// MarshalJSON renders the body as a typed object.
func (b Body) MarshalJSON() ([]byte, error) {
	out := bodyJSON{Type: b.Type, Charset: b.Charset}
	switch b.Type {
	case BodyBinary:
		out.Base64Bytes = base64.StdEncoding.EncodeToString(b.Raw)
	case BodyRegex:
		out.Regex = b.Value
	case BodyJSON:
		out.JSON = textOrRaw(b.Value)
		out.MatchType = b.MatchType
	case BodyJSONPath:
		out.JSONPath = b.Value
	case BodyXPath:
		out.XPath = b.Value
	case BodyJSONSchema:
		out.JSONSchema = textOrRaw(b.Value)
	default:
		out.Type = BodyString
		v := b.Value
		out.String = &v
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts either a typed object or a bare string, which is
// treated as a STRING body. A bare JSON object or array is treated as a
// JSON body.
func (b *Body) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*b = Body{Type: BodyString, Value: s}
		return nil
	}

	if data[0] == '[' {
		*b = Body{Type: BodyJSON, Value: string(data), MatchType: JSONOnlyMatchingFields}
		return nil
	}

	var in bodyJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.Type == "" {
		*b = Body{Type: BodyJSON, Value: string(data), MatchType: JSONOnlyMatchingFields}
		return nil
	}

	out := Body{Type: in.Type, Charset: in.Charset}
	switch in.Type {
	case BodyString:
		if in.String != nil {
			out.Value = *in.String
		}
	case BodyBinary:
		raw, err := base64.StdEncoding.DecodeString(in.Base64Bytes)
		if err != nil {
			return fmt.Errorf("invalid base64Bytes: %w", err)
		}
		out.Raw = raw
	case BodyRegex:
		out.Value = in.Regex
	case BodyJSON:
		out.Value = rawToText(in.JSON)
		out.MatchType = in.MatchType
		if out.MatchType == "" {
			out.MatchType = JSONOnlyMatchingFields
		}
	case BodyJSONPath:
		out.Value = in.JSONPath
	case BodyXPath:
		out.Value = in.XPath
	case BodyJSONSchema:
		out.Value = rawToText(in.JSONSchema)
	default:
		return fmt.Errorf("unknown body type %q", in.Type)
	}
	*b = out
	return nil
}

// textOrRaw embeds v directly when it is valid JSON, otherwise as a string.
func textOrRaw(v string) json.RawMessage {
	if json.Valid([]byte(v)) {
		return json.RawMessage(v)
	}
	quoted, _ := json.Marshal(v)
	return quoted
}

// rawToText unwraps a JSON string, or keeps an embedded document verbatim.
func rawToText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
