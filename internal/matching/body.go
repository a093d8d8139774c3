package matching

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/beevik/etree"
	"github.com/ohler55/ojg/jp"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/getmockd/mockserver/pkg/mock"
)

// MatchBody reports whether actual satisfies the body pattern. A nil
// pattern matches any body, including none.
func (m *Matcher) MatchBody(pattern, actual *mock.Body) (bool, error) {
	if pattern == nil {
		return true, nil
	}

	text := actual.String()
	switch pattern.Type {
	case mock.BodyString, "":
		return pattern.Value == text, nil
	case mock.BodyBinary:
		return bytes.Equal(pattern.Raw, actual.Bytes()), nil
	case mock.BodyRegex:
		re, err := m.strictRegex(pattern.Value)
		if err != nil {
			return false, err
		}
		return re.MatchString(text), nil
	case mock.BodyJSON:
		return matchJSON(pattern.Value, text, pattern.MatchType)
	case mock.BodyJSONPath:
		return matchJSONPath(pattern.Value, text)
	case mock.BodyXPath:
		return matchXPath(pattern.Value, text)
	case mock.BodyJSONSchema:
		return m.matchJSONSchema(pattern.Value, text)
	default:
		return false, fmt.Errorf("%w: unknown body type %q", ErrInvalidPattern, pattern.Type)
	}
}

// matchJSON compares JSON documents. In STRICT mode they must be equal;
// otherwise the actual document may carry extra fields and arrays may be
// in any order.
func matchJSON(expected, actual string, matchType mock.JSONMatchType) (bool, error) {
	var want any
	if err := json.Unmarshal([]byte(expected), &want); err != nil {
		return false, fmt.Errorf("%w: json body: %v", ErrInvalidPattern, err)
	}
	var got any
	if err := json.Unmarshal([]byte(actual), &got); err != nil {
		return false, nil
	}
	if matchType == mock.JSONStrict {
		return reflect.DeepEqual(want, got), nil
	}
	return jsonContains(want, got), nil
}

func jsonContains(want, got any) bool {
	switch w := want.(type) {
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok {
			return false
		}
		for k, wv := range w {
			gv, ok := g[k]
			if !ok || !jsonContains(wv, gv) {
				return false
			}
		}
		return true
	case []any:
		g, ok := got.([]any)
		if !ok || len(g) != len(w) {
			return false
		}
		used := make([]bool, len(g))
	next:
		for _, wv := range w {
			for i, gv := range g {
				if !used[i] && jsonContains(wv, gv) {
					used[i] = true
					continue next
				}
			}
			return false
		}
		return true
	default:
		return reflect.DeepEqual(want, got)
	}
}

// matchJSONPath succeeds when the expression selects at least one value.
func matchJSONPath(expr, actual string) (bool, error) {
	x, err := jp.ParseString(expr)
	if err != nil {
		return false, fmt.Errorf("%w: json path %q: %v", ErrInvalidPattern, expr, err)
	}
	var data any
	if err := json.Unmarshal([]byte(actual), &data); err != nil {
		return false, nil
	}
	return len(x.Get(data)) > 0, nil
}

// matchXPath succeeds when the expression selects an element.
func matchXPath(expr, actual string) (bool, error) {
	path, err := etree.CompilePath(expr)
	if err != nil {
		return false, fmt.Errorf("%w: xpath %q: %v", ErrInvalidPattern, expr, err)
	}
	if strings.TrimSpace(actual) == "" {
		return false, nil
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromString(actual); err != nil {
		return false, nil
	}
	return doc.FindElementPath(path) != nil, nil
}

// matchJSONSchema succeeds when the actual body is JSON valid against the schema.
func (m *Matcher) matchJSONSchema(schema, actual string) (bool, error) {
	compiled, err := m.schema(schema)
	if err != nil {
		return false, err
	}
	var data any
	if err := json.Unmarshal([]byte(actual), &data); err != nil {
		return false, nil
	}
	return compiled.Validate(data) == nil, nil
}

func (m *Matcher) schema(src string) (*jsonschema.Schema, error) {
	if v, ok := m.schemas.Load(src); ok {
		return v.(*jsonschema.Schema), nil
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("schema.json", strings.NewReader(src)); err != nil {
		return nil, fmt.Errorf("%w: json schema: %v", ErrInvalidPattern, err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("%w: json schema: %v", ErrInvalidPattern, err)
	}
	m.schemas.Store(src, compiled)
	return compiled, nil
}
