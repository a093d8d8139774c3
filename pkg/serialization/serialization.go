// Package serialization converts control-plane payloads between JSON and
// the data model.
package serialization

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/getmockd/mockserver/pkg/mock"
)

// ErrInvalidPayload is returned when a payload cannot be deserialized.
var ErrInvalidPayload = errors.New("invalid payload")

// Ports is the body of /status and /bind.
type Ports struct {
	Ports []int `json:"ports"`
}

func isBlank(data []byte) bool {
	return len(bytes.TrimSpace(data)) == 0
}

func invalid(what string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, what, err)
}

// DeserializeRequest reads a request pattern. A blank payload yields nil,
// which matches every request.
func DeserializeRequest(data []byte) (*mock.HTTPRequest, error) {
	if isBlank(data) {
		return nil, nil
	}
	var req mock.HTTPRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, invalid("request", err)
	}
	return &req, nil
}

// DeserializeExpectations reads a single expectation object or an array of them.
func DeserializeExpectations(data []byte) ([]*mock.Expectation, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: expectation: empty body", ErrInvalidPayload)
	}

	if data[0] == '[' {
		var list []*mock.Expectation
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, invalid("expectation", err)
		}
		for i, e := range list {
			if e == nil {
				return nil, fmt.Errorf("%w: expectation %d is null", ErrInvalidPayload, i)
			}
			if err := validateExpectation(e); err != nil {
				return nil, err
			}
		}
		return list, nil
	}

	e := &mock.Expectation{}
	if err := json.Unmarshal(data, e); err != nil {
		return nil, invalid("expectation", err)
	}
	if err := validateExpectation(e); err != nil {
		return nil, err
	}
	return []*mock.Expectation{e}, nil
}

func validateExpectation(e *mock.Expectation) error {
	if e.Times.RemainingTimes < 0 {
		return fmt.Errorf("%w: negative remainingTimes", ErrInvalidPayload)
	}
	if _, err := e.TimeToLive.ExpiresAt(time.Now()); err != nil {
		return invalid("timeToLive", err)
	}
	if cb, ok := e.Action().(*mock.HTTPCallback); ok {
		if err := cb.Validate(); err != nil {
			return invalid("httpCallback", err)
		}
	}
	if fwd, ok := e.Action().(*mock.HTTPForward); ok && fwd.Host == "" {
		return fmt.Errorf("%w: httpForward needs a host", ErrInvalidPayload)
	}
	return nil
}

// DeserializeVerification reads a Verification.
func DeserializeVerification(data []byte) (*mock.Verification, error) {
	if isBlank(data) {
		return nil, fmt.Errorf("%w: verification: empty body", ErrInvalidPayload)
	}
	var v mock.Verification
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, invalid("verification", err)
	}
	return &v, nil
}

// DeserializeVerificationSequence reads a VerificationSequence.
func DeserializeVerificationSequence(data []byte) (*mock.VerificationSequence, error) {
	if isBlank(data) {
		return nil, fmt.Errorf("%w: verification sequence: empty body", ErrInvalidPayload)
	}
	var seq mock.VerificationSequence
	if err := json.Unmarshal(data, &seq); err != nil {
		return nil, invalid("verification sequence", err)
	}
	return &seq, nil
}

// DeserializePorts reads {"ports": [...]}.
func DeserializePorts(data []byte) ([]int, error) {
	if isBlank(data) {
		return nil, fmt.Errorf("%w: ports: empty body", ErrInvalidPayload)
	}
	var p Ports
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, invalid("ports", err)
	}
	for _, port := range p.Ports {
		if port < 0 || port > 65535 {
			return nil, fmt.Errorf("%w: port %d out of range", ErrInvalidPayload, port)
		}
	}
	return p.Ports, nil
}

// DeserializeResponse reads an HTTPResponse, as returned by a callback webhook.
func DeserializeResponse(data []byte) (*mock.HTTPResponse, error) {
	if isBlank(data) {
		return nil, fmt.Errorf("%w: response: empty body", ErrInvalidPayload)
	}
	var resp mock.HTTPResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, invalid("response", err)
	}
	return &resp, nil
}

// Serialize renders v as indented JSON.
func Serialize(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serializing: %w", err)
	}
	return data, nil
}

// SerializeRequests renders requests as a JSON array; nil renders as [].
func SerializeRequests(requests []*mock.HTTPRequest) ([]byte, error) {
	if requests == nil {
		requests = []*mock.HTTPRequest{}
	}
	return Serialize(requests)
}

// SerializeExpectations renders expectations as a JSON array; nil renders as [].
func SerializeExpectations(expectations []*mock.Expectation) ([]byte, error) {
	if expectations == nil {
		expectations = []*mock.Expectation{}
	}
	return Serialize(expectations)
}

// SerializePorts renders {"ports": [...]}.
func SerializePorts(ports []int) ([]byte, error) {
	if ports == nil {
		ports = []int{}
	}
	return Serialize(Ports{Ports: ports})
}
