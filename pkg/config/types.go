package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/getmockd/mockserver/pkg/logging"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Duration is a time.Duration that reads from "20s"-style strings or from
// a number of milliseconds.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String implements fmt.Stringer.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// ParseDuration reads "20s"-style strings or bare milliseconds.
func ParseDuration(s string) (Duration, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Duration(time.Duration(ms) * time.Millisecond), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return Duration(d), nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := ParseDuration(s)
		if err != nil {
			return err
		}
		*d = v
		return nil
	}
	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("invalid duration %s", data)
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := ParseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// MatchingConfig tunes request matching.
type MatchingConfig struct {
	// CaseInsensitive makes method and path comparisons ignore case.
	CaseInsensitive bool `json:"caseInsensitive" yaml:"caseInsensitive"`
}

// TLSConfig enables TLS on the bound ports. Secure ports still accept
// plaintext HTTP.
type TLSConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// CertFile and KeyFile are PEM files. When both are empty a
	// self-signed certificate for localhost is generated at startup.
	CertFile string `json:"certFile,omitempty" yaml:"certFile,omitempty"`
	KeyFile  string `json:"keyFile,omitempty" yaml:"keyFile,omitempty"`
}

// MetricsConfig exposes Prometheus metrics on a dedicated port.
type MetricsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Port of the metrics listener. 0 picks a free port.
	Port int `json:"port,omitempty" yaml:"port,omitempty"`
}

// ServerConfiguration defines a mock server process.
type ServerConfiguration struct {
	// Ports to bind at startup. 0 picks a free port.
	Ports []int `json:"ports" yaml:"ports"`
	// LogLevel is the operational log level (debug, info, warn, error).
	LogLevel string `json:"logLevel,omitempty" yaml:"logLevel,omitempty"`
	// LogFormat is text or json.
	LogFormat string `json:"logFormat,omitempty" yaml:"logFormat,omitempty"`
	// LogPushURL ships operational logs to a Loki-compatible endpoint.
	LogPushURL string `json:"logPushUrl,omitempty" yaml:"logPushUrl,omitempty"`
	// MaxLogEntries caps the request log (0 = unbounded).
	MaxLogEntries int `json:"maxLogEntries,omitempty" yaml:"maxLogEntries,omitempty"`
	// MaxBodySize caps decoded request and response bodies in bytes.
	MaxBodySize int64 `json:"maxBodySize,omitempty" yaml:"maxBodySize,omitempty"`
	// ForwardTimeout bounds a forward action.
	ForwardTimeout Duration `json:"forwardTimeout,omitempty" yaml:"forwardTimeout,omitempty"`
	// CallbackTimeout bounds a callback action.
	CallbackTimeout Duration `json:"callbackTimeout,omitempty" yaml:"callbackTimeout,omitempty"`
	// MaxConcurrentForwards bounds outbound calls in flight.
	MaxConcurrentForwards int `json:"maxConcurrentForwards,omitempty" yaml:"maxConcurrentForwards,omitempty"`
	// BinaryMediaTypes are decoded as raw bytes; "image/*" style wildcards allowed.
	BinaryMediaTypes []string `json:"binaryMediaTypes,omitempty" yaml:"binaryMediaTypes,omitempty"`
	// InitializationFiles are glob patterns of expectation files loaded at startup.
	InitializationFiles []string `json:"initializationFiles,omitempty" yaml:"initializationFiles,omitempty"`
	// Matching tunes request matching.
	Matching MatchingConfig `json:"matching" yaml:"matching"`
	// TLS enables TLS on the bound ports.
	TLS TLSConfig `json:"tls" yaml:"tls"`
	// Metrics exposes /metrics on a port of its own.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	// ReadTimeout is the HTTP read timeout.
	ReadTimeout Duration `json:"readTimeout,omitempty" yaml:"readTimeout,omitempty"`
	// WriteTimeout is the HTTP write timeout (0 = none).
	WriteTimeout Duration `json:"writeTimeout,omitempty" yaml:"writeTimeout,omitempty"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout Duration `json:"shutdownTimeout,omitempty" yaml:"shutdownTimeout,omitempty"`
}

// DefaultServerConfiguration returns a ServerConfiguration with default values.
func DefaultServerConfiguration() *ServerConfiguration {
	return &ServerConfiguration{
		Ports:                 []int{1080},
		LogLevel:              "info",
		LogFormat:             "text",
		MaxBodySize:           10 << 20,
		ForwardTimeout:        Duration(20 * time.Second),
		CallbackTimeout:       Duration(20 * time.Second),
		MaxConcurrentForwards: 256,
		ReadTimeout:           Duration(30 * time.Second),
		ShutdownTimeout:       Duration(5 * time.Second),
	}
}

// Validate checks the configuration for values the server cannot run with.
func (c *ServerConfiguration) Validate() error {
	var errs []error
	seen := make(map[int]bool, len(c.Ports))
	for _, p := range c.Ports {
		if p < 0 || p > 65535 {
			errs = append(errs, fmt.Errorf("port %d out of range", p))
			continue
		}
		if p != 0 && seen[p] {
			errs = append(errs, fmt.Errorf("port %d listed twice", p))
		}
		seen[p] = true
	}
	if !logging.ValidLevel(c.LogLevel) {
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if c.MaxLogEntries < 0 {
		errs = append(errs, errors.New("maxLogEntries must not be negative"))
	}
	if c.MaxBodySize < 0 {
		errs = append(errs, errors.New("maxBodySize must not be negative"))
	}
	if c.MaxConcurrentForwards < 0 {
		errs = append(errs, errors.New("maxConcurrentForwards must not be negative"))
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		errs = append(errs, fmt.Errorf("metrics port %d out of range", c.Metrics.Port))
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		errs = append(errs, errors.New("tls certFile and keyFile must be set together"))
	}
	for name, d := range map[string]Duration{
		"forwardTimeout":  c.ForwardTimeout,
		"callbackTimeout": c.CallbackTimeout,
		"readTimeout":     c.ReadTimeout,
		"writeTimeout":    c.WriteTimeout,
		"shutdownTimeout": c.ShutdownTimeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
