package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variables read by ApplyEnv.
const (
	EnvPorts               = "MOCKSERVER_PORTS"
	EnvLogLevel            = "MOCKSERVER_LOG_LEVEL"
	EnvLogFormat           = "MOCKSERVER_LOG_FORMAT"
	EnvLogPushURL          = "MOCKSERVER_LOG_PUSH_URL"
	EnvMaxLogEntries       = "MOCKSERVER_MAX_LOG_ENTRIES"
	EnvForwardTimeout      = "MOCKSERVER_FORWARD_TIMEOUT"
	EnvInitializationFiles = "MOCKSERVER_INITIALIZATION_FILES"
	EnvTLS                 = "MOCKSERVER_TLS"
	EnvTLSCertFile         = "MOCKSERVER_TLS_CERT_FILE"
	EnvTLSKeyFile          = "MOCKSERVER_TLS_KEY_FILE"
	EnvMetricsPort         = "MOCKSERVER_METRICS_PORT"
)

// ApplyEnv overrides fields from MOCKSERVER_* environment variables.
func (c *ServerConfiguration) ApplyEnv() error {
	return c.ApplyEnvFrom(os.LookupEnv)
}

// ApplyEnvFrom overrides fields using lookup in place of the process
// environment. Lists are comma separated.
func (c *ServerConfiguration) ApplyEnvFrom(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvPorts); ok && v != "" {
		ports, err := ParsePorts(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPorts, err)
		}
		c.Ports = ports
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvLogFormat); ok && v != "" {
		c.LogFormat = v
	}
	if v, ok := lookup(EnvLogPushURL); ok {
		c.LogPushURL = v
	}
	if v, ok := lookup(EnvMaxLogEntries); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %q is not a number", EnvMaxLogEntries, v)
		}
		c.MaxLogEntries = n
	}
	if v, ok := lookup(EnvForwardTimeout); ok && v != "" {
		d, err := ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvForwardTimeout, err)
		}
		c.ForwardTimeout = d
	}
	if v, ok := lookup(EnvInitializationFiles); ok && v != "" {
		c.InitializationFiles = splitList(v)
	}
	if v, ok := lookup(EnvTLS); ok && v != "" {
		enabled, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %q is not a boolean", EnvTLS, v)
		}
		c.TLS.Enabled = enabled
	}
	if v, ok := lookup(EnvTLSCertFile); ok {
		c.TLS.CertFile = v
	}
	if v, ok := lookup(EnvTLSKeyFile); ok {
		c.TLS.KeyFile = v
	}
	// Setting a metrics port enables the metrics listener.
	if v, ok := lookup(EnvMetricsPort); ok && v != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: invalid port %q", EnvMetricsPort, v)
		}
		c.Metrics = MetricsConfig{Enabled: true, Port: port}
	}
	return nil
}

// ParsePorts reads a comma separated port list such as "1080,1081".
func ParsePorts(s string) ([]int, error) {
	var ports []int
	for _, part := range splitList(s) {
		p, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid port %q", part)
		}
		ports = append(ports, p)
	}
	return ports, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
