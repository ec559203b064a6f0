package telemetry

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	envEndpoint    = "RESTMAN_OTEL_ENDPOINT"
	envInsecure    = "RESTMAN_OTEL_INSECURE"
	envService     = "RESTMAN_OTEL_SERVICE"
	envVersion     = "RESTMAN_OTEL_VERSION"
	envDialTimeout = "RESTMAN_OTEL_DIAL_TIMEOUT"
	envHeaders     = "RESTMAN_OTEL_HEADERS"
)

const defaultServiceName = "restman"

type Config struct {
	Endpoint    string
	Insecure    bool
	ServiceName string
	Version     string
	DialTimeout time.Duration
	Headers     map[string]string
}

// Enabled reports whether spans should leave the process. A recorder-only
// instrumenter can still be built through options when disabled.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

// ConfigFromEnv reads the RESTMAN_OTEL_* variables through the supplied
// getenv so tests can feed a map instead of the process environment.
func ConfigFromEnv(getenv func(string) string) Config {
	cfg := Config{
		Endpoint:    strings.TrimSpace(getenv(envEndpoint)),
		ServiceName: strings.TrimSpace(getenv(envService)),
		Version:     strings.TrimSpace(getenv(envVersion)),
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}

	if raw := strings.TrimSpace(getenv(envInsecure)); raw != "" {
		if insecure, err := strconv.ParseBool(raw); err == nil {
			cfg.Insecure = insecure
		}
	}
	if raw := strings.TrimSpace(getenv(envDialTimeout)); raw != "" {
		if timeout, err := time.ParseDuration(raw); err == nil && timeout > 0 {
			cfg.DialTimeout = timeout
		}
	}
	if headers, err := ParseHeaders(getenv(envHeaders)); err == nil {
		cfg.Headers = headers
	}
	return cfg
}

// ParseHeaders splits "k1=v1, k2=v2" into a header map. Blank input yields
// a nil map rather than an empty one.
func ParseHeaders(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, found := strings.Cut(pair, "=")
		if !found {
			return nil, fmt.Errorf("malformed header pair %q", pair)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("malformed header pair %q", pair)
		}
		headers[key] = strings.TrimSpace(value)
	}
	if len(headers) == 0 {
		return nil, nil
	}
	return headers, nil
}
