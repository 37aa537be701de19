// Package config defines and loads the gateway's configuration model.
package config

import (
	"fmt"
	"strings"
)

// TransportType identifies which wire protocol a backend speaks.
type TransportType string

const (
	TransportStdio TransportType = "stdio"
	TransportHTTP  TransportType = "http"
	TransportSSE   TransportType = "sse"
)

// Default values applied when a BackendConfig/GatewayConfig field is left
// unset in YAML/env.
const (
	DefaultIdleTimeoutSeconds = 300
	DefaultHost               = "127.0.0.1"
	DefaultPort               = 39400
	DefaultHealthCheckSeconds = 30
	DefaultRequestTimeout     = 30
	DefaultLogLevel           = "INFO"
)

// BackendConfig describes a single configured MCP backend. It is immutable
// once constructed by Load; exactly one of Command or HTTPURL must be set.
type BackendConfig struct {
	Name        string            `koanf:"name"`
	Description string            `koanf:"description"`
	Command     string            `koanf:"command"`
	HTTPURL     string            `koanf:"http_url"`
	Env         map[string]string `koanf:"env"`
	Headers     map[string]string `koanf:"headers"`
	Cwd         string            `koanf:"cwd"`
	IdleTimeout float64           `koanf:"idle_timeout"`
	Enabled     bool              `koanf:"enabled"`
}

// TransportType derives the wire transport from the config, per spec §3:
// stdio if Command is set; sse if HTTPURL ends in "/sse"; otherwise http.
func (b BackendConfig) TransportType() TransportType {
	if strings.TrimSpace(b.Command) != "" {
		return TransportStdio
	}
	if strings.HasSuffix(b.HTTPURL, "/sse") {
		return TransportSSE
	}
	return TransportHTTP
}

// Validate enforces the exactly-one-transport invariant.
func (b BackendConfig) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return &InvalidConfigError{Reason: "backend name is required"}
	}
	hasCommand := strings.TrimSpace(b.Command) != ""
	hasHTTP := strings.TrimSpace(b.HTTPURL) != ""
	switch {
	case hasCommand == hasHTTP:
		return &InvalidConfigError{Reason: fmt.Sprintf(
			"backend %q must have exactly one of command or http_url", b.Name)}
	}
	return nil
}

// GatewayConfig is the top-level, validated gateway configuration.
type GatewayConfig struct {
	Host                string                   `koanf:"host"`
	Port                int                      `koanf:"port"`
	EnableMetaMCP       bool                     `koanf:"enable_meta_mcp"`
	LogLevel            string                   `koanf:"log_level"`
	HealthCheckInterval float64                  `koanf:"health_check_interval"`
	RequestTimeout      float64                  `koanf:"request_timeout"`
	Backends            map[string]BackendConfig `koanf:"backends"`
}

// InvalidConfigError reports a structurally invalid configuration
// (spec §3: "violation fails with InvalidConfig").
type InvalidConfigError struct {
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return "invalid config: " + e.Reason
}

// Validate checks port range and delegates to each backend's Validate.
func (c GatewayConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return &InvalidConfigError{Reason: fmt.Sprintf("port %d out of range [1,65535]", c.Port)}
	}
	for name, b := range c.Backends {
		b.Name = name
		if err := b.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// EnabledBackends returns only the backends with Enabled set, keyed by name,
// with Name populated from the map key.
func (c GatewayConfig) EnabledBackends() map[string]BackendConfig {
	out := make(map[string]BackendConfig, len(c.Backends))
	for name, b := range c.Backends {
		if !b.Enabled {
			continue
		}
		b.Name = name
		out[name] = b
	}
	return out
}

// Defaults returns a GatewayConfig populated with the documented defaults
// (spec §3), used as the koanf base layer.
func Defaults() GatewayConfig {
	return GatewayConfig{
		Host:                DefaultHost,
		Port:                DefaultPort,
		EnableMetaMCP:       true,
		LogLevel:            DefaultLogLevel,
		HealthCheckInterval: DefaultHealthCheckSeconds,
		RequestTimeout:      DefaultRequestTimeout,
		Backends:            map[string]BackendConfig{},
	}
}

// BackendDefaults returns the per-backend defaults (spec §3: idle_timeout
// 300s, enabled true) to apply before unmarshalling a raw backend entry.
func BackendDefaults() BackendConfig {
	return BackendConfig{
		IdleTimeout: DefaultIdleTimeoutSeconds,
		Enabled:     true,
		Env:         map[string]string{},
		Headers:     map[string]string{},
	}
}
