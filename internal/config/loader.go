package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envPrefix is the environment-variable prefix consulted for top-level
// overrides, analogous to the teacher's METATOOLS_ prefix.
const envPrefix = "MCPGW_"

// Load reads gateway configuration from an optional YAML file plus
// environment overrides. Precedence: defaults < file < env, matching the
// teacher's internal/config/loader.go layering.
//
// Both "backends:" and "servers:" top-level keys are accepted as aliases for
// the backend map (spec §6).
func Load(path string) (GatewayConfig, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return GatewayConfig{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		raw, err := loadRawFile(path)
		if err != nil {
			return GatewayConfig{}, err
		}

		parser := kyaml.Parser()
		encoded, err := parser.Marshal(raw)
		if err != nil {
			return GatewayConfig{}, fmt.Errorf("re-encode config %q: %w", path, err)
		}
		if err := k.Load(rawbytes.Provider(encoded), parser); err != nil {
			return GatewayConfig{}, fmt.Errorf("load file %q: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		trimmed := strings.TrimPrefix(s, envPrefix)
		return strings.ToLower(strings.ReplaceAll(trimmed, "_", "."))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return GatewayConfig{}, fmt.Errorf("load env: %w", err)
	}

	var cfg GatewayConfig
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &cfg,
		},
	}); err != nil {
		return GatewayConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return GatewayConfig{}, err
	}
	return cfg, nil
}

// loadRawFile reads path, parses it as YAML into a raw map, resolves the
// backends/servers alias, fills per-backend defaults, and expands ${VAR}/$VAR
// references in every string leaf.
func loadRawFile(path string) (map[string]any, error) {
	// #nosec G304 -- config path is operator-supplied (CLI/env), read intentionally.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file %q: %w", path, err)
	}

	raw, err := kyaml.Parser().Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("parse file %q: %w", path, err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	resolveBackendsAlias(raw)
	applyBackendDefaults(raw)

	expanded := expandStringFields(raw)
	out, ok := expanded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("config %q: top-level document must be a mapping", path)
	}
	return out, nil
}

// resolveBackendsAlias copies raw["servers"] into raw["backends"] when the
// latter is absent, per spec §6 ("Both backends: and servers: ... are
// accepted as aliases").
func resolveBackendsAlias(raw map[string]any) {
	if _, hasBackends := raw["backends"]; hasBackends {
		delete(raw, "servers")
		return
	}
	if servers, ok := raw["servers"]; ok {
		raw["backends"] = servers
		delete(raw, "servers")
	}
}

// applyBackendDefaults fills idle_timeout/enabled/env/headers defaults into
// each backend entry that omits them, and stamps the map key in as "name" so
// downstream error messages can name the offending backend.
func applyBackendDefaults(raw map[string]any) {
	backendsAny, ok := raw["backends"]
	if !ok {
		return
	}
	backends, ok := backendsAny.(map[string]any)
	if !ok {
		return
	}
	for name, entryAny := range backends {
		entry, ok := entryAny.(map[string]any)
		if !ok {
			continue
		}
		entry["name"] = name
		if _, set := entry["idle_timeout"]; !set {
			entry["idle_timeout"] = DefaultIdleTimeoutSeconds
		}
		if _, set := entry["enabled"]; !set {
			entry["enabled"] = true
		}
		if _, set := entry["env"]; !set {
			entry["env"] = map[string]any{}
		}
		if _, set := entry["headers"]; !set {
			entry["headers"] = map[string]any{}
		}
		backends[name] = entry
	}
	raw["backends"] = backends
}
