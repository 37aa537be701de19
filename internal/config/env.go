package config

import (
	"os"
	"regexp"
)

// envVarPattern matches both ${VAR} and bare $VAR forms, mirroring the
// original mcp_gateway.config.expand_env_vars regex.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars resolves ${VAR} and $VAR references in s against the process
// environment. Per spec §6, unknown variables are passed through verbatim
// rather than erroring or substituting an empty string — this intentionally
// differs from the teacher's stricter fail-on-missing-var loader.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		sub := envVarPattern.FindStringSubmatch(match)
		name := sub[1]
		if name == "" {
			name = sub[2]
		}
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return match
	})
}

// expandStringFields walks a raw decoded YAML document (map[string]any,
// []any, or scalar) and expands environment references in every string leaf.
// Applied before struct decoding so it covers command, http_url, cwd, and the
// env/headers maps uniformly, as the original Python config's field
// validators do per-field.
func expandStringFields(v any) any {
	switch t := v.(type) {
	case string:
		return expandEnvVars(t)
	case map[string]any:
		for k, val := range t {
			t[k] = expandStringFields(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = expandStringFields(val)
		}
		return t
	default:
		return v
	}
}
