package config

import (
	"testing"
)

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("MCP_GW_TEST_TOKEN", "secret123")

	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"braced form", "Bearer ${MCP_GW_TEST_TOKEN}", "Bearer secret123"},
		{"bare form", "Bearer $MCP_GW_TEST_TOKEN", "Bearer secret123"},
		{"unresolved passes through verbatim", "${MCP_GW_DOES_NOT_EXIST}", "${MCP_GW_DOES_NOT_EXIST}"},
		{"no variable", "plain string", "plain string"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := expandEnvVars(tc.input)
			if got != tc.want {
				t.Fatalf("expandEnvVars(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestExpandStringFields_WalksNestedStructures(t *testing.T) {
	t.Setenv("MCP_GW_TEST_HOST", "backend.internal")

	in := map[string]any{
		"http_url": "https://${MCP_GW_TEST_HOST}/mcp",
		"headers": map[string]any{
			"X-Host": "$MCP_GW_TEST_HOST",
		},
		"args": []any{"--host=${MCP_GW_TEST_HOST}"},
	}

	out := expandStringFields(in).(map[string]any)
	if out["http_url"] != "https://backend.internal/mcp" {
		t.Fatalf("http_url not expanded: %v", out["http_url"])
	}
	headers := out["headers"].(map[string]any)
	if headers["X-Host"] != "backend.internal" {
		t.Fatalf("nested header not expanded: %v", headers["X-Host"])
	}
	args := out["args"].([]any)
	if args[0] != "--host=backend.internal" {
		t.Fatalf("list element not expanded: %v", args[0])
	}
}
