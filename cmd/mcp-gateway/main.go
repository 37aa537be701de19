// Command mcp-gateway multiplexes many MCP backend servers behind a single
// HTTP endpoint. Grounded on the teacher's cmd/metatools/main.go, reduced to
// the thin cobra.Execute() entry point the teacher itself used.
package main

import (
	"fmt"
	"os"

	"github.com/jonwraymond/mcp-gateway/cmd/mcp-gateway/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
