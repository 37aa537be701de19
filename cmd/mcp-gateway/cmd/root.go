// Package cmd wires the gateway's CLI commands, grounded on the teacher's
// cmd/metatools/cmd package (root command plus serve/config subcommands).
package cmd

import (
	"github.com/spf13/cobra"
)

// Version information, set at build time via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// NewRootCmd builds the root command for mcp-gateway.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mcp-gateway",
		Short: "Universal MCP Gateway multiplexing many backend servers behind one endpoint",
		Long: `mcp-gateway sits in front of any number of configured MCP backend servers
(stdio, streamable HTTP, or SSE) and exposes them either path-addressed, one
per backend at /mcp/<name>, or collapsed behind a meta facade at /mcp that
discovers and invokes tools across every backend through four fixed tools.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
