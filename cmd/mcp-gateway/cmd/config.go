package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/mcp-gateway/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage gateway configuration",
	}
	cmd.AddCommand(newConfigValidateCmd())
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a gateway configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "config is valid: %d backend(s) configured, %d enabled\n",
				len(cfg.Backends), len(cfg.EnabledBackends()))
			return err
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}
