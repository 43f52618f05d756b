/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ssargent/pinglog/pkg/config"
)

func newInitCmd() *cobra.Command {
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a pinglog configuration",
		Long: `Create a configuration file with a generated API key for the inspection server.

This command will:
- Write the configuration file (default ~/.config/pinglog/config.yaml)
- Create the log directory

Examples:
  pinglog init
  pinglog init --log-dir ./captures
  pinglog init --config ./pinglog.yaml --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtimeFrom(cmd)
			if err != nil {
				return err
			}
			logDir, _ := cmd.Flags().GetString("log-dir")
			force, _ := cmd.Flags().GetBool("force")
			out := cmd.OutOrStdout()

			if config.ConfigExists(rt.configPath) && !force {
				fmt.Fprintf(out, "Configuration already exists at %s. Use --force to overwrite.\n", rt.configPath)
				return nil
			}

			cfg, err := config.BootstrapConfig(rt.configPath, logDir)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.LogDir, 0750); err != nil {
				return fmt.Errorf("failed to create log directory: %w", err)
			}

			rt.logger.Info().Str("config", rt.configPath).Str("log_dir", cfg.LogDir).Msg("configuration created")
			fmt.Fprintf(out, "Configuration written to %s\n", rt.configPath)
			fmt.Fprintf(out, "Log directory: %s\n", cfg.LogDir)
			fmt.Fprintf(out, "Archive directory: %s\n", cfg.Archive.Dir)
			fmt.Fprintf(out, "API key: %s\n", cfg.Server.APIKey)
			return nil
		},
	}

	initCmd.Flags().String("log-dir", "", "Directory holding sensor logs (default ./logs)")
	initCmd.Flags().Bool("force", false, "Overwrite an existing configuration")
	return initCmd
}
