/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ssargent/pinglog/pkg/api"
	"github.com/ssargent/pinglog/pkg/archive"
	"github.com/ssargent/pinglog/pkg/config"
)

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the log inspection API server",
		Long: `Start the REST API that serves the logs in the log directory.

Every route under /api/v1 requires the X-API-Key header. Prometheus metrics are
served on /metrics.

Examples:
  pinglog serve
  pinglog serve --port 9000 --log-dir ./captures
  pinglog serve --with-archive`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtimeFrom(cmd)
			if err != nil {
				return err
			}
			cfg := rt.cfg
			if cmd.Flags().Changed("port") {
				cfg.Server.Port, _ = cmd.Flags().GetInt("port")
			}
			if cmd.Flags().Changed("bind") {
				cfg.Server.Bind, _ = cmd.Flags().GetString("bind")
			}
			if cmd.Flags().Changed("api-key") {
				cfg.Server.APIKey, _ = cmd.Flags().GetString("api-key")
			}
			if cmd.Flags().Changed("log-dir") {
				cfg.LogDir, _ = cmd.Flags().GetString("log-dir")
			}
			withArchiveRoutes, _ := cmd.Flags().GetBool("with-archive")

			apiKey, err := resolveAPIKey(cfg.Server.APIKey)
			if err != nil {
				return err
			}
			if apiKey != cfg.Server.APIKey {
				fmt.Fprintf(cmd.OutOrStdout(), "Generated API key for this run: %s\n", apiKey)
			}

			serverConfig := api.ServerConfig{
				Bind:                cfg.Server.Bind,
				Port:                cfg.Server.Port,
				APIKey:              apiKey,
				LogDir:              cfg.LogDir,
				MaxRecoveryAttempts: cfg.Reader.MaxRecoveryAttempts,
				StrictHeader:        cfg.Reader.StrictHeader,
				Logger:              &rt.logger,
			}

			if withArchiveRoutes {
				a, err := getContainer().GetArchiveOpener()(archive.Config{Dir: cfg.Archive.Dir, Logger: &rt.logger})
				if err != nil {
					return err
				}
				defer a.Close()
				serverConfig.Archive = a
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on %s:%d (metrics on /metrics)\n",
				cfg.LogDir, cfg.Server.Bind, cfg.Server.Port)
			starter := getContainer().GetServerFactory().CreateServerStarter()
			return starter.StartServer(ctx, serverConfig)
		},
	}

	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().String("bind", "127.0.0.1", "Address to bind to")
	serveCmd.Flags().String("api-key", "", "API key for the /api/v1 routes (default from configuration)")
	serveCmd.Flags().String("log-dir", "", "Directory of logs to serve (default from configuration)")
	serveCmd.Flags().Bool("with-archive", false, "Also serve the archive routes")
	return serveCmd
}

// resolveAPIKey generates a key when the configuration asks for one
func resolveAPIKey(configured string) (string, error) {
	if configured != "" && configured != "auto" {
		return configured, nil
	}
	return config.GenerateSecureKey(32)
}
