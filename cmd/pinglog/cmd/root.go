/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ssargent/pinglog/pkg/config"
	"github.com/ssargent/pinglog/pkg/di"
	"github.com/ssargent/pinglog/pkg/logging"
	"github.com/ssargent/pinglog/pkg/store"
)

var container *di.Container

// SetContainer injects the dependency container used by the commands
func SetContainer(c *di.Container) {
	container = c
}

func getContainer() *di.Container {
	if container == nil {
		container = di.NewContainer()
	}
	return container
}

type runtimeKey struct{}

// runtime is what every command gets from the root: configuration and a logger
type runtime struct {
	configPath string
	cfg        *config.Config
	logger     zerolog.Logger
}

func runtimeFrom(cmd *cobra.Command) (*runtime, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtime)
	if !ok {
		return nil, errors.New("runtime not found in command context")
	}
	return rt, nil
}

// readerConfig builds a log reader configuration for path
func (rt *runtime) readerConfig(path string) store.LogReaderConfig {
	return store.LogReaderConfig{
		FilePath:            path,
		MaxRecoveryAttempts: rt.cfg.Reader.MaxRecoveryAttempts,
		StrictHeader:        rt.cfg.Reader.StrictHeader,
		Logger:              &rt.logger,
	}
}

// writerConfig builds a log writer configuration for path
func (rt *runtime) writerConfig(path string) store.LogWriterConfig {
	return store.LogWriterConfig{
		FilePath:   path,
		BufferSize: rt.cfg.Writer.BufferSize,
		Logger:     &rt.logger,
	}
}

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pinglog",
		Short: "pinglog - PingViewer sensor log toolkit",
		Long: `pinglog decodes, repairs and re-encodes PingViewer sensor binary logs.

Logs damaged by truncation or corrupted length fields are resynchronized on
the next timestamp, and the bytes skipped are reported.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			level, _ := cmd.Flags().GetString("log-level")

			cfg := config.DefaultConfig()
			if config.ConfigExists(configPath) {
				loaded, err := config.LoadConfig(configPath)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				cfg = loaded
			}
			if level != "" {
				cfg.Logging.Level = level
			}

			logger, err := logging.New(logging.Options{
				App:    "pinglog",
				Level:  cfg.Logging.Level,
				Out:    cmd.ErrOrStderr(),
				Global: true,
			})
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(context.WithValue(ctx, runtimeKey{}, &runtime{
				configPath: configPath,
				cfg:        cfg,
				logger:     logger,
			}))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringP("config", "c", config.GetDefaultConfigPath(), "Path to the configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); overrides the configuration")

	rootCmd.AddCommand(
		newInitCmd(),
		newHeaderCmd(),
		newDecodeCmd(),
		newReprocessCmd(),
		newArchiveCmd(),
		newServeCmd(),
	)
	return rootCmd
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
