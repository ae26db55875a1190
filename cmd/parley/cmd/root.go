package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/parleyhq/parley/internal/app"
	"github.com/parleyhq/parley/internal/config"
)

var (
	configPath string
	debug      bool
)

// Global app instance shared by subcommands
var parleyApp *app.App

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Customer-support chat client",
	Long:  "Parley is the console client for the Parley support chat backend: live conversations with streaming AI responses, human handoff, and admin triage.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if debug {
			cfg.Debug = true
		}
		parleyApp, err = app.New(context.Background(), cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if parleyApp != nil {
			parleyApp.Close()
		}
	},
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}
