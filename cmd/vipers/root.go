package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vipers-surveillance/vipers/internal/config"
	"github.com/vipers-surveillance/vipers/internal/eventlog"
	"github.com/vipers-surveillance/vipers/internal/logger"
)

// Version is the application version.
const Version = "0.3.0"

var (
	// cfg is loaded once in PersistentPreRunE and shared by subcommands.
	cfg config.Config

	configPath string
	logLevel   string
	logColor   bool
	opsLog     string
	logPath    string
)

var rootCmd = &cobra.Command{
	Use:           "vipers",
	Short:         "Drone and webcam surveillance with cascade detection",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		if cmd.Flags().Changed("event-log") {
			cfg.LogPath = logPath
		}

		level, err := logger.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logger.InitWithOptions(logger.Options{
			Level:      level,
			Output:     os.Stderr,
			UseColor:   logColor,
			File:       opsLog,
			MaxSizeMB:  20,
			MaxBackups: 3,
		})
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Close()
	},
}

// Execute runs the root command with a context cancelled by SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "YAML configuration file")
	pf.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error, silent)")
	pf.BoolVar(&logColor, "log-color", true, "Enable colored log output")
	pf.StringVar(&opsLog, "ops-log", "", "Also write operational logs to this rotating file")
	pf.StringVar(&logPath, "event-log", "", "Event log path (overrides log_path)")
}

func openEventLog() *eventlog.Log {
	return eventlog.New(cfg.LogPath)
}
