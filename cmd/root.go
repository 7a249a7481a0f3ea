package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/batsim/app"
	"github.com/kilianp07/batsim/config"
	"github.com/kilianp07/batsim/core/scheduler"
	"github.com/kilianp07/batsim/infra/logger"
)

var (
	cfgPath     string
	cadencePath string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:          "batsim",
	Short:        "Battery circuit and thermal co-simulation",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.Flags().StringVar(&cadencePath, "cadence", "", "tick cadence file overriding simulation.fast_tick_seconds and slow_tick_period")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// loadConfig loads the configuration and applies the logging level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	if err := logger.SetLevel(level); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	return cfg, nil
}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cadencePath != "" {
		cadence, err := scheduler.LoadConfig(cadencePath)
		if err != nil {
			return fmt.Errorf("load cadence: %w", err)
		}
		cadence.SetDefaults()
		if err := cadence.Validate(); err != nil {
			return fmt.Errorf("cadence: %w", err)
		}
		cfg.Simulation.Config = cadence
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}
