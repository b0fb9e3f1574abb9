package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lumenforge/dimmerd/internal/config"
	"github.com/lumenforge/dimmerd/internal/node"
)

const defaultConfigPath = "config/dimmerd.yaml"

var (
	configPath string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:     "dimmerd",
	Short:   "Mains-AC multi-channel TRIAC dimmer node daemon",
	Version: "0.1.0",
	RunE:    run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func run(cmd *cobra.Command, args []string) error {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Info("starting dimmer node", "device_id", cfg.DeviceID, "channels", cfg.Channels, "config", configPath)

	n, err := node.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("build node: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- n.Run(ctx)
	}()

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
		select {
		case <-errCh:
		case <-time.After(10 * time.Second):
			logger.Warn("node did not shut down within the grace period")
		}
	case err := <-errCh:
		if err != nil {
			logger.Error("node stopped with error", "error", err)
			return err
		}
	}

	logger.Info("dimmer node stopped")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
