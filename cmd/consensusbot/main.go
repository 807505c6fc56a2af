// Command consensusbot produces multi-agent consensus predictions for football
// fixtures, settles them and user coupons against final scores, and serves
// the results over HTTP and WebSocket.
//
// Usage:
//
//	consensusbot -config config.toml [-mode full] [-check]
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/consensusbot/internal/app"
	"github.com/alanyoungcy/consensusbot/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.toml", "path to configuration file (empty for defaults)")
	mode := flag.String("mode", "", "override the configured mode: consensus, settle, server or full")
	check := flag.Bool("check", false, "validate the configuration and exit")
	flag.Parse()

	// The level is raised or lowered once the config is known.
	var level slog.LevelVar
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		return 1
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level.Set(slog.LevelInfo)
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		return 2
	}
	logger.Debug("active configuration", slog.Any("config", config.RedactedConfig(cfg)))
	if *check {
		logger.Info("configuration ok", slog.String("mode", cfg.Mode))
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg, logger)
	defer application.Close()

	logger.Info("consensus bot starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)
	if err := application.Run(ctx); err != nil {
		logger.Error("application exited with error", slog.String("error", err.Error()))
		return 1
	}
	logger.Info("consensus bot stopped")
	return 0
}
