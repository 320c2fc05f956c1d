// Package main is the entry point for the videotube account service.
//
// main only reads configuration, builds the logger and hands both to the
// server package. Everything else lives under internal/.
package main

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sakif/videotube/internal/config"
	"github.com/sakif/videotube/internal/server"
)

func main() {
	// The logger depends on config, so a bad config panics before one exists.
	cfg := config.MustLoad()

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	// Bounds store connection, index creation and AWS config loading.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	srv, err := server.New(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// newLogger builds a text or JSON slog handler at the configured level.
func newLogger(cfg config.Log) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
