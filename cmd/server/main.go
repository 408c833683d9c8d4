// Package main is the entry point for the petadopt auth API.
//
// main only reads configuration, builds the logger, and starts the server.
// Everything else lives in internal/.
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sakif/petadopt/internal/config"
	"github.com/sakif/petadopt/internal/repository/sqldb"
	"github.com/sakif/petadopt/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	// SQLite will not create missing parent directories for its file.
	if cfg.DatabaseDriver == sqldb.DriverSQLite && !strings.Contains(cfg.DatabaseDSN, ":memory:") {
		dbDir := filepath.Dir(cfg.DatabaseDSN)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	if !cfg.Google.Enabled() && !cfg.Facebook.Enabled() {
		logger.Warn("no OAuth provider configured; only password login is available")
	}

	srv, err := server.New(context.Background(), cfg, logger)
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

// newLogger builds a text or JSON slog handler from LOG_FORMAT and LOG_LEVEL.
func newLogger(cfg *config.Config) *slog.Logger {
	level, _ := config.ParseLevel(cfg.LogLevel) // validated by Load
	opts := &slog.HandlerOptions{Level: level}

	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
