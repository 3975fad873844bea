// Package app wires configuration, logging, storage and the tag service
// together for whatever front end drives them.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/tgienger/stmtags/internal/config"
	"github.com/tgienger/stmtags/internal/db"
	"github.com/tgienger/stmtags/internal/tags"
)

// App holds the long-lived collaborators
type App struct {
	DB     *db.DB
	Tags   *tags.Service
	Logger *slog.Logger
}

// Options tweak New; the zero value logs to stderr
type Options struct {
	LogOutput io.Writer
}

// New validates cfg, opens the database and builds the tag service
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := NewLogger(opts.LogOutput, cfg.Log)

	database, err := db.Open(ctx, db.Options{
		Driver:      cfg.Database.Driver,
		Path:        cfg.Database.Path,
		BusyTimeout: time.Duration(cfg.Database.BusyTimeoutMS) * time.Millisecond,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}

	logger.Info("database ready",
		slog.String("driver", cfg.Database.Driver),
		slog.String("path", cfg.Database.Path))

	return &App{
		DB:     database,
		Tags:   tags.NewSQLService(database, tags.Config{Logger: logger}),
		Logger: logger,
	}, nil
}

// Close releases the database
func (a *App) Close() error {
	return a.DB.Close()
}

// NewLogger builds a slog logger for the configured level and format.
// A nil writer means os.Stderr.
func NewLogger(w io.Writer, cfg config.Log) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
