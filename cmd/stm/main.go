package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/tgienger/stmtags/internal/app"
	"github.com/tgienger/stmtags/internal/config"
)

// Version information set via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// main prepares the tag store: it loads configuration, creates or migrates
// the database and reports how many tags it holds. Front ends embed
// internal/app directly.
func main() {
	// Handle version flag
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		fmt.Printf("stm %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if err := config.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading environment: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing database: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	all, err := a.Tags.List(ctx)
	if err != nil {
		a.Logger.Error("listing tags failed", slog.String("error", err.Error()))
		return
	}
	a.Logger.Info("tag store ready", slog.Int("tags", len(all)))
}
