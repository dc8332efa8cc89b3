package main

import (
	"context"
	"log/slog"
	"os"

	"mercora/backend/internal/app"
	"mercora/backend/internal/config"
	"mercora/backend/internal/logger"
	"mercora/backend/internal/retrieval"
)

// openApp wires the full pipeline against the configured backends. Logs go to
// stderr so command output stays machine readable.
func openApp(ctx context.Context) (*app.App, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger.New(os.Stderr, cfg.LogLevel, cfg.LogFormat))

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(cfg, deps.DB, deps.Index, deps.Publisher(),
		app.WithQueryLogger(retrieval.NewQueryLogger(os.Stderr)))
	if err != nil {
		deps.Close()
		return nil, nil, err
	}
	return a, func() {
		a.Close()
		deps.Close()
	}, nil
}
