package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/autoguides/contentfix/internal/app"
	"github.com/autoguides/contentfix/internal/config"
	"github.com/autoguides/contentfix/internal/logging"
	"github.com/autoguides/contentfix/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting contentfix")

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialise pipeline: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("failed to release resources", "error", err)
		}
	}()

	// Non-fatal so the admin API still comes up when a migration is broken
	applied, err := a.Migrate(ctx)
	if err != nil {
		logger.Warn("failed to run migrations, continuing anyway", "error", err)
	} else if applied > 0 {
		logger.Info("migrations applied", "count", applied)
	}

	srv := server.New(cfg.Server, logger, a.Handler())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		a.Scheduler.Start(gctx)
		return nil
	})

	logger.Info("contentfix started", "url", fmt.Sprintf("http://localhost:%s", cfg.Server.Port))
	return g.Wait()
}
