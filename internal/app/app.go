// Package app orchestrates the lifecycle of the groupsift service
// components: the HTTP server and the task scheduler.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/benzvi/groupsift/internal/api"
	"github.com/benzvi/groupsift/internal/scheduler"
)

// App runs the service components and handles graceful shutdown.
type App struct {
	logger    *slog.Logger
	server    *api.Server
	scheduler *scheduler.Scheduler
}

// New creates the application orchestrator.
func New(logger *slog.Logger, server *api.Server, sched *scheduler.Scheduler) *App {
	return &App{
		logger:    logger.With("component", "app"),
		server:    server,
		scheduler: sched,
	}
}

// Run starts all components and blocks until the context is cancelled or a
// component fails. Shutdown is graceful in both cases.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("Starting groupsift...")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.server.Run(gCtx); err != nil {
			a.logger.Error("HTTP server failed", "error", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		a.logger.Info("Starting scheduler...")
		if err := a.scheduler.Start(); err != nil {
			a.logger.Error("Failed to start scheduler", "error", err)
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()
		a.logger.Info("Shutdown signal received, stopping scheduler...")

		if err := a.scheduler.Stop(); err != nil {
			a.logger.Error("Error stopping scheduler", "error", err)
		}

		return nil
	})

	a.logger.Info("groupsift running. Waiting for shutdown signal or error...")
	err := g.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("groupsift stopped due to error", "error", err)
		return err
	}

	a.logger.Info("groupsift stopped gracefully.")
	return nil
}
