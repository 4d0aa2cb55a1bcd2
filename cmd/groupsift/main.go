// Package main contains the entrypoint for the groupsift service.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benzvi/groupsift/internal/api"
	"github.com/benzvi/groupsift/internal/app"
	"github.com/benzvi/groupsift/internal/classifier"
	"github.com/benzvi/groupsift/internal/config"
	"github.com/benzvi/groupsift/internal/database"
	"github.com/benzvi/groupsift/internal/ingest"
	"github.com/benzvi/groupsift/internal/logger"
	"github.com/benzvi/groupsift/internal/notify"
	"github.com/benzvi/groupsift/internal/scheduler"
	"github.com/benzvi/groupsift/internal/scheduler/tasks"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes all components (config, logger, db, classifier, notifier,
// pipeline, server, scheduler), handles graceful shutdown, and returns an
// exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	var classifierClient classifier.Client
	if cfg.Gemini.APIKey == "" {
		log.Warn("No Gemini API key configured, classification disabled")
	} else {
		classifierClient, err = classifier.NewGeminiClient(ctx, cfg.Gemini, log)
		if err != nil {
			log.Error("Failed to initialize Gemini client", "error", err)
			return 1
		}
	}

	notifier, err := notify.New(cfg.Notifier, log)
	if err != nil {
		log.Error("Failed to initialize notifier", "error", err)
		return 1
	}
	if notifier == nil {
		log.Warn("No notification channel configured, notifications disabled")
	}

	pipeline := ingest.New(cfg.Ingest, store, classifierClient, cfg.Gemini.Timeout, notifier, log)
	server := api.NewServer(cfg.Server, log, pipeline, store)

	tDeps := tasks.TaskDeps{
		Logger: log,
		Store:  store,
		Config: cfg,
	}
	sched, err := scheduler.NewScheduler(log, cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	application := app.New(log, server, sched)

	log.Info("Starting service...")
	runErr := application.Run(ctx)
	log.Info("Service run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Service stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Service stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
