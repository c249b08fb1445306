package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hugh/projectcamp/internal/database"
	"github.com/hugh/projectcamp/internal/mail"
	"github.com/hugh/projectcamp/internal/projects"
	"github.com/hugh/projectcamp/internal/storage"
	"github.com/hugh/projectcamp/internal/tasks"
	"github.com/hugh/projectcamp/pkg/config"
	"github.com/hugh/projectcamp/pkg/queue"
	"github.com/hugh/projectcamp/pkg/util"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := util.NewLogger(cfg.Server.Env)
	slog.SetDefault(logger)

	logger.Info("starting projectcamp worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	store, err := storage.New(ctx, &cfg.Storage, cfg.App.ServerURL)
	if err != nil {
		logger.Error("failed to initialize attachment storage", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}

	// Attachments found by the sweep are cleaned up through the queue.
	client := queue.NewClient(&cfg.Redis)
	defer client.Close()
	projectService := projects.NewService(db, tasks.NewEnqueuer(tasks.NewAsynqDispatcher(client)), logger)

	// Create Asynq server
	srv := queue.NewServer(&cfg.Redis, 10, logger)

	// Create task handler
	handler := tasks.NewHandler(logger, mail.New(&cfg.SMTP, logger), store, projectService)
	mux := handler.Mux()

	// Register the orphan sweep
	scheduler := queue.NewScheduler(&cfg.Redis)
	if cfg.Sweep.Cron != "" {
		if _, err := scheduler.Register(cfg.Sweep.Cron, tasks.NewSweepOrphansTask()); err != nil {
			logger.Error("failed to register orphan sweep", "cron", cfg.Sweep.Cron, "error", err)
			os.Exit(1)
		}
		next, _ := util.NextCronTime(cfg.Sweep.Cron, time.Now())
		logger.Info("orphan sweep scheduled", "cron", cfg.Sweep.Cron, "next_run", next)

		if err := scheduler.Start(); err != nil {
			logger.Error("failed to start scheduler", "error", err)
			os.Exit(1)
		}
	}

	// Handle shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down worker...")
		if cfg.Sweep.Cron != "" {
			scheduler.Shutdown()
		}
		srv.Shutdown()
		cancel()
	}()

	logger.Info("worker started, waiting for tasks...")

	// Start the server
	if err := srv.Run(mux); err != nil {
		logger.Error("worker error", "error", err)
	}

	// Wait for context cancellation
	<-ctx.Done()

	if closer, ok := store.(interface{ Close() error }); ok {
		closer.Close()
	}

	// Close database connection
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("worker stopped")
}
