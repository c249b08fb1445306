package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/projectcamp/internal/api"
	"github.com/hugh/projectcamp/internal/auth"
	"github.com/hugh/projectcamp/internal/database"
	"github.com/hugh/projectcamp/internal/mail"
	"github.com/hugh/projectcamp/internal/projects"
	"github.com/hugh/projectcamp/internal/storage"
	"github.com/hugh/projectcamp/internal/tasks"
	"github.com/hugh/projectcamp/pkg/config"
	"github.com/hugh/projectcamp/pkg/queue"
	"github.com/hugh/projectcamp/pkg/util"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
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

	logger.Info("starting projectcamp server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
	)

	ctx := context.Background()

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.Migrate(ctx, db); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	store, err := storage.New(ctx, &cfg.Storage, cfg.App.ServerURL)
	if err != nil {
		logger.Error("failed to initialize attachment storage", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("failed to connect to Redis, background jobs will run in-process", "error", err)
		redisClient.Close()
		redisClient = nil
	}

	// Background jobs go to the worker through asynq. Without Redis they run
	// in this process; the orphan sweep is left to the worker.
	var (
		asynqClient *asynq.Client
		inline      *tasks.InlineDispatcher
		dispatcher  tasks.Dispatcher
	)
	if redisClient != nil {
		asynqClient = queue.NewClient(&cfg.Redis)
		dispatcher = tasks.NewAsynqDispatcher(asynqClient)
	} else {
		handler := tasks.NewHandler(logger, mail.New(&cfg.SMTP, logger), store, nil)
		inline = tasks.NewInlineDispatcher(handler.Mux(), logger)
		dispatcher = inline
	}
	enqueuer := tasks.NewEnqueuer(dispatcher)

	// Initialize services
	jwtService := auth.NewJWTService(
		cfg.JWT.AccessSecret, cfg.JWT.AccessExpiry(),
		cfg.JWT.RefreshSecret, cfg.JWT.RefreshExpiry(),
	)
	authService := auth.NewService(db, jwtService, enqueuer, auth.Links{
		ServerURL:        cfg.App.ServerURL,
		ResetPasswordURL: cfg.App.ResetPasswordURL,
	}, logger)
	projectService := projects.NewService(db, enqueuer, logger)

	var imagesDir string
	if local, ok := store.(*storage.LocalStore); ok {
		imagesDir = local.Dir()
	}

	// Create router
	router := api.NewRouter(api.RouterConfig{
		DB:             db,
		Redis:          redisClient,
		Logger:         logger,
		JWTService:     jwtService,
		AuthService:    authService,
		Projects:       projectService,
		Store:          store,
		Cleaner:        enqueuer,
		ImagesDir:      imagesDir,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimitReqs:  cfg.RateLimit.Requests,
		RateLimitSecs:  cfg.RateLimit.WindowSeconds,
		AuthRateLimit:  cfg.RateLimit.AuthRequests,
		UploadLimit:    cfg.RateLimit.UploadRequests,
		RequestTimeout: cfg.Server.RequestTimeout(),
		SecureCookies:  !cfg.Server.IsDevelopment(),
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout() + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	router.Close()

	// Let in-process jobs finish
	if inline != nil {
		inline.Wait()
	}

	// Close Asynq client
	if asynqClient != nil {
		asynqClient.Close()
	}

	// Close Redis connection
	if redisClient != nil {
		redisClient.Close()
	}

	if closer, ok := store.(interface{ Close() error }); ok {
		closer.Close()
	}

	// Close database connection
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("server stopped")
}
