package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hugh/projectcamp/internal/access"
	"github.com/hugh/projectcamp/internal/api/handlers"
	"github.com/hugh/projectcamp/internal/api/middleware"
	"github.com/hugh/projectcamp/internal/auth"
	"github.com/hugh/projectcamp/internal/database/models"
	"github.com/hugh/projectcamp/internal/projects"
	"github.com/hugh/projectcamp/internal/storage"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Router struct {
	chi.Router
	limiters []*middleware.RateLimiter
}

// Close stops the rate limiters started by NewRouter.
func (r *Router) Close() {
	for _, l := range r.limiters {
		l.Stop()
	}
}

type RouterConfig struct {
	DB          *gorm.DB
	Redis       *redis.Client
	Logger      *slog.Logger
	JWTService  *auth.JWTService
	AuthService auth.Authenticator
	Projects    *projects.Service
	Store       storage.Store
	Cleaner     projects.BlobCleaner

	// ImagesDir is served under /images/ when attachments are stored locally.
	ImagesDir string

	AllowedOrigins []string // CORS allowed origins
	RateLimitReqs  int      // Rate limit requests per window
	RateLimitSecs  int      // Rate limit window in seconds
	AuthRateLimit  int      // Stricter limit for unauthenticated auth endpoints
	UploadLimit    int      // Per-user limit on task create/update
	RequestTimeout time.Duration
	SecureCookies  bool
}

var (
	anyMember    = []models.Role{}
	adminOnly    = []models.Role{models.RoleAdmin}
	projectAdmin = []models.Role{models.RoleAdmin, models.RoleProjectAdmin}
)

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()
	router := &Router{Router: r}
	newLimiter := func(requests int) *middleware.RateLimiter {
		l := middleware.NewRateLimiter(requests, cfg.RateLimitSecs)
		router.limiters = append(router.limiters, l)
		return l
	}

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))

	// Rate limiting - applied globally to prevent abuse
	if cfg.RateLimitReqs > 0 {
		r.Use(middleware.RateLimit(newLimiter(cfg.RateLimitReqs)))
	}

	// CORS - restrict to configured origins, or allow all in development
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		// Default to localhost for development - configure in production
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Auth-Token"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if cfg.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
	}

	authz := access.NewAuthorizer(cfg.DB)
	scoped := func(roles []models.Role) func(http.Handler) http.Handler {
		return middleware.RequireProjectRole(authz, roles...)
	}

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)
	authHandler := handlers.NewAuthHandler(cfg.AuthService, cfg.JWTService.AccessExpiry(), cfg.JWTService.RefreshExpiry(), cfg.SecureCookies)
	projectHandler := handlers.NewProjectHandler(cfg.Projects)
	memberHandler := handlers.NewMemberHandler(cfg.Projects)
	taskHandler := handlers.NewTaskHandler(cfg.DB, cfg.Store, cfg.Cleaner, cfg.Logger)
	noteHandler := handlers.NewNoteHandler(cfg.DB)

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	if cfg.ImagesDir != "" {
		fileServer := http.FileServer(http.Dir(cfg.ImagesDir))
		r.Handle("/images/*", http.StripPrefix("/images/", fileServer))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthcheck", healthHandler.Healthcheck)

		r.Route("/auth", func(r chi.Router) {
			// Public auth endpoints
			r.Group(func(r chi.Router) {
				if cfg.AuthRateLimit > 0 {
					r.Use(middleware.RateLimit(newLimiter(cfg.AuthRateLimit)))
				}
				r.Post("/register", authHandler.Register)
				r.Post("/login", authHandler.Login)
				r.Post("/refresh-token", authHandler.RefreshToken)
				r.Post("/forgot-password", authHandler.ForgotPassword)
				r.Post("/reset-password/{resetToken}", authHandler.ResetPassword)
				r.Get("/verify-email/{verificationToken}", authHandler.VerifyEmail)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.Auth(cfg.JWTService))
				r.Post("/logout", authHandler.Logout)
				r.Get("/current-user", authHandler.CurrentUser)
				r.Post("/current-user", authHandler.CurrentUser)
				r.Post("/change-password", authHandler.ChangePassword)
				r.Post("/resend-email-verification", authHandler.ResendVerification)
			})
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTService))

			r.Route("/projects", func(r chi.Router) {
				r.Get("/", projectHandler.List)
				r.Post("/", projectHandler.Create)

				r.Route("/{projectId}", func(r chi.Router) {
					r.With(scoped(anyMember)).Get("/", projectHandler.Get)
					r.With(scoped(adminOnly)).Put("/", projectHandler.Update)
					r.With(scoped(adminOnly)).Delete("/", projectHandler.Delete)

					r.With(scoped(anyMember)).Get("/members", memberHandler.List)
					r.With(scoped(adminOnly)).Post("/members", memberHandler.Add)
					r.With(scoped(adminOnly)).Put("/members/{userId}", memberHandler.ChangeRole)
					r.With(scoped(adminOnly)).Delete("/members/{userId}", memberHandler.Remove)
				})
			})

			uploads := func(next http.Handler) http.Handler { return next }
			if cfg.UploadLimit > 0 {
				uploads = middleware.RateLimitByUser(newLimiter(cfg.UploadLimit))
			}

			r.Route("/tasks/{projectId}", func(r chi.Router) {
				r.With(scoped(anyMember)).Get("/", taskHandler.List)
				r.With(uploads, scoped(projectAdmin)).Post("/", taskHandler.Create)

				r.With(scoped(anyMember)).Put("/st/{subTaskId}", taskHandler.UpdateSubtask)
				r.With(scoped(projectAdmin)).Delete("/st/{subTaskId}", taskHandler.DeleteSubtask)

				r.With(scoped(anyMember)).Get("/{taskId}", taskHandler.Get)
				r.With(uploads, scoped(projectAdmin)).Put("/{taskId}", taskHandler.Update)
				r.With(scoped(projectAdmin)).Delete("/{taskId}", taskHandler.Delete)
				r.With(scoped(projectAdmin)).Post("/{taskId}/subtasks", taskHandler.CreateSubtask)
			})

			r.Route("/notes/{projectId}", func(r chi.Router) {
				r.With(scoped(anyMember)).Get("/", noteHandler.List)
				r.With(scoped(adminOnly)).Post("/", noteHandler.Create)
				r.With(scoped(anyMember)).Get("/n/{noteId}", noteHandler.Get)
				r.With(scoped(adminOnly)).Put("/n/{noteId}", noteHandler.Update)
				r.With(scoped(adminOnly)).Delete("/n/{noteId}", noteHandler.Delete)
			})
		})
	})

	return router
}
