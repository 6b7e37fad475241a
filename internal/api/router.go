// Package api wires together all HTTP routes for the model registry.
//
// Route grouping:
//   - /health, /healthz, /ready and /version are unauthenticated.
//   - POST /v1/users/register is public and carries its own stricter rate limit.
//   - Catalog and account routes under /v1 require an x-api-key.
//   - /v1/admin accepts the operator admin token or the key of an admin user, and every
//     mutation there is shipped to the audit log.
//   - /v1/objects serves signed local-storage URLs; the signature is the credential.
//
// Repository ids may contain a slash, so the catalog routes take the rest of the path
// as a catch-all and split it in the handlers.
package api

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/model-registry/model-registry/internal/api/admin"
	"github.com/model-registry/model-registry/internal/api/catalog"
	"github.com/model-registry/model-registry/internal/api/objects"
	"github.com/model-registry/model-registry/internal/api/users"
	"github.com/model-registry/model-registry/internal/audit"
	"github.com/model-registry/model-registry/internal/auth"
	"github.com/model-registry/model-registry/internal/config"
	"github.com/model-registry/model-registry/internal/db/repositories"
	"github.com/model-registry/model-registry/internal/middleware"
	"github.com/model-registry/model-registry/internal/services"
	"github.com/model-registry/model-registry/internal/storage"
	"github.com/model-registry/model-registry/internal/validation"
)

// Version is the build version reported by GET /version. It is set with
// -ldflags "-X github.com/model-registry/model-registry/internal/api.Version=...".
var Version = "dev"

// BackgroundServices holds resources that must be released during graceful shutdown.
// The caller (cmd/server) calls Shutdown after the HTTP server has drained.
type BackgroundServices struct {
	rateLimiters []middleware.Limiter
	recorder     *services.Recorder
}

// Shutdown stops the rate limiters and waits for in-flight usage writes
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.recorder != nil {
		bg.recorder.Wait()
	}
	slog.Info("all background services stopped")
}

// Services are the domain services behind the HTTP handlers. cmd/server builds them
// once with NewServices and hands them to NewRouter; the manifest export job reuses
// the same Catalog and ModelRepository.
type Services struct {
	Credentials *services.CredentialStore
	Grants      *services.GrantTable
	Policy      *auth.Policy
	Models      *repositories.ModelRepository
	Locator     *services.Locator
	Issuer      *services.URLIssuer
	Catalog     *services.Catalog
	Recorder    *services.Recorder
	Reporter    *services.Reporter
}

// NewServices builds the domain services over one database handle and storage backend
func NewServices(cfg *config.Config, db *sql.DB, store storage.Storage, shipper audit.Shipper) *Services {
	dbx := sqlx.NewDb(db, "postgres")
	logs := repositories.NewAccessLogRepository(dbx)
	userRepo := repositories.NewUserRepository(db)

	grants := services.NewGrantTable(dbx)
	locator := services.NewLocator(repositories.NewFileRepository(db), cfg.Registry.ObjectNamespace, cfg.Registry.OverrideTargets)
	issuer := services.NewURLIssuer(store)

	return &Services{
		Credentials: services.NewCredentialStore(db, cfg.Auth.APIKeys.Prefix),
		Grants:      grants,
		Policy:      auth.NewPolicy(grants.Lookup()),
		Models:      repositories.NewModelRepository(db),
		Locator:     locator,
		Issuer:      issuer,
		Catalog:     services.NewCatalog(locator, issuer),
		Recorder:    services.NewRecorder(logs, shipper, cfg.Usage.RecordTimeout),
		Reporter:    services.NewReporter(logs, userRepo, cfg.Usage.DefaultWindowDays, cfg.Usage.MaxWindowDays),
	}
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB, store storage.Storage, shipper audit.Shipper, svc *Services) (*gin.Engine, *BackgroundServices, error) {
	if err := validation.RegisterWithGin(); err != nil {
		return nil, nil, fmt.Errorf("failed to register validators: %w", err)
	}

	bg := &BackgroundServices{recorder: svc.Recorder}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.LoggerMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.Security.CORS))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig(cfg.Security.TLS)))

	if cfg.Security.RateLimiting.Enabled {
		limiter, err := middleware.NewLimiter(cfg.Security.RateLimiting)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize rate limiter: %w", err)
		}
		bg.rateLimiters = append(bg.rateLimiters, limiter)
		router.Use(middleware.RateLimitMiddleware(limiter))
	}

	router.GET("/health", healthCheckHandler(db))
	router.GET("/healthz", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, store))
	router.GET("/version", versionHandler())

	userHandlers := users.NewHandlers(cfg, svc.Credentials, svc.Reporter)
	catalogHandlers := catalog.NewHandlers(cfg, catalog.Deps{
		Models:   svc.Models,
		Policy:   svc.Policy,
		Files:    svc.Catalog,
		Resolver: svc.Locator,
		Issuer:   svc.Issuer,
		Usage:    svc.Recorder,
	})

	v1 := router.Group("/v1")

	// Self-registration (public, strict per-client limit)
	registerLimiter, err := newRegisterLimiter(cfg.Security.RateLimiting)
	if err != nil {
		return nil, nil, err
	}
	bg.rateLimiters = append(bg.rateLimiters, registerLimiter)
	v1.POST("/users/register", middleware.RateLimitMiddleware(registerLimiter), userHandlers.Register())

	// User and catalog endpoints (API key required)
	authenticated := v1.Group("")
	authenticated.Use(middleware.APIKeyAuth(svc.Credentials))
	{
		authenticated.POST("/users/rotate-key", userHandlers.RotateKey())
		authenticated.GET("/users/me", userHandlers.Me())
		authenticated.GET("/users/me/usage", userHandlers.MyUsage())

		authenticated.GET("/models", catalogHandlers.ListModels())
		authenticated.GET("/models/*path", catalogHandlers.ModelRoutes())
		authenticated.GET("/manifest/*path", catalogHandlers.Manifest())
		authenticated.GET("/files/*path", catalogHandlers.Download())
		authenticated.GET("/changes", catalogHandlers.Changes())
	}

	// Admin endpoints (admin token or admin user, audited)
	verifier := auth.NewAdminVerifier(cfg.Auth.AdminToken, cfg.Auth.AdminTokenHash)
	adminUsers := admin.NewUserHandlers(svc.Credentials)
	adminGrants := admin.NewGrantHandlers(svc.Grants)
	adminUsage := admin.NewUsageHandlers(svc.Reporter)
	adminModels := admin.NewModelHandlers(svc.Models, svc.Credentials, svc.Policy)
	adminStats := admin.NewStatsHandler(sqlx.NewDb(db, "postgres"))

	adminGroup := v1.Group("/admin")
	adminGroup.Use(middleware.AdminAuth(verifier, svc.Credentials))
	adminGroup.Use(middleware.AuditMiddleware(shipper))
	{
		adminGroup.GET("/usage", adminUsage.UsageHandler())
		adminGroup.GET("/stats", adminStats.GetDashboardStats)

		adminGroup.POST("/users", adminUsers.CreateUserHandler())
		adminGroup.GET("/users", adminUsers.ListUsersHandler())
		adminGroup.GET("/users/:id", adminUsers.GetUserHandler())
		adminGroup.PATCH("/users/:id", adminUsers.UpdateUserHandler())
		adminGroup.POST("/users/:id/rotate-key", adminUsers.ReissueKeyHandler())

		adminGroup.POST("/grants", adminGrants.CreateGrantHandler())
		adminGroup.GET("/grants", adminGrants.ListGrantsHandler())
		adminGroup.DELETE("/grants/:id", adminGrants.RevokeGrantHandler())

		adminGroup.PATCH("/models", adminModels.UpdateModelHandler())
	}

	// Signed object URLs of the local backend
	if signed, ok := store.(objects.SignedStore); ok {
		v1.GET("/objects/*key", objects.ServeHandler(signed))
		slog.Info("serving signed object URLs", "path", "/v1/objects")
	}

	return router, bg, nil
}

// newRegisterLimiter shares the register budget across replicas when Redis is configured
func newRegisterLimiter(cfg config.RateLimitingConfig) (middleware.Limiter, error) {
	rl := middleware.RegisterRateLimitConfig()
	if cfg.RedisURL != "" {
		limiter, err := middleware.NewRedisRateLimiter(cfg.RedisURL, rl)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize register rate limiter: %w", err)
		}
		return limiter, nil
	}
	return middleware.NewRateLimiter(rl), nil
}

// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessHandler returns the readiness status of the service.
// Unlike the liveness check (/health), this also checks the storage backend so
// that a readiness gate fails when presigning would error.
func readinessHandler(db *sql.DB, store storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		// Exists on a known-absent key exercises credentials and connectivity
		if _, err := store.Exists(c.Request.Context(), ".readiness-check"); err != nil {
			checks["storage"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "storage backend not ready",
			})
			return
		}
		checks["storage"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler returns the build and API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":         Version,
			"api_version":     "v1",
			"manifest_schema": services.ManifestSchema,
		})
	}
}
