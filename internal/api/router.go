// Package api wires together all HTTP routes for the secretdrop backend.
//
// Route grouping philosophy:
//   - Disclosure routes (/v1/secrets/) are intentionally unauthenticated. A
//     recipient follows a shared link without holding an account; the secret's
//     own gates (password, expiry, one-time access) are the access control.
//   - Owner and account routes (/api/v1/) always require a valid JWT.
//
// The disclosure routes carry a stricter rate limit than the rest of the API
// because each view attempt against a protected secret costs a bcrypt
// comparison and is the natural target for password guessing.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/secretdrop/secretdrop/internal/api/admin"
	"github.com/secretdrop/secretdrop/internal/api/disclosure"
	"github.com/secretdrop/secretdrop/internal/audit"
	"github.com/secretdrop/secretdrop/internal/config"
	"github.com/secretdrop/secretdrop/internal/crypto"
	"github.com/secretdrop/secretdrop/internal/db/repositories"
	"github.com/secretdrop/secretdrop/internal/jobs"
	"github.com/secretdrop/secretdrop/internal/middleware"
	"github.com/secretdrop/secretdrop/internal/safego"
	"github.com/secretdrop/secretdrop/internal/secrets"
)

// BackgroundServices holds references to background goroutines and resources
// that must be stopped during graceful shutdown. The caller (cmd/server) is
// responsible for calling Shutdown() when the process receives a termination
// signal.
type BackgroundServices struct {
	rateLimiters []*middleware.RateLimiter
	redisClient  *redis.Client
	purger       *jobs.SecretPurger
	auditShipper audit.Shipper
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.purger != nil {
		bg.purger.Stop()
	}
	if bg.auditShipper != nil {
		if err := bg.auditShipper.Close(); err != nil {
			slog.Warn("failed to close audit shipper", "error", err)
		}
	}
	if bg.redisClient != nil {
		if err := bg.redisClient.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	secretRepo := repositories.NewSecretRepository(sqlx.NewDb(db, "postgres"))

	// Content encryption at rest is opt-in via secrets.encryption_key
	var sealer secrets.Sealer
	if cfg.Secrets.EncryptionKey != "" {
		cipher, err := crypto.NewContentCipherFromHex(cfg.Secrets.EncryptionKey)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid secrets.encryption_key: %w", err)
		}
		sealer = cipher
		slog.Info("secret content encryption at rest enabled")
	}

	lifecycle := secrets.NewLifecycle(secretRepo, secrets.BcryptGuard{}, secrets.Options{
		MaxContentBytes: cfg.Secrets.MaxContentBytes,
		DefaultPageSize: cfg.Secrets.DefaultPageSize,
		MaxPageSize:     cfg.Secrets.MaxPageSize,
		Sealer:          sealer,
	})

	auditShipper, err := buildAuditShipper(&cfg.Audit)
	if err != nil {
		return nil, nil, err
	}

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))
	if auditShipper != nil {
		router.Use(middleware.AuditMiddleware(auditShipper, &cfg.Audit))
	}

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// Readiness check endpoint
	router.GET("/ready", readinessHandler(db))

	// API version
	router.GET("/version", versionHandler())

	// Initialize rate limiters
	authRateLimiter := middleware.NewRateLimiter(middleware.AuthRateLimitConfig())
	generalRateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())

	rateLimiters := []*middleware.RateLimiter{authRateLimiter, generalRateLimiter}

	// The disclosure limiter is Redis-backed when a Redis address is configured
	// so the limit holds across replicas; otherwise it falls back to an
	// in-process token bucket.
	var viewLimit gin.HandlerFunc
	var redisClient *redis.Client
	if cfg.Security.RateLimiting.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Security.RateLimiting.RedisAddr,
			Password: cfg.Security.RateLimiting.RedisPassword,
			DB:       cfg.Security.RateLimiting.RedisDB,
		})
		viewCfg := middleware.ViewRateLimitConfig()
		viewLimit = middleware.RedisRateLimitMiddleware(
			middleware.NewRedisRateLimiter(redisClient, viewCfg.RequestsPerMinute, viewCfg.BurstSize),
		)
		slog.Info("disclosure rate limiting backed by redis", "addr", cfg.Security.RateLimiting.RedisAddr)
	} else {
		viewRateLimiter := middleware.NewRateLimiter(middleware.ViewRateLimitConfig())
		rateLimiters = append(rateLimiters, viewRateLimiter)
		viewLimit = middleware.RateLimitMiddleware(viewRateLimiter)
	}

	// Disclosure endpoints (v1) - public
	// Recipients follow shared links without an account; the secret's own gates
	// are the access control.
	disclosureHandlers := disclosure.NewHandlers(lifecycle)
	v1Secrets := router.Group("/v1/secrets")
	v1Secrets.Use(viewLimit)
	{
		v1Secrets.GET("/:id", disclosureHandlers.GetMeta)
		v1Secrets.POST("/:id/view", disclosureHandlers.View)
	}

	// Initialize owner-facing handlers
	accountHandlers := admin.NewAccountHandlers(cfg, db)
	secretHandlers := admin.NewSecretHandlers(lifecycle)

	// Owner API endpoints
	apiV1 := router.Group("/api/v1")
	{
		// Public authentication endpoints (no auth required, but rate limited)
		authGroup := apiV1.Group("/auth")
		authGroup.Use(middleware.RateLimitMiddleware(authRateLimiter))
		{
			authGroup.POST("/register", accountHandlers.RegisterHandler())
			authGroup.POST("/login", accountHandlers.LoginHandler())
		}

		// Authenticated-only endpoints
		authenticatedGroup := apiV1.Group("")
		authenticatedGroup.Use(middleware.AuthMiddleware(userRepo))
		authenticatedGroup.Use(middleware.RateLimitMiddleware(generalRateLimiter))
		{
			// Account endpoints
			authenticatedGroup.GET("/auth/me", accountHandlers.MeHandler())
			authenticatedGroup.PUT("/auth/profile", accountHandlers.UpdateProfileHandler())
			authenticatedGroup.PUT("/auth/password", accountHandlers.ChangePasswordHandler())

			// Secret management
			secretsGroup := authenticatedGroup.Group("/secrets")
			{
				secretsGroup.POST("", secretHandlers.CreateSecretHandler())
				secretsGroup.GET("", secretHandlers.ListSecretsHandler())
				secretsGroup.GET("/stats", secretHandlers.StatsHandler())
				secretsGroup.GET("/:id", secretHandlers.GetSecretHandler())
				secretsGroup.PUT("/:id", secretHandlers.UpdateSecretHandler())
				secretsGroup.DELETE("/:id", secretHandlers.DeleteSecretHandler())
			}
		}
	}

	// Retention purge runs in-process; the DELETE is idempotent so running one
	// purger per replica is safe.
	purger := jobs.NewSecretPurger(secretRepo, &cfg.Secrets.Retention)
	safego.Go(func() { purger.Start(context.Background()) })

	bg := &BackgroundServices{
		rateLimiters: rateLimiters,
		redisClient:  redisClient,
		purger:       purger,
		auditShipper: auditShipper,
	}

	return router, bg, nil
}

// buildAuditShipper assembles the audit destinations from configuration.
// Returns nil when auditing is disabled or no destination is configured.
func buildAuditShipper(cfg *config.AuditConfig) (audit.Shipper, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var shippers []audit.Shipper
	if cfg.File.Path != "" {
		fileShipper, err := audit.NewFileShipper(&audit.FileConfig{
			Path:       cfg.File.Path,
			MaxSizeMB:  cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
		})
		if err != nil {
			return nil, fmt.Errorf("audit file shipper: %w", err)
		}
		shippers = append(shippers, fileShipper)
	}
	if cfg.Webhook.URL != "" {
		webhookShipper, err := audit.NewWebhookShipper(&audit.WebhookConfig{
			URL:           cfg.Webhook.URL,
			Timeout:       cfg.Webhook.Timeout,
			BatchSize:     cfg.Webhook.BatchSize,
			FlushInterval: cfg.Webhook.FlushInterval,
		})
		if err != nil {
			return nil, fmt.Errorf("audit webhook shipper: %w", err)
		}
		shippers = append(shippers, webhookShipper)
	}
	if len(shippers) == 0 {
		slog.Warn("audit enabled but no destination configured")
		return nil, nil
	}

	slog.Info("audit trail enabled", "destinations", len(shippers))
	return audit.NewMultiShipper(shippers...), nil
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check database connection
		if err := db.Ping(); err != nil {
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

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "ready: false, error: database not ready"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service
func readinessHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		// Check database connection
		if err := db.Ping(); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the current API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured request logging via slog
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		requestID, _ := c.Get(middleware.RequestIDKey)
		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", latency),
			slog.String("ip", c.ClientIP()),
			slog.Any("request_id", requestID),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Check if origin is allowed
		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
