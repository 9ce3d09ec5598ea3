// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging, panic recovery, metrics, compression,
// CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/vuelospro/go-flight-desk/internal/config"
	"github.com/vuelospro/go-flight-desk/internal/domain"
	"github.com/vuelospro/go-flight-desk/internal/http/handlers"
	"github.com/vuelospro/go-flight-desk/internal/http/middleware"
	"github.com/vuelospro/go-flight-desk/internal/notify"
	"github.com/vuelospro/go-flight-desk/internal/repo"
	"github.com/vuelospro/go-flight-desk/internal/services"
)

// requestRepoShim adapts the repository free functions to the
// services.RequestRepo interface expected by WorkflowService. This keeps
// services decoupled from the concrete repo package while reusing existing
// functions.
type requestRepoShim struct{}

func (requestRepoShim) CreateRequest(ctx context.Context, db *gorm.DB, ownerChatID int64, ownerHandle, description string, travelDate *time.Time) (*domain.FlightRequest, error) {
	return repo.CreateRequest(ctx, db, ownerChatID, ownerHandle, description, travelDate)
}

func (requestRepoShim) GetRequest(ctx context.Context, db *gorm.DB, id uint) (*domain.FlightRequest, error) {
	return repo.GetRequest(ctx, db, id)
}

func (requestRepoShim) UpdateStatusFrom(ctx context.Context, db *gorm.DB, id uint, from, to domain.Status, extra map[string]any) (*domain.FlightRequest, error) {
	return repo.UpdateStatusFrom(ctx, db, id, from, to, extra)
}

func (requestRepoShim) DeleteRequestIfDeletable(ctx context.Context, db *gorm.DB, id uint) (*domain.FlightRequest, error) {
	return repo.DeleteRequestIfDeletable(ctx, db, id)
}

// deskRepoShim adapts the repository free functions to services.DeskRepo.
type deskRepoShim struct{ requestRepoShim }

func (deskRepoShim) ListByStatus(ctx context.Context, db *gorm.DB, status domain.Status) ([]domain.FlightRequest, error) {
	return repo.ListByStatus(ctx, db, status)
}

func (deskRepoShim) ListByStatusInWindow(ctx context.Context, db *gorm.DB, statuses []domain.Status, from, to time.Time) ([]domain.FlightRequest, error) {
	return repo.ListByStatusInWindow(ctx, db, statuses, from, to)
}

func (deskRepoShim) CountRequests(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountRequests(ctx, db)
}

func (deskRepoShim) ListHistoryPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.FlightRequest, error) {
	return repo.ListHistoryPage(ctx, db, offset, limit)
}

func (deskRepoShim) ListOwnerHistory(ctx context.Context, db *gorm.DB, ownerHandle string) ([]domain.FlightRequest, error) {
	return repo.ListOwnerHistory(ctx, db, ownerHandle)
}

func (deskRepoShim) DeskStats(ctx context.Context, db *gorm.DB) (int64, float64, error) {
	return repo.DeskStats(ctx, db)
}

func (deskRepoShim) OwnerStats(ctx context.Context, db *gorm.DB, ownerHandle string) (int64, float64, error) {
	return repo.OwnerStats(ctx, db, ownerHandle)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine: observability (tracing, metrics), idempotency and rate limiting,
// CORS and security headers, health and metrics endpoints, and the versioned
// dashboard API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured request logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter (covers pass uploads)
//  6. Gzip compression
//  7. Metrics
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per operator/IP, bypass on replay)
//  10. CORS and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, notifier notify.Notifier, cfg config.Config, log zerolog.Logger) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured request logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (8 MiB: delivery uploads carry pass images)
	r.Use(limitBody(8 << 20))

	// 6) Compression for the JSON list endpoints
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, operatorID, requestID, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, operatorID, requestID, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 9) Token-bucket rate limiter per operator/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByOperatorOrIP())
	r.Use(rl.Handler())

	// 10) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		middleware.HeaderOperatorID, middleware.HeaderIdempotencyKey,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Idempotency-Replayed"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Idempotency-Replayed"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← repo/db/notifier
	workflow := services.NewWorkflowService(db, requestRepoShim{}, notifier,
		cfg.Telegram.OperatorChatID, log.With().Str("component", "workflow").Logger())
	desk := services.NewDeskService(db, deskRepoShim{}, cfg.UpcomingWindowDays, cfg.HistoryLimit,
		log.With().Str("component", "desk").Logger())
	h := handlers.New(workflow, desk, db, cfg.IdempotencyTTL)

	// Dashboard API
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Work queues
		api.GET("/queues/pending", h.PendingHandler)
		api.GET("/queues/awaiting-validation", h.AwaitingValidationHandler)
		api.GET("/queues/deliverable", h.DeliverableHandler)
		api.GET("/queues/upcoming", h.UpcomingHandler)

		// Requests
		api.GET("/requests", h.HistoryHandler)
		api.GET("/requests/:id", h.GetRequestHandler)
		api.POST("/requests/:id/quote", h.QuoteRequestHandler)
		api.POST("/requests/:id/confirm-payment", h.ConfirmPaymentHandler)
		api.POST("/requests/:id/deliver", h.DeliverHandler)
		api.DELETE("/requests/:id", h.DeleteHandler)

		// Requesters and overview
		api.GET("/owners/:handle/requests", h.OwnerHistoryHandler)
		api.GET("/stats", h.StatsHandler)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
