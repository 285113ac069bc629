// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/sahaay-app/sahaay/internal/config"
	"github.com/sahaay-app/sahaay/internal/escrow"
	"github.com/sahaay-app/sahaay/internal/fraud"
	"github.com/sahaay-app/sahaay/internal/gps"
	"github.com/sahaay-app/sahaay/internal/health"
	"github.com/sahaay-app/sahaay/internal/logging"
	"github.com/sahaay-app/sahaay/internal/metrics"
	"github.com/sahaay-app/sahaay/internal/notify"
	"github.com/sahaay-app/sahaay/internal/problems"
	"github.com/sahaay-app/sahaay/internal/ratelimit"
	"github.com/sahaay-app/sahaay/internal/security"
	"github.com/sahaay-app/sahaay/internal/traces"
	"github.com/sahaay-app/sahaay/internal/trust"
	"github.com/sahaay-app/sahaay/internal/users"
	"github.com/sahaay-app/sahaay/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg *config.Config

	trustService   *trust.Service
	userService    *users.Service
	problemService *problems.Service
	escrowService  *escrow.Service
	escrowTimer    *escrow.Timer
	fraudAgg       *fraud.Aggregator
	fraudSweeper   *fraud.Sweeper
	gpsChecker     *gps.Checker
	notifier       *notify.Dispatcher
	hub            *notify.Hub

	rateLimiter *ratelimit.Limiter
	checks      *health.Registry
	db          *sql.DB // nil if using in-memory
	router      *gin.Engine
	httpSrv     *http.Server
	logger      *slog.Logger

	cancelRunCtx   context.CancelFunc // cancels background goroutines started in Run
	shutdownTraces func(context.Context) error

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
		checks: health.NewRegistry(),
	}

	for _, opt := range opts {
		opt(s)
	}

	// Storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		trustStore   trust.Store
		userStore    users.Store
		problemStore problems.Store
		escrowStore  escrow.Store
		fraudStore   fraud.Store
		notifyStore  notify.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		trustStore = trust.NewPostgresStore(db)
		userStore = users.NewPostgresStore(db)
		problemStore = problems.NewPostgresStore(db)
		escrowStore = escrow.NewPostgresStore(db)
		fraudStore = fraud.NewPostgresStore(db)
		notifyStore = notify.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		s.checks.Register("database", func(ctx context.Context) health.Status {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	} else {
		trustStore = trust.NewMemoryStore()
		memUsers := users.NewMemoryStore()
		// The postgres store joins trust records when picking sweep
		// candidates; give the memory store the same view.
		memUsers.SetTrustScores(func(ctx context.Context, userID string) (int, bool) {
			rec, err := trustStore.Get(ctx, userID)
			if err != nil {
				return 0, false
			}
			return rec.Score, true
		})
		userStore = memUsers
		problemStore = problems.NewMemoryStore()
		escrowStore = escrow.NewMemoryStore()
		fraudStore = fraud.NewMemoryStore()
		notifyStore = notify.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Realtime hub and notifications
	s.hub = notify.NewHub(s.logger)
	s.notifier = notify.NewDispatcher(notifyStore, s.hub)
	s.logger.Info("realtime notifications enabled")

	// Trust score engine
	s.trustService = trust.NewService(trustStore)

	// Accounts. The users service doubles as the fraud evidence
	// directory, the GPS home lookup, and the escrow restriction check.
	s.userService = users.NewService(userStore, s.trustService)

	// Fraud signal aggregation and GPS checking. The aggregator is the
	// checker's flag sink so location flags land in the fraud trail.
	s.fraudAgg = fraud.NewAggregator(s.userService, fraudStore)
	s.fraudSweeper = fraud.NewSweeper(s.userService, fraudStore, cfg.SweepInterval, s.logger)
	s.gpsChecker = gps.NewChecker(gps.NewMemoryHistory(), s.userService, s.fraudAgg)
	s.logger.Info("fraud aggregation enabled", "sweepInterval", cfg.SweepInterval.String())

	// Problem postings, tier-gated by trust score
	s.problemService = problems.NewService(problemStore, s.trustService)

	// Escrow state machine with auto-release timer
	s.escrowService = escrow.NewService(escrowStore, s.problemService, cfg.EscrowLockDuration()).
		WithTrustRecorder(s.userService).
		WithRestrictions(s.userService).
		WithNotifier(s.notifier)
	s.escrowTimer = escrow.NewTimer(s.escrowService, escrowStore, time.Minute, s.logger)
	s.logger.Info("escrow enabled", "lockTTL", cfg.EscrowLockDuration().String())

	s.checks.Register("escrow_timer", func(ctx context.Context) health.Status {
		return health.Status{Name: "escrow_timer", Healthy: s.escrowTimer.Running()}
	})
	s.checks.Register("fraud_sweeper", func(ctx context.Context) health.Status {
		return health.Status{Name: "fraud_sweeper", Healthy: s.fraudSweeper.Running()}
	})

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	rlCfg := ratelimit.DefaultConfig()
	rlCfg.RequestsPerMinute = s.cfg.RateLimitRPS * 60
	rlCfg.BurstSize = s.cfg.RateLimitRPS
	s.rateLimiter = ratelimit.New(rlCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())

	// Keep IP linkage fresh for the fraud aggregator
	s.router.Use(s.touchIPMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		if caller := c.GetHeader("X-User-ID"); caller != "" {
			ctx = logging.WithCallerID(ctx, caller)
		}
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// touchIPMiddleware records the caller's IP against their account after
// the request completes. Best-effort; lookups never block the response.
func (s *Server) touchIPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		userID := c.GetHeader("X-User-ID")
		if userID == "" || c.Writer.Status() >= 400 {
			return
		}
		ip := c.ClientIP()
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := s.userService.TouchIP(ctx, userID, ip); err != nil {
				s.logger.Debug("touch ip failed", "userId", userID, "error", err)
			}
		}()
	}
}

// adminMiddleware guards admin routes with the shared admin secret. In
// development with no secret configured, admin routes stay open for
// local testing.
func (s *Server) adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AdminSecret == "" {
			if s.cfg.IsDevelopment() {
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "admin_disabled",
				"message": "Admin API is not configured",
			})
			return
		}

		provided := c.GetHeader("X-Admin-Secret")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.cfg.AdminSecret)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Invalid admin secret",
			})
			return
		}
		c.Next()
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")

	usersHandler := users.NewHandler(s.userService)
	trustHandler := trust.NewHandler(s.trustService)
	gpsHandler := gps.NewHandler(s.gpsChecker)
	problemsHandler := problems.NewHandler(s.problemService)
	escrowHandler := escrow.NewHandler(s.escrowService)
	fraudHandler := fraud.NewHandler(s.fraudAgg, s.fraudSweeper)
	notifyHandler := notify.NewHandler(s.notifier, s.hub)

	// PUBLIC ROUTES
	usersHandler.RegisterRoutes(v1)
	trustHandler.RegisterRoutes(v1)
	gpsHandler.RegisterRoutes(v1)
	problemsHandler.RegisterRoutes(v1)
	escrowHandler.RegisterRoutes(v1)
	notifyHandler.RegisterRoutes(v1)

	// ADMIN ROUTES (X-Admin-Secret header)
	admin := v1.Group("/admin")
	admin.Use(s.adminMiddleware())
	{
		usersHandler.RegisterAdminRoutes(admin)
		trustHandler.RegisterProtectedRoutes(admin)
		fraudHandler.RegisterRoutes(admin)
	}
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.checks.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    statuses,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Sahaay",
		"description": "Trust and risk engine for a local-help marketplace",
		"version":     "0.1.0",
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	// Tracing (no-op when OTLP endpoint is unset)
	shutdown, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("tracing init failed", "error", err)
	} else {
		s.shutdownTraces = shutdown
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.hub.Run(runCtx)

	// Start escrow auto-release timer
	go s.escrowTimer.Start(runCtx)

	// Start multi-account sweeper
	go s.fraudSweeper.Start(runCtx)

	// Sample DB pool stats into Prometheus
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, timers, sweeper)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	s.escrowTimer.Stop()
	s.logger.Info("escrow timer stopped")

	s.fraudSweeper.Stop()
	s.logger.Info("fraud sweeper stopped")

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	if s.shutdownTraces != nil {
		if err := s.shutdownTraces(ctx); err != nil {
			s.logger.Warn("trace exporter shutdown error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
