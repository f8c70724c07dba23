package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mateit-cloudware/mate-sentinel/internal/alert"
	"github.com/mateit-cloudware/mate-sentinel/internal/audit"
	"github.com/mateit-cloudware/mate-sentinel/internal/auth"
	"github.com/mateit-cloudware/mate-sentinel/internal/background"
	"github.com/mateit-cloudware/mate-sentinel/internal/config"
	"github.com/mateit-cloudware/mate-sentinel/internal/database"
	"github.com/mateit-cloudware/mate-sentinel/internal/handlers"
	"github.com/mateit-cloudware/mate-sentinel/internal/metrics"
	middlewareCustom "github.com/mateit-cloudware/mate-sentinel/internal/middleware"
	"github.com/mateit-cloudware/mate-sentinel/internal/routes"
	"github.com/mateit-cloudware/mate-sentinel/internal/security"
	pkghttp "github.com/mateit-cloudware/mate-sentinel/pkg/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Metrics registry
	m := metrics.New()

	// Alert channel: SES email when enabled, structured log otherwise
	var notifier alert.Notifier
	if cfg.Alert.EmailEnabled {
		sesNotifier, err := alert.NewSESNotifier(cfg.Alert.AWSRegion, cfg.Alert.FromAddress, cfg.Alert.ToAddresses, logger)
		if err != nil {
			logger.Error("failed to initialize alert notifier", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = sesNotifier
	} else {
		notifier = alert.NewLogNotifier(logger)
	}
	dispatcher := alert.NewDispatcher(notifier, alert.DispatcherConfig{
		MaxPerMinute: cfg.Alert.DispatchPerMin,
		Timeout:      cfg.Alert.Timeout,
	}, logger)

	// Audit sink: Postgres when enabled, structured log otherwise
	var db *database.DB
	var sink audit.Sink
	var pruner background.EventPruner
	if cfg.AuditDB.Enabled {
		db, err = database.NewConnection(&cfg.AuditDB, logger)
		if err != nil {
			logger.Error("failed to connect to audit database", slog.Any("error", err))
			os.Exit(1)
		}
		defer db.Close()

		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := database.Migrate(migrateCtx, db); err != nil {
			cancel()
			logger.Error("failed to run migrations", slog.Any("error", err))
			os.Exit(1)
		}
		cancel()

		pgSink := audit.NewPostgresSink(db)
		sink = pgSink
		pruner = pgSink
	} else {
		sink = audit.NewLogSink(logger)
	}
	forwarder := audit.NewForwarder(sink, 5*time.Second, logger)

	// Detection engine with alert, audit and metrics hooks
	var engine *security.Engine
	engine = security.NewEngine(cfg.EngineConfig(), security.Hooks{
		Alert: dispatcher.Dispatch,
		Audit: func(ev security.SecurityEvent) {
			m.ObserveEvent(ev)
			if ev.Type == security.EventIPBlocked || ev.Type == security.EventIPUnblocked {
				m.BlockedIPs.Set(float64(len(engine.BlockedIPs())))
			}
			forwarder.Forward(ev)
		},
	}, logger)

	// Periodic sweep of expired windows, stale attempts and old events
	sweepManager := background.NewSweepManager(engine, pruner, cfg.Threat.EventRetention, logger, cfg.Threat.SweepInterval)

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{BaseDelayMs: 100, RandomDelayMs: 100})
	verifier := handlers.NewStaticCredentialVerifier(cfg.Auth.AdminEmail, cfg.Auth.AdminPasswordHash)

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	authHandler := handlers.NewAuthHandler(engine, verifier, tokenManager, timingDelay, ipConfig)
	adminHandler := handlers.NewAdminHandler(engine)

	// Router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(middlewareCustom.ThreatCheck(engine, middlewareCustom.ThreatCheckConfig{
		MaxBodyScanBytes: cfg.Threat.MaxBodyScanBytes,
		Policy:           middlewareCustom.DefaultThreatPolicy(),
		IPConfig:         ipConfig,
	}, userIDFromToken(tokenManager), m, logger))

	routes.RegisterRoutes(router, authHandler, adminHandler, tokenManager,
		middlewareCustom.OuterRateLimitConfig{RequestsPerMinute: cfg.Server.OuterIPLimit},
		m.Handler())

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.HealthCheck(ctx); err != nil {
				pkghttp.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "audit_db": "down"})
				return
			}
		}
		pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	go sweepManager.Start(sweepCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	sweepCancel()
	sweepManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	logger.Info("server stopped")
}

// userIDFromToken resolves the authenticated user for per-user rate limiting.
// Invalid or missing tokens yield "" and fall back to per-IP limits only; the
// auth middleware rejects them later where it matters.
func userIDFromToken(tm *auth.TokenManager) middlewareCustom.UserIDExtractor {
	return func(r *http.Request) string {
		header := r.Header.Get("Authorization")
		if header == "" {
			return ""
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return ""
		}
		claims, err := tm.ValidateToken(parts[1])
		if err != nil {
			return ""
		}
		return claims.UserID
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
