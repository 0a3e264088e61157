package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/rangganata/ai-manager/internal/activity"
	"github.com/rangganata/ai-manager/internal/aimanager"
	"github.com/rangganata/ai-manager/internal/auth"
	"github.com/rangganata/ai-manager/internal/config"
	"github.com/rangganata/ai-manager/internal/health"
	"github.com/rangganata/ai-manager/internal/logger"
	"github.com/rangganata/ai-manager/internal/metrics"
	authmw "github.com/rangganata/ai-manager/internal/middleware"
	"github.com/rangganata/ai-manager/internal/ratelimit"
	"github.com/rangganata/ai-manager/internal/relay"
	"github.com/rangganata/ai-manager/internal/repository"
)

// Version is set at build time
var Version = "dev"

func main() {
	cfg := config.Load()

	if cfg.JWT.AccessSecret == "" {
		log.Fatal("JWT_ACCESS_SECRET environment variable is required")
	}
	// A missing AI_API_KEY is not fatal: prompt requests will fail with an
	// in-band error frame while the rest of the API keeps working.

	appLogger := logger.New(logger.DefaultConfig())
	slog.SetDefault(appLogger)

	dbPool, err := setupDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbPool.Close()

	sqlxDB, err := sqlx.Connect("pgx", cfg.Database.DSN())
	if err != nil {
		log.Fatalf("Failed to open sqlx connection: %v", err)
	}
	defer sqlxDB.Close()

	// Repositories
	userRepo := repository.NewUserRepository(dbPool)
	activityRepo := repository.NewActivityLogRepo(sqlxDB)
	loginHistoryRepo := repository.NewLoginHistoryRepo(sqlxDB)

	// Services
	tokenService := auth.NewTokenService(auth.TokenServiceConfig{
		Secret: cfg.JWT.AccessSecret,
		Expiry: cfg.JWT.AccessTokenExpiry,
		Issuer: cfg.JWT.Issuer,
	})
	activityService := activity.NewService(activityRepo, loginHistoryRepo, appLogger)
	authService := auth.NewAuthService(userRepo, tokenService, activityService, appLogger)

	upstream := relay.NewClient(relay.ClientConfig{
		BaseURL: cfg.AI.BaseURL,
		APIKey:  cfg.AI.APIKey,
		Model:   cfg.AI.Model,
	})
	streamRelay := relay.New(upstream, cfg.AI.IdleTimeout, appLogger)

	// Rate limit stores: generation quota per user, admission per client IP
	generationLimiter := ratelimit.NewStore(cfg.RateLimit.GenerationLimit, cfg.RateLimit.GenerationWindow)
	defer generationLimiter.Stop()
	requestLimiter := ratelimit.NewStore(cfg.RateLimit.RequestLimit, cfg.RateLimit.RequestWindow)
	defer requestLimiter.Stop()

	// Handlers
	authHandler := auth.NewAuthHandler(authService)
	activityHandler := activity.NewHandler(activityService)
	promptHandler := aimanager.NewHandler(streamRelay, generationLimiter, activityService, appLogger)
	healthHandler := health.NewHandler(health.Config{DBPool: dbPool, Version: Version})

	// Middleware
	authMiddleware := authmw.NewAuthMiddleware(tokenService, userRepo)
	requestRateLimiter := authmw.NewRequestRateLimiter(requestLimiter)

	// Metrics collection
	dbStats := metrics.NewDBStatsCollector(dbPool, sqlxDB.DB, appLogger)
	dbStats.Start(15 * time.Second)
	defer dbStats.Stop()

	// Router
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(authmw.StructuredLogger(appLogger))
	r.Use(metrics.Middleware)
	r.Use(requestRateLimiter.Handler)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/health/ready", healthHandler.Ready)
	r.Get("/health/live", healthHandler.Live)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	auth.RegisterRoutes(r, authHandler, authMiddleware.Authenticate)
	activity.RegisterRoutes(r, activityHandler, authMiddleware.Authenticate)
	aimanager.RegisterRoutes(r, promptHandler, authMiddleware.Authenticate)

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
		// No WriteTimeout: the prompt endpoint holds long-lived streams.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		appLogger.Info("starting server", slog.String("addr", addr), slog.String("version", Version))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("shutting down server")
	healthHandler.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	appLogger.Info("server exited")
}

// setupDatabase creates and configures the pgx connection pool
func setupDatabase(cfg *config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 5 * time.Minute
	poolConfig.MaxConnIdleTime = 1 * time.Minute
	poolConfig.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}
