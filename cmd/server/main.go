package main

import (
	"context"
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
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/arturkam25/intelplatform/internal/account"
	"github.com/arturkam25/intelplatform/internal/api"
	"github.com/arturkam25/intelplatform/internal/archive"
	"github.com/arturkam25/intelplatform/internal/auth"
	"github.com/arturkam25/intelplatform/internal/config"
	"github.com/arturkam25/intelplatform/internal/dataset"
	"github.com/arturkam25/intelplatform/internal/events"
	"github.com/arturkam25/intelplatform/internal/health"
	"github.com/arturkam25/intelplatform/internal/logger"
	"github.com/arturkam25/intelplatform/internal/metrics"
	authmw "github.com/arturkam25/intelplatform/internal/middleware"
	"github.com/arturkam25/intelplatform/internal/repository"
	"github.com/arturkam25/intelplatform/internal/sanitizer"
	"github.com/arturkam25/intelplatform/internal/sse"
)

const version = "1.0.0"

// auditEventBufferSize bounds the in-memory audit replay store.
const auditEventBufferSize = 1000

func main() {
	cfg := config.Load()

	log := logger.New(logger.DefaultConfig())
	slog.SetDefault(log)

	if cfg.JWT.AccessSecret == "" || cfg.JWT.RefreshSecret == "" {
		log.Error("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET are required")
		os.Exit(1)
	}

	dbPool, err := setupDatabase(cfg, log)
	if err != nil {
		log.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer dbPool.Close()

	// database/sql handle over the same pool for sqlx consumers
	sqlDB := stdlib.OpenDBFromPool(dbPool)
	sqlxDB := sqlx.NewDb(sqlDB, "pgx")
	defer sqlxDB.Close()

	dbStats := metrics.NewDBStatsCollector(dbPool, sqlDB)
	dbStats.Start(15 * time.Second)
	defer dbStats.Stop()

	// Audit trail
	eventStore := events.NewEventStore(auditEventBufferSize)
	eventBus := events.NewEventBus(eventStore)
	auditor := events.NewAuditor(eventBus, log)

	// Repositories
	accountRepo := repository.NewAccountRepository(dbPool)
	sessionRepo := repository.NewSessionRepository(dbPool)

	// Services
	accountService := account.NewService(accountRepo, account.ServiceConfig{
		LockThreshold:      cfg.Auth.LockThreshold,
		VerboseLoginErrors: cfg.Auth.VerboseLoginErrors,
		BootstrapAdmin:     cfg.Auth.BootstrapAdmin,
	}, auditor, log)

	tokenService := auth.NewTokenService(auth.TokenServiceConfig{
		AccessSecret:       cfg.JWT.AccessSecret,
		RefreshSecret:      cfg.JWT.RefreshSecret,
		AccessTokenExpiry:  cfg.JWT.AccessTokenExpiry,
		RefreshTokenExpiry: cfg.JWT.RefreshTokenExpiry,
		Issuer:             cfg.JWT.Issuer,
	})
	authService := auth.NewService(accountService, tokenService, sessionRepo, log)
	authHandler := auth.NewHandler(authService, log)

	// Datasets
	textSanitizer := sanitizer.NewTextSanitizer()
	datasetStore := dataset.NewSQLStore(sqlxDB)
	importer := dataset.NewImporter(datasetStore, textSanitizer, log)
	datasetHandler := api.NewDatasetHandler(datasetStore, importer, textSanitizer, log)

	// Optional CSV snapshot archival
	if cfg.Archive.Enabled() {
		archiveService, err := archive.NewService(cfg.Archive, log)
		if err != nil {
			log.Error("failed to initialize snapshot archive", slog.String("error", err.Error()))
			os.Exit(1)
		}
		datasetHandler.WithArchive(archiveService)

		retention := archive.NewRetentionJob(archiveService, archive.DefaultRetentionConfig(), log)
		retention.Start()
		defer retention.Stop()
		log.Info("snapshot archival enabled", slog.String("bucket", cfg.Archive.Bucket))
	}

	// Optional Redis for the health surface
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	healthHandler := health.NewHandler(health.Config{
		DBPool:      dbPool,
		RedisClient: redisClient,
		Version:     version,
	})

	auditStream := sse.NewHandler(sse.DefaultConfig(), eventBus, log)

	// Middleware
	authMiddleware := authmw.NewAuthMiddleware(tokenService)
	loggingMiddleware := authmw.NewLoggingMiddleware(log)
	loginLimiter := authmw.NewLoginRateLimiter(cfg.Auth.LoginRateLimit, cfg.Auth.LoginRateWindow)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(loggingMiddleware.Handler)
	r.Use(chimw.Recoverer)
	r.Use(metrics.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/health/ready", healthHandler.Readiness)
	r.Get("/health/live", healthHandler.Liveness)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(60 * time.Second))
			auth.RegisterRoutes(r, authHandler,
				authMiddleware.Authenticate,
				authMiddleware.RequireAdmin,
				loginLimiter.Handler,
			)
			api.RegisterDatasetRoutes(r, datasetHandler,
				authMiddleware.Authenticate,
				authMiddleware.RequireAdmin,
			)
		})

		// Audit streams outlive the request timeout on purpose.
		sse.RegisterRoutes(r, auditStream,
			authMiddleware.Authenticate,
			authMiddleware.RequireAdmin,
		)
	})

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: audit streams stay open up to their own
		// ConnectionTimeout and would be cut mid-flight otherwise.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("starting server", slog.String("addr", addr), slog.String("version", version))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	healthHandler.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("forced shutdown", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("server exited")
}

// setupDatabase creates and configures the database connection pool
func setupDatabase(cfg *config.Config, log *slog.Logger) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return nil, err
	}
	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
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

	log.Info("connected to database",
		slog.String("host", cfg.Database.Host),
		slog.String("database", cfg.Database.DBName),
	)
	return pool, nil
}
