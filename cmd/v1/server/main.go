package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/quillgame/quill/backend/go/internal/v1/auth"
	"github.com/quillgame/quill/backend/go/internal/v1/bus"
	"github.com/quillgame/quill/backend/go/internal/v1/config"
	"github.com/quillgame/quill/backend/go/internal/v1/health"
	"github.com/quillgame/quill/backend/go/internal/v1/httpapi"
	"github.com/quillgame/quill/backend/go/internal/v1/logging"
	"github.com/quillgame/quill/backend/go/internal/v1/middleware"
	"github.com/quillgame/quill/backend/go/internal/v1/ratelimit"
	"github.com/quillgame/quill/backend/go/internal/v1/realtime"
	"github.com/quillgame/quill/backend/go/internal/v1/tracing"
	"github.com/quillgame/quill/backend/go/internal/v1/users"
)

const serviceName = "quill"

func main() {
	// Load .env file for local development.
	// Try multiple paths to handle different ways of running the app
	envPaths := []string{".env", "../../../.env", "../../.env"}
	var envLoaded bool

	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			slog.Info("Loaded environment from", "path", path)
			envLoaded = true
			break
		}
	}

	if !envLoaded {
		slog.Warn("No .env file found in any expected location, relying on environment variables")
	}

	// Validate environment variables before starting the server
	cfg, err := config.ValidateEnv()
	if err != nil {
		slog.Error("Environment validation failed", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	ctx := context.Background()

	if cfg.DevelopmentMode {
		logging.Info(ctx, "Running in DEVELOPMENT MODE")
	}

	// --- Tracing (Optional) ---
	// Spans are exported only when a collector endpoint is configured.
	if cfg.OTLPEndpoint != "" {
		tp, err := tracing.InitTracer(ctx, serviceName, cfg.OTLPEndpoint, cfg.DevelopmentMode)
		if err != nil {
			logging.Fatal(ctx, "Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(flushCtx); err != nil {
				logging.Error(flushCtx, "Failed to shut down tracer", zap.Error(err))
			}
		}()
		logging.Info(ctx, "✅ OTLP tracing initialized", zap.String("endpoint", cfg.OTLPEndpoint))
	}

	// --- Redis (Required) ---
	// Rooms, turn state, sessions and the room channels all live here.
	busService, err := bus.NewService(cfg.RedisURL)
	if err != nil {
		logging.Fatal(ctx, "Failed to connect to Redis", zap.Error(err))
	}
	logging.Info(ctx, "✅ Redis connected")

	// --- Postgres (Required) ---
	db, err := users.Connect(cfg.DatabaseURL)
	if err != nil {
		logging.Fatal(ctx, "Failed to connect to Postgres", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		logging.Fatal(ctx, "Failed to unwrap database handle", zap.Error(err))
	}
	userStore := users.NewStore(db)
	logging.Info(ctx, "✅ User store initialized")

	// --- Session Store ---
	var sessions auth.Store
	if cfg.UseRedisSessions {
		sessions = auth.NewRedisStore(busService.Client(), cfg.SessionTTL)
		logging.Info(ctx, "✅ Redis session store initialized", zap.Duration("ttl", cfg.SessionTTL))
	} else {
		sessions = auth.NewMemoryStore()
		logging.Warn(ctx, "⚠️ Sessions held in process memory; a restart logs every user out")
	}

	// --- Word Bank ---
	words, err := realtime.LoadWords(cfg.WordlistPath)
	if err != nil {
		logging.Fatal(ctx, "Failed to load word list",
			zap.String("path", cfg.WordlistPath), zap.Error(err))
	}
	logging.Info(ctx, "Word list loaded",
		zap.String("path", cfg.WordlistPath), zap.Int("words", words.Len()))

	// --- Rate Limiter ---
	limiter, err := ratelimit.NewRateLimiter(cfg, busService.Client())
	if err != nil {
		logging.Fatal(ctx, "Failed to build rate limiter", zap.Error(err))
	}

	// Game loops run under the registry so shutdown can wait for them.
	registry := realtime.NewRegistry()

	allowedOrigins := auth.ParseAllowedOrigins(cfg.AllowedOrigins)

	api := httpapi.New(httpapi.Deps{
		Users:    userStore,
		Sessions: sessions,
		Bus:      busService,
		Registry: registry,
		Words:    words,
		Limiter:  limiter,
		Loop: realtime.LoopConfig{
			Rounds:            cfg.GameRounds,
			TurnDuration:      cfg.TurnDuration,
			PollInterval:      cfg.PollInterval,
			TurnCooldown:      cfg.TurnCooldown,
			MaxReceiveRetries: cfg.PubSubMaxRetries,
			LobbyTimeout:      cfg.LobbyTimeout,
		},
		AllowedOrigins: allowedOrigins,
	})

	// --- Set up Server ---
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = allowedOrigins
	corsConfig.AddAllowHeaders("Authorization")
	router.Use(cors.New(corsConfig))

	router.Use(middleware.CorrelationID())
	if cfg.OTLPEndpoint != "" {
		router.Use(otelgin.Middleware(serviceName))
	}
	router.Use(limiter.GlobalMiddleware())

	api.Register(router)

	// Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check endpoints
	healthHandler := health.NewHandler(busService, sqlDB)
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// --- Graceful Shutdown ---
	// Start the server in a goroutine so it doesn't block.
	go func() {
		logging.Info(ctx, "API server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error(ctx, "Failed to run server", zap.Error(err))
			syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}
	}()

	// Wait for an interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting requests before winding down the game loops that
	// running requests may still reach.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(shutdownCtx, "Server forced to shutdown", zap.Error(err))
	}

	if err := registry.Shutdown(shutdownCtx); err != nil {
		logging.Error(shutdownCtx, "Error during game loop shutdown", zap.Error(err))
	}

	if err := busService.Close(); err != nil {
		logging.Error(shutdownCtx, "Failed to close Redis connection", zap.Error(err))
	}

	if err := sqlDB.Close(); err != nil {
		logging.Error(shutdownCtx, "Failed to close database connection", zap.Error(err))
	}

	logging.Info(shutdownCtx, "Server exiting")
}
