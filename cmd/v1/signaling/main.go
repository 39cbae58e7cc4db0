package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/auth"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/config"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/health"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/ice"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/logging"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/middleware"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/ratelimit"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/room"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/session"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/tracing"
)

func main() {
	// Load .env for local development. Try multiple paths to handle
	// different ways of running the binary.
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

	cfg, err := config.ValidateEnv()
	if err != nil {
		slog.Error("Environment validation failed", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.Development); err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	ctx := context.Background()

	if cfg.Development {
		logging.Warn(ctx, "Running in DEVELOPMENT MODE: origin and token checks are relaxed")
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// --- Tracing (optional) ---
	var tracerShutdown func(context.Context) error
	if collectorAddr := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); collectorAddr != "" {
		tp, err := tracing.InitTracer(ctx, "signaling", collectorAddr)
		if err != nil {
			logging.Error(ctx, "Failed to initialize tracing, continuing without it", zap.Error(err))
		} else {
			tracerShutdown = tp.Shutdown
			logging.Info(ctx, "Tracing initialized", zap.String("collector", collectorAddr))
		}
	}

	// --- Rate limiter store (memory, or Redis behind a breaker) ---
	var redisClient *redis.Client
	if cfg.RedisEnabled {
		redisClient, err = ratelimit.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logging.Error(ctx, "Redis unavailable, limiter falling back to memory store", zap.Error(err))
			redisClient = nil
		}
	}
	store, err := ratelimit.NewStore(redisClient)
	if err != nil {
		logging.Fatal(ctx, "Failed to create limiter store", zap.Error(err))
	}
	limiter, err := ratelimit.New(cfg, store)
	if err != nil {
		logging.Fatal(ctx, "Failed to create rate limiter", zap.Error(err))
	}

	// --- Core runtime ---
	verifier := auth.NewVerifier(cfg.TokenSecret)
	issuer := auth.NewIssuer(cfg.TokenSecret, cfg.TokenTTL)
	origins := auth.NewAllowedOrigins(auth.GetAllowedOriginsFromEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000"}))
	registry := room.NewRegistry()
	hub := session.NewHub(cfg, registry, limiter, verifier, origins)

	// --- HTTP surface ---
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(otelgin.Middleware("signaling"))

	corsConfig := cors.DefaultConfig()
	if cfg.Development {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins.Entries()
	}
	router.Use(cors.New(corsConfig))

	router.GET("/ws", hub.ServeWS)
	router.POST("/auth/token", issuer.Handler())
	router.GET("/ice", ice.NewHandler(cfg).Servers)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	healthHandler := health.NewHandler(redisClient, hub)
	router.GET("/healthz", healthHandler.Liveness)
	router.GET("/readyz", healthHandler.Readiness)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logging.Info(ctx, "Signaling server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error(ctx, "Server failed", zap.Error(err))
			_ = syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer cancel()

	if err := hub.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "Hub drain incomplete", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "Server forced to shutdown", zap.Error(err))
	}
	if tracerShutdown != nil {
		if err := tracerShutdown(shutdownCtx); err != nil {
			logging.Error(ctx, "Tracer shutdown failed", zap.Error(err))
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logging.Error(ctx, "Failed to close Redis connection", zap.Error(err))
		}
	}

	logging.Info(ctx, "Server exiting")
}
