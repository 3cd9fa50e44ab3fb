package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"musky.app/forecast/common/id"
	"musky.app/forecast/common/logger"
	"musky.app/forecast/common/otel"
	"musky.app/forecast/core/config"
	"musky.app/forecast/core/db"
	"musky.app/forecast/internal/app"
	"musky.app/forecast/internal/http/middleware"
	httprouter "musky.app/forecast/internal/http/router"
	"musky.app/forecast/internal/queue"
	"musky.app/forecast/internal/service"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "forecast server starting",
		"env", cfg.Env,
		"service", cfg.OTel.ServiceName,
		"store", cfg.StoreKind,
		"location", cfg.Report.LocationName,
		"time_zone", cfg.Report.TimeZone)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	var deps app.Deps

	if cfg.StoreKind == config.StoreBackendPostgres {
		database, err := db.New(ctx, cfg.DB)
		if err != nil {
			slog.ErrorContext(ctx, "failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer database.Close()
		deps.DB = database
		slog.InfoContext(ctx, "database connected")
	}

	redisClient, err := connectRedis(ctx, cfg.Pipeline.RedisURL)
	switch {
	case err == nil:
		defer redisClient.Close()
		deps.Redis = redisClient
		slog.InfoContext(ctx, "redis connected", "stream", cfg.Pipeline.RedisStream)
	case cfg.StoreKind == config.StoreBackendRedis:
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	default:
		slog.WarnContext(ctx, "redis unavailable, running without generation locks or the task queue", "error", err)
	}

	deps.LLM, err = app.NewLLMClient(cfg.LLM)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create llm client", "error", err)
		os.Exit(1)
	}

	pipeline, err := app.NewPipeline(cfg, deps)
	if err != nil {
		slog.ErrorContext(ctx, "failed to assemble report pipeline", "error", err)
		os.Exit(1)
	}

	var producer queue.Producer
	if deps.Redis != nil {
		producer = queue.NewRedisProducer(deps.Redis, cfg.Pipeline.RedisStream, slog.Default())
	}

	if cfg.Scheduler.Enabled {
		if err := pipeline.Scheduler.Start(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to start scheduler", "error", err)
			os.Exit(1)
		}
	}

	services := service.NewServices(pipeline.Coordinator, pipeline.Scheduler, producer, cfg.Report.RetainDays)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, services)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// A cold report waits on the whole source fan-out.
		WriteTimeout: cfg.Generation.Deadline + 45*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	pipeline.Scheduler.Stop()

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func setupRouter(cfg config.Config, services *service.Services) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, services, httprouter.RouterConfig{
		AdminAPIKey:     cfg.AdminAPIKey,
		TraceHeaderName: cfg.Pipeline.TraceHeaderName,
	})

	return router
}

const banner = `
  __                                 _
 / _| ___  _ __ ___  ___ __ _ ___| |_
| |_ / _ \| '__/ _ \/ __/ _' / __| __|
|  _| (_) | | |  __/ (_| (_| \__ \ |_
|_|  \___/|_|  \___|\___\__,_|___/\__|  server
`
