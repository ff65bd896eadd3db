package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/itsdivyanshjha/meta-data-tag-generator/api/handlers"
	"github.com/itsdivyanshjha/meta-data-tag-generator/api/routes"
	"github.com/itsdivyanshjha/meta-data-tag-generator/config"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/service/document"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/logger"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/progress"
)

func main() {
	cfg, err := config.GetAppConfig()
	if err != nil {
		panic(err)
	}

	// init logger
	log, err := logger.NewLogger(
		logger.WithLevel(cfg.Log.Level),
		logger.WithEncoding(cfg.Log.Encoding),
		logger.WithOutputPaths(cfg.Log.OutputPaths),
		logger.WithInitialFields(map[string]interface{}{"binary": "server"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := document.Connect(ctx, log, cfg)
	if err != nil {
		log.Fatal("Failed to connect backends", logger.Error(err))
	}
	defer deps.Close()

	svc := document.GetService(log, deps)

	checks := map[string]handlers.HealthCheck{
		"redis": func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() },
	}
	if deps.Postgres != nil {
		checks["postgres"] = deps.Postgres.Ping
	}
	h := handlers.NewHandlers(svc, log, handlers.Options{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Events:         progress.NewRedisEvents(deps.Redis),
		Checks:         checks,
	})

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = cfg.Server.MaxUploadBytes
	routes.SetupRoutes(ctx, r, h, log, routes.Options{
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server starting", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	// streamed batches see their request context end and stop at the next
	// document boundary
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
		os.Exit(1)
	}
}
