package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/photosync/journal/internal/config"
	"github.com/photosync/journal/internal/handlers"
	"github.com/photosync/journal/internal/localstore"
	"github.com/photosync/journal/internal/observability"
	"github.com/photosync/journal/internal/repository"
	"github.com/photosync/journal/internal/services"
)

// Version is injected at build time
var Version = "dev"

func main() {
	logger := observability.Component("server")

	cfg, err := config.Load()
	if err != nil {
		logger.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	telemetry, err := observability.InitTelemetry(context.Background(),
		observability.NewTelemetryConfig("photo-journal-server", Version))
	if err != nil {
		logger.Warnf("Telemetry disabled: %v", err)
	}

	metrics, err := observability.NewHTTPMetrics()
	if err != nil {
		logger.Warnf("HTTP metrics disabled: %v", err)
	}

	logger.Infof("Using SQLite database %s", cfg.DevServer.DatabasePath)
	db, err := repository.NewSQLiteDB(cfg.DevServer.DatabasePath)
	if err != nil {
		logger.Errorf("Failed to initialize SQLite database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	media, err := localstore.NewMediaStore(
		cfg.DevServer.StoragePath,
		cfg.Media.AllowedExtensions,
		cfg.Media.MaxFileSizeMB,
	)
	if err != nil {
		logger.Errorf("Failed to initialize storage: %v", err)
		os.Exit(1)
	}

	auth := services.NewAuthService(
		repository.NewUserRepository(db),
		services.NewTokenService(cfg.DevServer.JWTSecret),
		0,
		observability.Component("auth"),
	)

	router := handlers.NewRouter(handlers.RouterConfig{
		Photos:  repository.NewPhotoRepository(db),
		Auth:    auth,
		Media:   media,
		Metrics: metrics,
		Logger:  observability.Component("http"),
		Version: Version,
	})

	srv := &http.Server{
		Addr:         cfg.DevServer.Address,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // Longer for uploads
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Photo journal server %s starting on %s", Version, cfg.DevServer.Address)
		logger.Infof("Photo storage path: %s", media.BasePath())

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Server error: %v", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}
	if telemetry != nil {
		if err := telemetry.Shutdown(ctx); err != nil {
			logger.Warnf("Telemetry shutdown: %v", err)
		}
	}

	logger.Info("Server stopped")
}
