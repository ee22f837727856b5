package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/birbparty/nestlink/internal/api"
	"github.com/birbparty/nestlink/internal/storage"
	"github.com/birbparty/nestlink/internal/telemetry"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load API configuration
	cfg, err := api.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TelemetryEnabled {
		if err := telemetry.Init(ctx, telemetry.NewConfigFromEnv()); err != nil {
			log.Printf("Warning: Failed to initialize telemetry: %v", err)
		}
	}

	log.Printf("🐦 nestlink dev backend starting...")

	// File storage: Spaces when configured, process memory otherwise
	var files storage.FileStore
	if cfg.SpacesEnabled {
		spaces, err := storage.NewSpacesStore(cfg.Spaces)
		if err != nil {
			log.Fatalf("Failed to initialize Spaces storage: %v", err)
		}
		files = spaces
		log.Printf("✅ Uploads stored in bucket %s", cfg.Spaces.Bucket)
	} else {
		files = storage.NewMemoryStore(cfg.PublicURL + "/api/files/raw")
		log.Println("✅ Uploads stored in memory")
	}

	store := api.NewStore(cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	writer := api.NewAnalyticsWriter(store, cfg.AnalyticsQueueSize, cfg.AnalyticsWorkers)
	handler := api.NewHandler(store, files, writer, cfg.MaxUploadBytes)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:               "nestlink API",
		ErrorHandler:          api.ErrorHandler,
		ReadTimeout:           time.Duration(cfg.RequestTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.RequestTimeout) * time.Second,
		IdleTimeout:           120 * time.Second,
		BodyLimit:             cfg.MaxUploadBytes + 1<<20,
		DisableStartupMessage: true,
	})

	api.SetupMiddleware(app, cfg)
	app.Get(cfg.MetricsPath, adaptor.HTTPHandler(telemetry.PrometheusHandler()))
	api.SetupRoutes(app, handler, store, cfg)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		api.NewSweeper(store, cfg.SweepInterval).Start(gctx)
		return nil
	})
	g.Go(func() error {
		log.Printf("🚀 nestlink API listening on %s", addr)
		return app.Listen(addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("🛑 Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
		defer cancel()

		// Stop accepting requests before draining the analytics queue
		err := app.ShutdownWithContext(shutdownCtx)
		writer.Shutdown()
		if cfg.TelemetryEnabled {
			err = errors.Join(err, telemetry.Shutdown(shutdownCtx))
		}
		return err
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server stopped with error: %v", err)
	}
	log.Println("👋 Server stopped")
}
