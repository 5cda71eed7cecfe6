package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"

	"testrec/internal/config"
	"testrec/internal/handlers"
	"testrec/internal/models"
	"testrec/internal/recording"
	"testrec/internal/repository"
	"testrec/internal/storage"
	"testrec/internal/utils"
	"testrec/internal/workers"
)

func main() {
	os.Exit(realMain())
}

// realMain returns the exit code so deferred cleanup runs before exit
func realMain() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		return 1
	}
	setupLogging(cfg)

	ctx := context.Background()
	timeouts := utils.DefaultTimeoutConfig()

	blobs, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		slog.Error("Failed to open storage", "error", err)
		return 1
	}
	slog.Info("Storage ready", "backend", cfg.Storage.Backend, "compress", cfg.Storage.Compress)

	checks := utils.HealthCheckConfig{Timeout: 10 * time.Second}
	if cfg.Storage.Backend == "" || cfg.Storage.Backend == "fs" {
		checks.StoragePath = cfg.Storage.Path
	}
	if cfg.Upload.Enabled {
		checks.CollectorURL = cfg.Upload.URL
	}
	collectorErr, err := utils.RunHealthChecks(ctx, checks)
	if err != nil {
		slog.Error("Startup health check failed", "error", err)
		return 1
	}
	if collectorErr != nil {
		slog.Warn("Collector check failed, uploads will be attempted anyway", "error", collectorErr)
	}

	var (
		repo   repository.Repository
		db     *gorm.DB
		dbPool *pgxpool.Pool
	)
	if cfg.DBURL != "" {
		db, dbPool, err = repository.OpenPostgres(ctx, cfg.DBURL)
		if err != nil {
			slog.Error("Failed to open database", "error", err)
			return 1
		}
		defer dbPool.Close()

		gormRepo := repository.NewGormRepository(db, blobs)
		if err := gormRepo.Migrate(); err != nil {
			slog.Error("Failed to migrate captures table", "error", err)
			return 1
		}
		repo = gormRepo
		slog.Info("Capture records stored in Postgres")
	} else {
		repo = repository.NewStorageRepository(blobs)
	}

	pipeline, err := workers.NewPipeline(cfg.PipelineConfig(), repo)
	if err != nil {
		slog.Error("Failed to start upload pipeline", "error", err)
		return 1
	}

	info, err := cfg.Info()
	if err != nil {
		slog.Error("Failed to resolve capture info", "error", err)
		return 1
	}
	svc := recording.NewService(recording.StaticInfo{Value: info}, repo, recording.ServiceOptions{
		Scheduler:  pipeline,
		AutoUpload: cfg.Upload.Auto,
	})

	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(handlers.Dependencies{
		Service: svc,
		Repo:    repo,
		Uploads: pipeline,
		DB:      db,
	})
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: timeouts.ReadHeaderTimeout,
	}

	if err := run(srv, svc, pipeline, timeouts); err != nil {
		slog.Error("Server stopped with error", "error", err)
		return 1
	}
	return 0
}

func setupLogging(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// run serves until SIGINT/SIGTERM, then settles the live capture and drains
// the upload workers.
func run(srv *http.Server, svc *recording.Service, pipeline *workers.Pipeline, timeouts utils.TimeoutConfig) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("Starting server", "addr", srv.Addr)

	var serveErr error
	select {
	case serveErr = <-errCh:
		if errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		}
	case sig := <-sigCh:
		slog.Info("Shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeouts.ShutdownTimeout)
	defer cancel()

	settleCapture(ctx, svc)

	return errors.Join(
		serveErr,
		srv.Shutdown(ctx),
		pipeline.Shutdown(ctx),
	)
}

// settleCapture deals with the live capture at shutdown. One that is
// started or still recording has no complete video and is cancelled. A
// stopped capture keeps its video; a finished one is already saved.
func settleCapture(ctx context.Context, svc *recording.Service) {
	view := svc.Current()
	switch view.State {
	case models.StateStarted, models.StateRecording:
		slog.Warn("Discarding unfinished capture", "capture_id", view.ID, "state", view.State)
		svc.Cancel(ctx)
	case models.StateStopped:
		slog.Warn("Capture was stopped but never finished, keeping its video", "capture_id", view.ID, "folder", view.Folder)
	}
}
