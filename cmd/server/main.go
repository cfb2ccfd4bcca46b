package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"

	"github.com/danielmtz/newslearn/internal/app"
	"github.com/danielmtz/newslearn/internal/cache"
	"github.com/danielmtz/newslearn/internal/config"
	"github.com/danielmtz/newslearn/internal/downloader"
	"github.com/danielmtz/newslearn/internal/handlers"
	"github.com/danielmtz/newslearn/internal/logger"
	"github.com/danielmtz/newslearn/internal/processor"
	"github.com/danielmtz/newslearn/internal/quota"
	"github.com/danielmtz/newslearn/internal/sources"
	"github.com/danielmtz/newslearn/internal/storage"
	"github.com/danielmtz/newslearn/internal/store"
	"github.com/danielmtz/newslearn/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	appLogger := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	if err := os.MkdirAll(cfg.Paths.DataDir, 0755); err != nil {
		log.Fatalf("Failed to create data dir: %v", err)
	}

	db, err := store.NewSQLiteDB(filepath.Join(cfg.Paths.DataDir, "tasks.db"))
	if err != nil {
		appLogger.Error("Failed to init task store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	tiers := quota.NewTierConfig(cfg.Tasks.TiersFile, appLogger)
	catalog := sources.NewCatalog(cfg.Tasks.SourcesFile, appLogger)

	ledger, err := quota.NewLedger(cfg.Paths.DataDir, tiers, appLogger)
	if err != nil {
		appLogger.Error("Failed to init quota ledger", "error", err)
		os.Exit(1)
	}

	index, err := cache.NewIndex(cfg.Paths.DataDir, appLogger)
	if err != nil {
		appLogger.Error("Failed to init cache index", "error", err)
		os.Exit(1)
	}

	remote := ""
	if cfg.Storage.EnableRemote {
		remote = cfg.Storage.RcloneRemote
	}
	sm, err := storage.NewManager(storage.Options{
		LocalPath:    cfg.Paths.TempDir,
		QuotaBytes:   cfg.Storage.QuotaBytes(),
		CacheTTL:     cfg.Storage.CacheTTL(),
		RcloneRemote: remote,
	}, index, appLogger)
	if err != nil {
		appLogger.Error("Failed to init storage manager", "error", err)
		os.Exit(1)
	}

	dl := downloader.NewYtdlp(cfg.Media.YtdlpPath, appLogger)
	proc := processor.NewFFmpeg(cfg.Media.FFmpegPath, appLogger)

	coordinator := worker.NewCoordinator(db, ledger, index, sm, dl, proc, worker.Options{
		MaxConcurrent: cfg.Tasks.MaxConcurrent,
		PollInterval:  cfg.Tasks.PollInterval,
		DefaultFormat: cfg.Media.DefaultFormat,
		WhisperModel:  cfg.Media.WhisperModel,
	}, appLogger)
	coordinator.Start()
	defer coordinator.Stop()

	taskService := app.NewTaskService(db, ledger, catalog, dl,
		cfg.Tasks.MaxConcurrent, cfg.Media.DefaultFormat, appLogger)

	// Periodic maintenance: storage sweep plus finished-task retention.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Storage.MaintenanceSchedule, func() {
		sm.RunMaintenance()
		if _, err := taskService.CleanupFinishedTasks(cfg.Tasks.RetentionDuration()); err != nil {
			appLogger.Error("Task retention cleanup failed", "error", err)
		}
	}); err != nil {
		appLogger.Error("Invalid maintenance schedule", "schedule", cfg.Storage.MaintenanceSchedule, "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	h := handlers.NewHandler(taskService, ledger, tiers, catalog, sm, cfg.Server.APIKey, appLogger)
	h.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		appLogger.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	appLogger.Info("Server exiting")
}
