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

	"github.com/courier-analytics/api/internal/analytics"
	"github.com/courier-analytics/api/internal/app"
	"github.com/courier-analytics/api/internal/archive"
	"github.com/courier-analytics/api/internal/cache"
	"github.com/courier-analytics/api/internal/config"
	"github.com/courier-analytics/api/internal/db"
	"github.com/courier-analytics/api/internal/handlers"
	"github.com/courier-analytics/api/internal/ingest"
	"github.com/courier-analytics/api/internal/store"
	"github.com/courier-analytics/api/internal/store/pgstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("load config", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.LogDebug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	importOpts := []ingest.Option{ingest.WithMaxRows(cfg.ImportMaxRows)}
	var engineOpts []analytics.Option
	var invalidator ingest.Invalidator

	if cfg.RedisURL != "" {
		client, err := cache.Dial(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		c := cache.New(client, "analytics", cfg.CacheTTL, logger)
		engineOpts = append(engineOpts, analytics.WithCache(c))
		importOpts = append(importOpts, ingest.WithInvalidator(c))
		invalidator = c
	}

	if cfg.ArchiveBucket != "" {
		archiver, err := archive.NewFromEnv(ctx, archive.Config{
			Bucket:  cfg.ArchiveBucket,
			Prefix:  cfg.ArchivePrefix,
			Region:  cfg.AWSRegion,
			Profile: cfg.AWSProfile,
		})
		if err != nil {
			logger.Error("configure archive", "error", err)
			os.Exit(1)
		}
		importOpts = append(importOpts, ingest.WithArchiver(archiver))
	}

	importer := ingest.NewImporter(st, logger, importOpts...)
	engine := analytics.New(st, logger, engineOpts...)
	h := handlers.NewServer(cfg, st, importer, engine, invalidator, logger)

	router, err := app.NewRouter(cfg, h, logger)
	if err != nil {
		logger.Error("build router", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	go func() {
		logger.Info("api_started", "addr", cfg.Addr, "store", cfg.StoreDriver, "cache", cfg.RedisURL != "", "archive", cfg.ArchiveBucket != "")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return db.NewMemoryStore(), func() {}, nil
	case config.DriverPostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return pgstore.New(db.OpenDB(pool), cfg.StoreTimeout), pool.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
