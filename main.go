package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/surerank/seo-analyzer/analyzer"
	"github.com/surerank/seo-analyzer/config"
	"github.com/surerank/seo-analyzer/linkcheck"
	"github.com/surerank/seo-analyzer/logging"
	"github.com/surerank/seo-analyzer/meta"
	"github.com/surerank/seo-analyzer/scheduler"
	"github.com/surerank/seo-analyzer/server"
	"github.com/surerank/seo-analyzer/settings"
	"github.com/surerank/seo-analyzer/stats"
	"github.com/surerank/seo-analyzer/store"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, config.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	config.LoadEnv()
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}
	config.SetupGinMode()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	siteSettings := settings.Default()
	if cfg.SettingsPath != "" {
		if siteSettings, err = settings.Load(cfg.SettingsPath); err != nil {
			return err
		}
	}

	statsStorage, err := stats.NewStorage(cfg.DataDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := statsStorage.Shutdown(); err != nil {
			logger.Error("Failed to save statistics", "error", err)
		}
	}()
	statsStorage.Cleanup(cfg.StatsRetainMonths)

	siteCache := analyzer.NewSiteCache(analyzer.SiteDeps{Settings: siteSettings}, cfg.SiteCacheTTL, statsStorage)
	defer siteCache.Shutdown()

	// One-shot audit needs no database.
	if cfg.AuditURL != "" {
		return audit(cfg.AuditURL, siteCache, statsStorage, logger)
	}

	db, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return err
	}
	defer db.Close()

	linkOpts := []linkcheck.Option{
		linkcheck.WithConcurrency(cfg.LinkCheckConcurrency),
		linkcheck.WithCacheTTL(cfg.LinkCacheTTL),
		linkcheck.WithStats(statsStorage),
	}
	if cfg.LinkRate > 0 {
		linkOpts = append(linkOpts, linkcheck.WithRateLimit(cfg.LinkRate, cfg.LinkCheckConcurrency))
	}

	deps := analyzer.Deps{
		Settings: siteSettings,
		Resolver: meta.NewResolver(siteSettings, db),
		Store:    db,
		Stats:    statsStorage,
		Logger:   logger,
	}
	siteService := analyzer.NewSiteService(siteCache, db, statsStorage, logger)

	handler := server.NewHandler(server.Deps{
		Store:     db,
		Posts:     analyzer.NewPostAnalyzer(deps, linkcheck.New(linkOpts...)),
		Terms:     analyzer.NewTermAnalyzer(deps),
		Site:      siteService,
		SiteCache: siteCache,
		Stats:     statsStorage,
	})
	router := server.NewRouter(handler, server.Options{
		CORSOrigins: cfg.CORSOrigins,
		RateLimit:   cfg.RateLimit,
		RateBurst:   cfg.RateBurst,
		Logger:      logger,
		Stats:       statsStorage,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	audits, err := scheduler.New(cfg.AuditSchedule, siteService, logger)
	if err != nil {
		return err
	}
	audits.Start(ctx)
	defer audits.Stop()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "addr", "http://localhost:"+cfg.Port, "audit_schedule", cfg.AuditSchedule)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down server gracefully")
	case err := <-serverErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

// audit runs a single site audit and prints the result set as JSON.
func audit(rawURL string, cache *analyzer.SiteCache, statsStorage *stats.Storage, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	rs, err := analyzer.NewSiteService(cache, nil, statsStorage, logger).Analyze(ctx, rawURL, true)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rs)
}
