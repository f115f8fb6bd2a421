package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/annodoc/internal/api"
	"github.com/dgallion1/annodoc/internal/cache"
	"github.com/dgallion1/annodoc/internal/config"
	"github.com/dgallion1/annodoc/internal/extract"
	"github.com/dgallion1/annodoc/internal/pathstore"
	"github.com/dgallion1/annodoc/internal/pipeline"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize clients.
	ps := pathstore.NewClient(cfg.PathstoreURL, cfg.PathstoreAPIKey)

	var c *cache.Cache
	if cfg.CachePath != "" {
		c, err = cache.Open(cfg.CachePath)
		if err != nil {
			log.Error("failed to open parse cache", "path", cfg.CachePath, "error", err)
			os.Exit(1)
		}
	}

	stats := extract.NewParseStats(cfg.JobTTL, cfg.StatsWindow)
	opts := []extract.Option{
		extract.WithStats(stats),
		extract.WithLogger(log),
		extract.Strict(cfg.StrictKinds),
		extract.HTML(cfg.RenderHTML),
	}
	if c != nil {
		opts = append(opts, extract.WithCache(c))
	}
	x := extract.New(opts...)

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(cfg, x, ps, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(orch, stats, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()
		ps.Close()
		if c != nil {
			if err := c.Close(); err != nil {
				log.Warn("cache close failed", "error", err)
			}
		}
	}()

	log.Info("starting annodoc", "port", cfg.Port, "workers", cfg.WorkerCount, "cache", cfg.CachePath != "")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	<-done
}
