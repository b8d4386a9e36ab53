package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/malosaaa/p2000mon/internal/api"
	"github.com/malosaaa/p2000mon/internal/config"
	"github.com/malosaaa/p2000mon/internal/coordinator"
	"github.com/malosaaa/p2000mon/internal/logging"
	"github.com/malosaaa/p2000mon/internal/metrics"
	"github.com/malosaaa/p2000mon/internal/scrape"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Config load failed: ", err)
	}

	// Initialize logger
	logger, err := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		log.Fatal("Logger init failed: ", err)
	}

	// Build the poll pipeline
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	fetcher := scrape.NewFetcher(cfg.BaseURL, cfg.FetchTimeout)
	manager, err := coordinator.NewManager(cfg, fetcher, m, logger)
	if err != nil {
		logger.Fatalf("Manager init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	manager.Start(ctx)

	// Start API server
	router := api.NewRouter(manager, fetcher, registry, logger, cfg)
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: router}
	go func() {
		logger.Infof("API started on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("API run failed: %v", err)
		}
	}()

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	logger.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API shutdown failed: %v", err)
	}
	if err := manager.Stop(shutdownCtx); err != nil {
		logger.Errorf("Scheduler stop failed: %v", err)
	}
	logger.Info("Service stopped")
}
