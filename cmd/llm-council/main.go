// Command llm-council serves the LLM council API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/greenstevester/llm-council/internal/api"
	"github.com/greenstevester/llm-council/internal/config"
	"github.com/greenstevester/llm-council/internal/council"
	"github.com/greenstevester/llm-council/internal/llm"
	"github.com/greenstevester/llm-council/internal/logging"
	"github.com/greenstevester/llm-council/internal/storage"
	"github.com/greenstevester/llm-council/internal/webfetch"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "llm-council: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, notes, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	for _, note := range notes {
		logger.Info(note)
	}

	if !cfg.LogDevelopment {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := storage.Open(cfg, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close storage", zap.Error(err))
		}
	}()

	client := llm.NewClient(llm.Options{
		APIURL:    cfg.OpenRouterAPIURL,
		APIKey:    cfg.OpenRouterAPIKey,
		Timeout:   cfg.ModelQueryTimeout,
		RateLimit: cfg.ModelRateLimit,
		RateBurst: cfg.ModelRateBurst,
		Logger:    logger,
	})

	orchestrator := council.NewOrchestrator(client, store, council.Settings{
		ResponseMaxLength:  cfg.ResponseMaxLength,
		SynthesisMaxLength: cfg.SynthesisMaxLength,
		FallbackChairman:   cfg.FallbackChairman,
		MaxConcurrency:     cfg.MaxConcurrency,
		PersistTimeout:     cfg.PersistTimeout,
	}, logger)

	fetcher := webfetch.New(webfetch.Options{
		CacheTTL: cfg.FetchCacheTTL,
		Logger:   logger,
	})

	srv := api.New(api.Deps{
		Config:  cfg,
		Council: orchestrator,
		Store:   store,
		Titles:  client,
		Fetcher: fetcher,
		Logger:  logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting LLM Council backend",
			zap.String("addr", cfg.ListenAddr),
			zap.Strings("council_models", cfg.CouncilModels),
			zap.String("storage", cfg.StorageBackend))
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// in-flight streams finish their council before Shutdown returns
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown incomplete", zap.Error(err))
	}
	srv.Wait()
	return nil
}
