package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/babelmark/babelmark/internal/api"
	"github.com/babelmark/babelmark/internal/backend"
	"github.com/babelmark/babelmark/internal/config"
	"github.com/babelmark/babelmark/internal/session"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.OpenAIAPIKey == "" {
		log.Warn("OPENAI_API_KEY not set; clients must send x-openai-key")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stats := backend.NewLLMStats(time.Hour)

	// Initialize background sessions.
	sessions := session.NewManager(session.ManagerConfig{
		Workers:      cfg.SessionWorkers,
		MaxQueueSize: cfg.MaxQueueSize,
		TTL:          cfg.SessionTTL,
	}, log)
	sessions.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(sessions, stats, log, cfg)

	httpServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     srv,
		ReadTimeout: 30 * time.Second,
		// Translation streams clear their own write deadline.
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown: stop accepting requests first, then the sessions.
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown", "error", err)
		}

		sessions.Stop()
	}()

	log.Info("starting babelmark", "port", cfg.Port, "model", cfg.OpenAIModel, "endpoint", backend.ResolveURL(cfg.OpenAIBaseURL, cfg.OpenAIPath))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	<-stopped
	log.Info("stopped")
}
