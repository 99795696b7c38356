package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/TheInfexted/livechat-cs-sub000/internal/api"
	"github.com/TheInfexted/livechat-cs-sub000/internal/autoreply"
	"github.com/TheInfexted/livechat-cs-sub000/internal/config"
	"github.com/TheInfexted/livechat-cs-sub000/internal/handlers"
	"github.com/TheInfexted/livechat-cs-sub000/internal/reaper"
	"github.com/TheInfexted/livechat-cs-sub000/internal/router"
	"github.com/TheInfexted/livechat-cs-sub000/internal/store"
	"github.com/TheInfexted/livechat-cs-sub000/internal/tenant"
	"github.com/TheInfexted/livechat-cs-sub000/internal/ws"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Initialize session store: PostgreSQL when configured, SQLite otherwise
	var sessions store.SessionStore
	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		logger.Info().Msg("running database migrations...")
		if err := pgStore.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Msg("connected to PostgreSQL")
		sessions = pgStore
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite session store")
		sessions = sqliteStore
	}
	defer sessions.Close()

	// Initialize Redis message log
	messages, err := store.NewRedisMessageStore(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer messages.Close()
	logger.Info().Msg("connected to Redis")

	// Wire the chat core
	registry := ws.NewRegistry(logger)
	resolver := tenant.NewResolver(sessions, messages, cfg.DefaultTenant, logger)
	replies := autoreply.New(sessions, messages, logger)
	rt := router.New(sessions, messages, resolver, registry, replies, logger)
	h := handlers.NewHandler(sessions, messages, resolver, registry, rt, logger)

	// Start the inactivity reaper
	rp := reaper.New(sessions, messages, resolver, registry,
		cfg.ReaperInterval, cfg.WaitingTimeout, cfg.ActiveTimeout, logger)
	if err := rp.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("reaper failed to start")
	}
	defer rp.Stop()

	// Create server
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     api.NewRouter(cfg, logger, h, messages),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: websocket connections outlive any sane value
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting livechat server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
