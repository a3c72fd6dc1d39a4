package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dcollien/Chatitat/internal/api"
	"github.com/dcollien/Chatitat/internal/bus"
	"github.com/dcollien/Chatitat/internal/chat"
	"github.com/dcollien/Chatitat/internal/config"
	"github.com/dcollien/Chatitat/internal/store"
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

	// Initialize the shared store and fan-out bus. Without a Redis URL the
	// server runs on in-process implementations: fine for development, no
	// cross-process fan-out.
	var (
		chatStore store.ChatStore
		fanout    bus.Bus
	)
	if cfg.RedisURL != "" {
		redisStore, err := store.NewRedisStore(ctx, cfg.RedisURL, cfg.Keys)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis store connection failed")
		}
		defer redisStore.Close()

		redisBus, err := bus.NewRedisBus(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis bus connection failed")
		}
		defer redisBus.Close()

		chatStore = redisStore
		fanout = redisBus
		logger.Info().Msg("connected to Redis")
	} else {
		chatStore = store.NewMemoryStore()
		fanout = bus.NewMemoryBus()
		logger.Warn().Msg("no REDIS_URL configured, running in single-process mode")
	}

	if cfg.OpenMode() {
		logger.Warn().Msg("no CHAT_SECRET configured, sessions are unauthenticated")
	}

	broker := &chat.Broker{
		Store:       chatStore,
		Bus:         fanout,
		Secret:      cfg.Secret,
		Window:      cfg.SessionWindow,
		TopicPrefix: cfg.Keys.Topic,
		LeaveText:   cfg.LeaveText,
		Logger:      logger,
	}

	// Create router
	router := api.NewRouter(logger, broker)

	// Create server. No blanket read/write timeouts: websocket connections
	// are long-lived and manage their own deadlines in the pumps.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting chatitat server")

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
