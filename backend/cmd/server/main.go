package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/BioHazard786/Huddle/backend/internal/bus"
	"github.com/BioHazard786/Huddle/backend/internal/config"
	"github.com/BioHazard786/Huddle/backend/internal/presence"
	"github.com/BioHazard786/Huddle/backend/internal/server"
	"github.com/BioHazard786/Huddle/backend/internal/signaling"
	"github.com/BioHazard786/Huddle/internal/logging"
)

func main() {
	cfg := config.Load()

	logger := logging.Init(logging.Options{
		Level:        cfg.LogLevel,
		DefaultLevel: zerolog.InfoLevel,
		Pretty:       cfg.IsDevelopment(),
		Output:       os.Stdout,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []signaling.Option{signaling.WithLogger(logger)}

	// Optional event mirror
	var mirror *bus.Mirror
	if cfg.RedisURL != "" {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		m, err := bus.Dial(dialCtx, cfg.RedisURL, logger)
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		mirror = m
		go mirror.Run(ctx)
		opts = append(opts, signaling.WithEventSink(mirror))
		logger.Info().Msg("room event mirror enabled")
	}

	hub := signaling.NewHub(presence.NewStore(), opts...)
	go hub.Run()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.New(cfg, hub, logger, mirror != nil).Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting signaling server")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	hub.Stop()

	if mirror != nil {
		if err := mirror.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing redis")
		}
	}

	logger.Info().Msg("server stopped")
}
