package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fleetdock/fleetdock/internal/config"
	"github.com/fleetdock/fleetdock/internal/executor"
	"github.com/fleetdock/fleetdock/internal/inventory"
	"github.com/fleetdock/fleetdock/internal/pool"
	"github.com/fleetdock/fleetdock/internal/remote"
	"github.com/fleetdock/fleetdock/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	setupLogging(cfg)

	inv, err := inventory.Load(cfg.InventoryPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.InventoryPath).Msg("load inventory")
	}
	log.Info().Int("hosts", inv.Len()).Str("path", cfg.InventoryPath).Msg("inventory loaded")

	dialer := &remote.Dialer{
		KnownHostsPath: cfg.KnownHostsPath,
		DockerHost:     cfg.DockerHost,
	}
	p := pool.New(cfg.Pool, dialer)
	svc := executor.New(p, cfg.CommandTimeout)

	srv, err := server.New(cfg, svc, inv)
	if err != nil {
		log.Fatal().Err(err).Msg("create server")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(fmt.Sprintf(":%d", cfg.Port))
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}

	// Tear down pooled SSH connections last so in-flight requests can
	// finish over them during the drain window.
	svc.Close()
	log.Info().Msg("stopped")
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("service", "fleetdock").Str("version", cfg.Version).Logger()
}
