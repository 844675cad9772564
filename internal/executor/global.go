package executor

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/fleetdock/fleetdock/internal/config"
	"github.com/fleetdock/fleetdock/internal/pool"
	"github.com/fleetdock/fleetdock/internal/remote"
)

// Legacy process-wide accessor. Call sites that predate explicit
// dependency injection reach the shared Service through Default(); new
// code should be handed a *Service instead. The singleton registers a
// signal handler that closes the pool on SIGINT/SIGTERM.

var (
	defaultOnce sync.Once
	defaultSvc  *Service
)

// Default returns the process-wide Service, building it from environment
// configuration on first use.
func Default() *Service {
	defaultOnce.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			log.Error().Err(err).Msg("executor: default config load failed, using defaults")
			cfg = &config.Config{Pool: pool.DefaultConfig()}
		}

		dialer := &remote.Dialer{
			KnownHostsPath: cfg.KnownHostsPath,
			DockerHost:     cfg.DockerHost,
		}
		defaultSvc = New(pool.New(cfg.Pool, dialer), cfg.CommandTimeout)

		// Shutdown hook for call sites that never see main's lifecycle.
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-ch
			CloseDefault()
		}()
	})
	return defaultSvc
}

// CloseDefault closes the shared pool if the singleton was ever built.
// Safe to call multiple times.
func CloseDefault() {
	if defaultSvc != nil {
		defaultSvc.Close()
	}
}
