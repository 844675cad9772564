// Package server wires the HTTP API, the asynq worker, and their shared
// fleet dependencies.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/fleetdock/fleetdock/internal/compose"
	"github.com/fleetdock/fleetdock/internal/config"
	"github.com/fleetdock/fleetdock/internal/executor"
	"github.com/fleetdock/fleetdock/internal/inventory"
	"github.com/fleetdock/fleetdock/internal/server/handlers"
	"github.com/fleetdock/fleetdock/internal/server/middleware"
	"github.com/fleetdock/fleetdock/internal/terminal"
	"github.com/fleetdock/fleetdock/internal/worker"
)

type Server struct {
	cfg         *config.Config
	router      chi.Router
	httpServer  *http.Server
	asynqClient *asynq.Client
	asynqServer *asynq.Server
	tasks       *worker.Handler
}

// New wires the server around an execution service and loaded inventory.
func New(cfg *config.Config, svc *executor.Service, inv *inventory.Inventory) (*Server, error) {
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr: cfg.RedisAddr,
	})

	asynqServer := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	s := &Server{
		cfg:         cfg,
		asynqClient: asynqClient,
		asynqServer: asynqServer,
	}

	discovery := compose.NewDiscovery(svc, cfg.CacheDir, cfg.CacheTTL)
	s.tasks = worker.NewHandler(svc, inv, discovery)
	api := &handlers.API{
		Runner:    svc,
		Stats:     svc.Stats,
		Inventory: inv,
		Discovery: discovery,
		Queue:     asynqClient,
		Terminal:  &terminal.Dialer{KnownHostsPath: cfg.KnownHostsPath},
	}

	s.setupRouter(api)
	return s, nil
}

func (s *Server) setupRouter(api *handlers.API) {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health checks
	r.Get("/health", handlers.Health)
	r.Get("/ready", api.Ready)

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Auth(s.cfg))
		r.Use(middleware.RateLimit(rate.Limit(20), 40))

		r.Get("/hosts", api.ListHosts)
		r.Get("/pool/stats", api.PoolStats)

		r.Route("/hosts/{host}", func(r chi.Router) {
			r.Post("/exec", api.Exec)
			r.Get("/info", api.HostInfo)

			r.Route("/containers", func(r chi.Router) {
				r.Get("/", api.ListContainers)
				r.Get("/{id}", api.InspectContainer)
				r.Post("/{id}/{action}", api.ContainerAction)
				r.Get("/{id}/logs", api.ContainerLogs)
				r.Get("/{id}/logs/stream", api.ContainerLogsStream)
			})

			r.Route("/images", func(r chi.Router) {
				r.Get("/", api.ListImages)
				r.Post("/pull", api.PullImage)
				r.Post("/prune", api.PruneImages)
				r.Delete("/{id}", api.RemoveImage)
			})

			r.Route("/compose", func(r chi.Router) {
				r.Get("/", api.ListProjects)
				r.Post("/up", api.ComposeUp)
				r.Post("/down", api.ComposeDown)
				r.Post("/start", api.ComposeAction("start"))
				r.Post("/stop", api.ComposeAction("stop"))
				r.Post("/restart", api.ComposeAction("restart"))
				r.Get("/logs", api.ComposeLogs)
				r.Get("/config", api.ComposeConfig)
				r.Put("/config", api.ComposeConfigUpdate)
			})
		})
	})

	// Terminal WebSocket; token auth still applies.
	r.With(middleware.Auth(s.cfg)).Get("/terminal", api.HandleTerminal)

	s.router = r
}

// Start runs the HTTP server and the asynq worker. It blocks until the
// HTTP server stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		mux := asynq.NewServeMux()
		s.tasks.Register(mux)

		log.Info().Msg("starting task worker")
		if err := s.asynqServer.Run(mux); err != nil {
			log.Error().Err(err).Msg("task worker error")
		}
	}()

	log.Info().Str("addr", addr).Msg("starting http server")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down http server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}

	log.Info().Msg("shutting down task worker")
	s.asynqServer.Shutdown()

	return s.asynqClient.Close()
}
