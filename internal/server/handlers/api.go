// Package handlers implements the fleetdock HTTP API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/fleetdock/fleetdock/internal/compose"
	"github.com/fleetdock/fleetdock/internal/docker"
	"github.com/fleetdock/fleetdock/internal/executor"
	"github.com/fleetdock/fleetdock/internal/inventory"
	"github.com/fleetdock/fleetdock/internal/pool"
	"github.com/fleetdock/fleetdock/internal/remote"
	"github.com/fleetdock/fleetdock/internal/terminal"
)

// API bundles the dependencies shared by all request handlers.
type API struct {
	Runner    executor.Runner
	Stats     func() pool.Stats
	Inventory *inventory.Inventory
	Discovery *compose.Discovery
	Queue     *asynq.Client
	Terminal  terminal.Connector
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

// respondError maps the error taxonomy onto HTTP statuses: remote command
// failures are the caller's problem (422), transport and credential
// failures are upstream problems (502), a saturated pool is 503, and a
// client-side timeout is 504.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var cmdErr *remote.CommandError
	var toErr *remote.TimeoutError
	var capErr *pool.CapacityError
	switch {
	case errors.As(err, &cmdErr):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &toErr):
		status = http.StatusGatewayTimeout
	case errors.As(err, &capErr), errors.Is(err, pool.ErrPoolClosed):
		status = http.StatusServiceUnavailable
	case isTransport(err):
		status = http.StatusBadGateway
	case errors.Is(err, docker.ErrForbiddenPath):
		status = http.StatusBadRequest
	}

	respondJSON(w, status, errorResponse{Error: err.Error()})
}

func isTransport(err error) bool {
	var credErr *remote.CredentialError
	var connErr *remote.ConnectError
	return errors.As(err, &credErr) || errors.As(err, &connErr)
}

// host resolves the {host} URL parameter against the inventory. A false
// return means the response has already been written.
func (a *API) host(w http.ResponseWriter, r *http.Request) (remote.Host, bool) {
	identity := chi.URLParam(r, "host")
	h, ok := a.Inventory.Get(identity)
	if !ok {
		respondJSON(w, http.StatusNotFound, errorResponse{Error: "unknown host: " + identity})
		return remote.Host{}, false
	}
	return h, true
}

func (a *API) docker(h remote.Host) *docker.Client {
	return docker.New(a.Runner, h)
}
