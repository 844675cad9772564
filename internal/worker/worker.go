package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/fleetdock/fleetdock/internal/audit"
	"github.com/fleetdock/fleetdock/internal/compose"
	"github.com/fleetdock/fleetdock/internal/docker"
	"github.com/fleetdock/fleetdock/internal/executor"
	"github.com/fleetdock/fleetdock/internal/inventory"
	"github.com/fleetdock/fleetdock/internal/remote"
)

// Handler processes queued Docker operations against fleet hosts.
type Handler struct {
	runner    executor.Runner
	inv       *inventory.Inventory
	discovery *compose.Discovery
}

// NewHandler creates a Handler. discovery may be nil when compose caching
// is disabled.
func NewHandler(runner executor.Runner, inv *inventory.Inventory, discovery *compose.Discovery) *Handler {
	return &Handler{runner: runner, inv: inv, discovery: discovery}
}

// Register attaches all task handlers to mux.
func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeComposeUp, h.HandleComposeUp)
	mux.HandleFunc(TypeComposeDown, h.HandleComposeDown)
	mux.HandleFunc(TypeImagePull, h.HandleImagePull)
}

func (h *Handler) HandleComposeUp(ctx context.Context, t *asynq.Task) error {
	var p ComposePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("compose:up payload: %w: %w", err, asynq.SkipRetry)
	}
	host, err := h.resolve(p.Host)
	if err != nil {
		return err
	}

	start := time.Now()
	_, err = docker.New(h.runner, host).ComposeUp(ctx, p.ProjectDir)
	h.finish("compose.up", host, p.ProjectDir, start, err)
	return err
}

func (h *Handler) HandleComposeDown(ctx context.Context, t *asynq.Task) error {
	var p ComposePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("compose:down payload: %w: %w", err, asynq.SkipRetry)
	}
	host, err := h.resolve(p.Host)
	if err != nil {
		return err
	}

	start := time.Now()
	_, err = docker.New(h.runner, host).ComposeDown(ctx, p.ProjectDir, p.RemoveVolumes)
	h.finish("compose.down", host, p.ProjectDir, start, err)
	return err
}

func (h *Handler) HandleImagePull(ctx context.Context, t *asynq.Task) error {
	var p ImagePullPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("image:pull payload: %w: %w", err, asynq.SkipRetry)
	}
	host, err := h.resolve(p.Host)
	if err != nil {
		return err
	}

	start := time.Now()
	_, err = docker.New(h.runner, host).ImagePull(ctx, p.Image)
	audit.Write(audit.Entry{
		Actor:    "worker",
		Action:   "image.pull",
		Host:     host.Identity(),
		Status:   status(err),
		Duration: time.Since(start),
		Err:      err,
	})
	return err
}

// resolve maps a host identity to its inventory descriptor. Unknown hosts
// are permanent failures; retrying will not make the host appear.
func (h *Handler) resolve(identity string) (remote.Host, error) {
	host, ok := h.inv.Get(identity)
	if !ok {
		return remote.Host{}, fmt.Errorf("unknown host %q: %w", identity, asynq.SkipRetry)
	}
	return host, nil
}

// finish records the audit entry for a compose mutation and drops the
// host's cached project listing so the next discovery reflects it.
func (h *Handler) finish(action string, host remote.Host, projectDir string, start time.Time, err error) {
	audit.Write(audit.Entry{
		Actor:    "worker",
		Action:   action,
		Host:     host.Identity(),
		Status:   status(err),
		Duration: time.Since(start),
		Err:      err,
	})
	log.Debug().Str("action", action).Str("project_dir", projectDir).Msg("compose task finished")
	if err == nil && h.discovery != nil {
		h.discovery.Invalidate(host)
	}
}

func status(err error) string {
	if err != nil {
		return audit.StatusFailed
	}
	return audit.StatusSuccess
}

// Retryable reports whether err should be retried by the queue. Credential
// and capacity failures are retried; malformed payloads are not.
func Retryable(err error) bool {
	return !errors.Is(err, asynq.SkipRetry)
}
