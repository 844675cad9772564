// Package docker provides the Docker command catalogue for fleet hosts.
//
// Client wraps Docker CLI semantics; the executor.Runner handles how and
// where commands run (pooled SSH session or the local control socket).
// Input shaping and rejection happen upstream in the API layer — this
// package assumes its string arguments are already validated.
package docker

import (
	"context"
	"fmt"
	"io"

	"github.com/fleetdock/fleetdock/internal/executor"
	"github.com/fleetdock/fleetdock/internal/remote"
)

// Client runs Docker CLI operations against one fleet host.
type Client struct {
	runner executor.Runner
	host   remote.Host
}

// New creates a Docker client for host, executing through runner.
func New(runner executor.Runner, host remote.Host) *Client {
	return &Client{runner: runner, host: host}
}

// Host returns the client's host identity.
func (c *Client) Host() string {
	return c.host.Identity()
}

// Exec runs an arbitrary docker command. The args are passed directly to "docker <args...>".
func (c *Client) Exec(ctx context.Context, args ...string) (string, error) {
	return c.runner.Execute(ctx, c.host, "docker", args...)
}

// ─── Docker daemon ───────────────────────────────────────

// Ping checks connectivity to the host's Docker daemon.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.runner.Execute(ctx, c.host, "docker", "info", "--format", "{{.ID}}")
	return err
}

// Version returns the daemon version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	return c.runner.Execute(ctx, c.host, "docker", "version", "--format", "{{.Server.Version}}")
}

// ─── Compose operations ─────────────────────────────────

func composeFile(projectDir string) string {
	return projectDir + "/docker-compose.yml"
}

// ComposeUp runs docker compose up -d.
func (c *Client) ComposeUp(ctx context.Context, projectDir string) (string, error) {
	return c.runner.Execute(ctx, c.host, "docker", "compose", "-f", composeFile(projectDir), "up", "-d")
}

// ComposeDown runs docker compose down.
func (c *Client) ComposeDown(ctx context.Context, projectDir string, removeVolumes bool) (string, error) {
	args := []string{"compose", "-f", composeFile(projectDir), "down"}
	if removeVolumes {
		args = append(args, "-v")
	}
	return c.runner.Execute(ctx, c.host, "docker", args...)
}

// ComposeStart runs docker compose start.
func (c *Client) ComposeStart(ctx context.Context, projectDir string) (string, error) {
	return c.runner.Execute(ctx, c.host, "docker", "compose", "-f", composeFile(projectDir), "start")
}

// ComposeStop runs docker compose stop.
func (c *Client) ComposeStop(ctx context.Context, projectDir string) (string, error) {
	return c.runner.Execute(ctx, c.host, "docker", "compose", "-f", composeFile(projectDir), "stop")
}

// ComposeRestart runs docker compose restart.
func (c *Client) ComposeRestart(ctx context.Context, projectDir string) (string, error) {
	return c.runner.Execute(ctx, c.host, "docker", "compose", "-f", composeFile(projectDir), "restart")
}

// ComposeLogs returns logs for the given compose project.
func (c *Client) ComposeLogs(ctx context.Context, projectDir string, tail int) (string, error) {
	return c.runner.Execute(ctx, c.host, "docker", "compose", "-f", composeFile(projectDir), "logs", "--tail", fmt.Sprintf("%d", tail))
}

// ComposeLogsStream returns a streaming reader following compose logs.
// The caller must close the reader to return the session to the pool.
func (c *Client) ComposeLogsStream(ctx context.Context, projectDir string, tail int) (io.ReadCloser, error) {
	return c.runner.Stream(ctx, c.host, "docker", "compose", "-f", composeFile(projectDir), "logs", "--tail", fmt.Sprintf("%d", tail), "-f")
}

// ComposeLs lists compose projects in JSON format.
func (c *Client) ComposeLs(ctx context.Context) (string, error) {
	return c.runner.Execute(ctx, c.host, "docker", "compose", "ls", "--format", "json")
}

// ─── Image operations ────────────────────────────────────

// ImageList returns images in JSON format.
func (c *Client) ImageList(ctx context.Context) (string, error) {
	return c.runner.Execute(ctx, c.host, "docker", "image", "ls", "--format", "json")
}

// ImagePull pulls an image by name.
func (c *Client) ImagePull(ctx context.Context, name string) (string, error) {
	return c.runner.Execute(ctx, c.host, "docker", "pull", name)
}

// ImageRemove removes an image by ID.
func (c *Client) ImageRemove(ctx context.Context, id string) (string, error) {
	return c.runner.Execute(ctx, c.host, "docker", "image", "rm", id)
}

// ImagePrune removes unused images.
func (c *Client) ImagePrune(ctx context.Context) (string, error) {
	return c.runner.Execute(ctx, c.host, "docker", "image", "prune", "-f")
}

// ─── Container operations ────────────────────────────────

// ContainerList returns all containers in JSON format.
func (c *Client) ContainerList(ctx context.Context) (string, error) {
	return c.runner.Execute(ctx, c.host, "docker", "ps", "-a", "--format", "json")
}

// ContainerInspect returns detailed info for a container.
func (c *Client) ContainerInspect(ctx context.Context, id string) (string, error) {
	return c.runner.Execute(ctx, c.host, "docker", "inspect", id)
}

// ContainerStats returns one-shot stats for all containers in JSON format.
func (c *Client) ContainerStats(ctx context.Context) (string, error) {
	return c.runner.Execute(ctx, c.host, "docker", "stats", "--no-stream", "--format", "json")
}

// ContainerLogs returns container logs with tail limit.
func (c *Client) ContainerLogs(ctx context.Context, id string, tail int) (string, error) {
	return c.runner.Execute(ctx, c.host, "docker", "logs", "--tail", fmt.Sprintf("%d", tail), id)
}

// ContainerLogsStream returns a streaming reader following a container's logs.
func (c *Client) ContainerLogsStream(ctx context.Context, id string, tail int) (io.ReadCloser, error) {
	return c.runner.Stream(ctx, c.host, "docker", "logs", "--tail", fmt.Sprintf("%d", tail), "-f", id)
}

// ContainerStart starts a container.
func (c *Client) ContainerStart(ctx context.Context, id string) (string, error) {
	return c.runner.Execute(ctx, c.host, "docker", "start", id)
}

// ContainerStop stops a container.
func (c *Client) ContainerStop(ctx context.Context, id string) (string, error) {
	return c.runner.Execute(ctx, c.host, "docker", "stop", id)
}

// ContainerRestart restarts a container.
func (c *Client) ContainerRestart(ctx context.Context, id string) (string, error) {
	return c.runner.Execute(ctx, c.host, "docker", "restart", id)
}

// ContainerRemove removes a container.
func (c *Client) ContainerRemove(ctx context.Context, id string) (string, error) {
	return c.runner.Execute(ctx, c.host, "docker", "rm", id)
}

// ─── Network operations ──────────────────────────────────

// NetworkList returns networks in JSON format.
func (c *Client) NetworkList(ctx context.Context) (string, error) {
	return c.runner.Execute(ctx, c.host, "docker", "network", "ls", "--format", "json")
}

// NetworkCreate creates a network.
func (c *Client) NetworkCreate(ctx context.Context, name string) (string, error) {
	return c.runner.Execute(ctx, c.host, "docker", "network", "create", name)
}

// NetworkRemove removes a network.
func (c *Client) NetworkRemove(ctx context.Context, id string) (string, error) {
	return c.runner.Execute(ctx, c.host, "docker", "network", "rm", id)
}

// ─── Volume operations ───────────────────────────────────

// VolumeList returns volumes in JSON format.
func (c *Client) VolumeList(ctx context.Context) (string, error) {
	return c.runner.Execute(ctx, c.host, "docker", "volume", "ls", "--format", "json")
}

// VolumeRemove removes a volume.
func (c *Client) VolumeRemove(ctx context.Context, id string) (string, error) {
	return c.runner.Execute(ctx, c.host, "docker", "volume", "rm", id)
}

// VolumePrune removes unused volumes.
func (c *Client) VolumePrune(ctx context.Context) (string, error) {
	return c.runner.Execute(ctx, c.host, "docker", "volume", "prune", "-f")
}
