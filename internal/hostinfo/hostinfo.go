// Package hostinfo provides the host diagnostics catalogue: one-shot
// system commands whose output is returned verbatim for agent rendering.
package hostinfo

import (
	"context"

	"github.com/fleetdock/fleetdock/internal/executor"
	"github.com/fleetdock/fleetdock/internal/remote"
)

// Client runs diagnostic commands against one fleet host.
type Client struct {
	runner executor.Runner
	host   remote.Host
}

// New creates a diagnostics client for host, executing through runner.
func New(runner executor.Runner, host remote.Host) *Client {
	return &Client{runner: runner, host: host}
}

// Uptime returns system uptime and load (uptime).
func (c *Client) Uptime(ctx context.Context) (string, error) {
	return c.runner.Execute(ctx, c.host, "uptime")
}

// Kernel returns the kernel identification string (uname -a).
func (c *Client) Kernel(ctx context.Context) (string, error) {
	return c.runner.Execute(ctx, c.host, "uname", "-a")
}

// OSRelease returns the /etc/os-release contents.
func (c *Client) OSRelease(ctx context.Context) (string, error) {
	return c.runner.Execute(ctx, c.host, "cat", "/etc/os-release")
}

// DiskUsage returns filesystem usage (df -h).
func (c *Client) DiskUsage(ctx context.Context) (string, error) {
	return c.runner.Execute(ctx, c.host, "df", "-h")
}

// Memory returns memory usage (free -m).
func (c *Client) Memory(ctx context.Context) (string, error) {
	return c.runner.Execute(ctx, c.host, "free", "-m")
}

// LoadAverage returns the raw load averages (cat /proc/loadavg).
func (c *Client) LoadAverage(ctx context.Context) (string, error) {
	return c.runner.Execute(ctx, c.host, "cat", "/proc/loadavg")
}

// DockerVersion returns the Docker server version on the host.
func (c *Client) DockerVersion(ctx context.Context) (string, error) {
	return c.runner.Execute(ctx, c.host, "docker", "version", "--format", "{{.Server.Version}}")
}
