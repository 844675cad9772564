package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fleetdock/fleetdock/internal/audit"
	"github.com/fleetdock/fleetdock/internal/hostinfo"
	"github.com/fleetdock/fleetdock/internal/remote"
)

// allowedExecCommands is the catalogue surface exposed through the raw
// exec endpoint. Anything else is rejected before touching a session.
var allowedExecCommands = map[string]bool{
	"docker":   true,
	"uptime":   true,
	"uname":    true,
	"df":       true,
	"free":     true,
	"hostname": true,
}

// timeoutRunner is satisfied by *executor.Service; fakes that do not
// implement it fall back to the default timeout.
type timeoutRunner interface {
	ExecuteTimeout(ctx context.Context, host remote.Host, timeout time.Duration, command string, args ...string) (string, error)
}

type hostSummary struct {
	Name     string `json:"name"`
	Addr     string `json:"addr,omitempty"`
	Protocol string `json:"protocol"`
}

// ListHosts returns the configured fleet in inventory order.
func (a *API) ListHosts(w http.ResponseWriter, r *http.Request) {
	hosts := a.Inventory.Hosts()
	out := make([]hostSummary, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, hostSummary{Name: h.Identity(), Addr: h.Addr, Protocol: h.Protocol})
	}
	respondJSON(w, http.StatusOK, out)
}

// PoolStats exposes the connection pool counters.
func (a *API) PoolStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, a.Stats())
}

type execRequest struct {
	Command   string   `json:"command"`
	Args      []string `json:"args,omitempty"`
	TimeoutMS int      `json:"timeout_ms,omitempty"`
}

type execResponse struct {
	Output string `json:"output"`
}

// Exec runs one allow-listed command on a fleet host and returns its
// trimmed stdout.
func (a *API) Exec(w http.ResponseWriter, r *http.Request) {
	host, ok := a.host(w, r)
	if !ok {
		return
	}

	var req execRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if !allowedExecCommands[req.Command] {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "command not allowed: " + req.Command})
		return
	}

	ctx := r.Context()
	start := time.Now()
	var out string
	var err error
	if tr, ok := a.Runner.(timeoutRunner); ok && req.TimeoutMS > 0 {
		out, err = tr.ExecuteTimeout(ctx, host, time.Duration(req.TimeoutMS)*time.Millisecond, req.Command, req.Args...)
	} else {
		out, err = a.Runner.Execute(ctx, host, req.Command, req.Args...)
	}

	audit.Write(audit.Entry{
		Actor:       "api",
		Action:      "host.exec",
		Host:        host.Identity(),
		CommandLine: req.Command,
		Status:      auditStatus(err),
		Duration:    time.Since(start),
		Err:         err,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, execResponse{Output: out})
}

type hostInfoResponse struct {
	Uptime        string `json:"uptime,omitempty"`
	Kernel        string `json:"kernel,omitempty"`
	OSRelease     string `json:"os_release,omitempty"`
	DiskUsage     string `json:"disk_usage,omitempty"`
	Memory        string `json:"memory,omitempty"`
	LoadAverage   string `json:"load_average,omitempty"`
	DockerVersion string `json:"docker_version,omitempty"`
}

// HostInfo returns a diagnostics snapshot for one host. Individual probe
// failures surface as empty fields; the call only fails when every probe
// does.
func (a *API) HostInfo(w http.ResponseWriter, r *http.Request) {
	host, ok := a.host(w, r)
	if !ok {
		return
	}
	info := hostinfo.New(a.Runner, host)
	ctx := r.Context()

	var resp hostInfoResponse
	var firstErr error
	collect := func(dst *string, probe func(context.Context) (string, error)) {
		out, err := probe(ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		*dst = out
	}
	collect(&resp.Uptime, info.Uptime)
	collect(&resp.Kernel, info.Kernel)
	collect(&resp.OSRelease, info.OSRelease)
	collect(&resp.DiskUsage, info.DiskUsage)
	collect(&resp.Memory, info.Memory)
	collect(&resp.LoadAverage, info.LoadAverage)
	collect(&resp.DockerVersion, info.DockerVersion)

	if resp == (hostInfoResponse{}) && firstErr != nil {
		respondError(w, firstErr)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func auditStatus(err error) string {
	if err != nil {
		return audit.StatusFailed
	}
	return audit.StatusSuccess
}
