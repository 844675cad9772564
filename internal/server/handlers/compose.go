package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/fleetdock/fleetdock/internal/audit"
	"github.com/fleetdock/fleetdock/internal/worker"
)

// ListProjects returns the compose projects discovered on one host,
// served from the TTL cache when fresh.
func (a *API) ListProjects(w http.ResponseWriter, r *http.Request) {
	host, ok := a.host(w, r)
	if !ok {
		return
	}
	projects, err := a.Discovery.Discover(r.Context(), host)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, projects)
}

type composeRequest struct {
	ProjectDir    string `json:"project_dir"`
	RemoveVolumes bool   `json:"remove_volumes,omitempty"`
}

func decodeComposeRequest(w http.ResponseWriter, r *http.Request) (composeRequest, bool) {
	var req composeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProjectDir == "" {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "project_dir is required"})
		return composeRequest{}, false
	}
	return req, true
}

// ComposeUp enqueues a compose up; image pulls make it long-running.
func (a *API) ComposeUp(w http.ResponseWriter, r *http.Request) {
	host, ok := a.host(w, r)
	if !ok {
		return
	}
	req, ok := decodeComposeRequest(w, r)
	if !ok {
		return
	}
	task, err := worker.NewComposeUpTask(host.Identity(), req.ProjectDir)
	if err != nil {
		respondError(w, err)
		return
	}
	info, err := a.Queue.Enqueue(task)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, taskResponse{TaskID: info.ID, Queue: info.Queue, Status: "pending"})
}

// ComposeDown enqueues a compose down.
func (a *API) ComposeDown(w http.ResponseWriter, r *http.Request) {
	host, ok := a.host(w, r)
	if !ok {
		return
	}
	req, ok := decodeComposeRequest(w, r)
	if !ok {
		return
	}
	task, err := worker.NewComposeDownTask(host.Identity(), req.ProjectDir, req.RemoveVolumes)
	if err != nil {
		respondError(w, err)
		return
	}
	info, err := a.Queue.Enqueue(task)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, taskResponse{TaskID: info.ID, Queue: info.Queue, Status: "pending"})
}

// ComposeAction runs the quick synchronous lifecycle verbs: start, stop,
// restart.
func (a *API) ComposeAction(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		host, ok := a.host(w, r)
		if !ok {
			return
		}
		req, ok := decodeComposeRequest(w, r)
		if !ok {
			return
		}

		ctx := r.Context()
		d := a.docker(host)
		start := time.Now()
		var err error
		switch action {
		case "start":
			_, err = d.ComposeStart(ctx, req.ProjectDir)
		case "stop":
			_, err = d.ComposeStop(ctx, req.ProjectDir)
		case "restart":
			_, err = d.ComposeRestart(ctx, req.ProjectDir)
		}

		audit.Write(audit.Entry{
			Actor:    "api",
			Action:   "compose." + action,
			Host:     host.Identity(),
			Status:   auditStatus(err),
			Duration: time.Since(start),
			Err:      err,
		})
		if err != nil {
			respondError(w, err)
			return
		}
		a.Discovery.Invalidate(host)
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ComposeLogs returns the tail of a compose project's logs.
func (a *API) ComposeLogs(w http.ResponseWriter, r *http.Request) {
	host, ok := a.host(w, r)
	if !ok {
		return
	}
	dir := r.URL.Query().Get("project_dir")
	if dir == "" {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "project_dir is required"})
		return
	}
	out, err := a.docker(host).ComposeLogs(r.Context(), dir, tailParam(r))
	if err != nil {
		respondError(w, err)
		return
	}
	writeRaw(w, out)
}

// ComposeConfig reads the project's docker-compose.yml.
func (a *API) ComposeConfig(w http.ResponseWriter, r *http.Request) {
	host, ok := a.host(w, r)
	if !ok {
		return
	}
	dir := r.URL.Query().Get("project_dir")
	content, err := a.docker(host).ComposeConfigRead(r.Context(), dir)
	if err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write([]byte(content))
}

// ComposeConfigUpdate replaces the project's docker-compose.yml.
func (a *API) ComposeConfigUpdate(w http.ResponseWriter, r *http.Request) {
	host, ok := a.host(w, r)
	if !ok {
		return
	}
	dir := r.URL.Query().Get("project_dir")
	content, err := io.ReadAll(io.LimitReader(r.Body, 2<<20))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "read body: " + err.Error()})
		return
	}

	start := time.Now()
	err = a.docker(host).ComposeConfigWrite(r.Context(), dir, string(content))
	audit.Write(audit.Entry{
		Actor:    "api",
		Action:   "compose.config_update",
		Host:     host.Identity(),
		Status:   auditStatus(err),
		Duration: time.Since(start),
		Err:      err,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
