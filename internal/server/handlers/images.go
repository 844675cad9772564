package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fleetdock/fleetdock/internal/audit"
	"github.com/fleetdock/fleetdock/internal/worker"
)

// ListImages returns the host's images as docker's JSON lines.
func (a *API) ListImages(w http.ResponseWriter, r *http.Request) {
	host, ok := a.host(w, r)
	if !ok {
		return
	}
	out, err := a.docker(host).ImageList(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	writeRaw(w, out)
}

type pullRequest struct {
	Image string `json:"image"`
}

type taskResponse struct {
	TaskID string `json:"task_id"`
	Queue  string `json:"queue"`
	Status string `json:"status"`
}

// PullImage enqueues an image pull; pulls can take minutes, so the call
// returns a task ID immediately.
func (a *API) PullImage(w http.ResponseWriter, r *http.Request) {
	host, ok := a.host(w, r)
	if !ok {
		return
	}
	var req pullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Image == "" {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "image is required"})
		return
	}

	task, err := worker.NewImagePullTask(host.Identity(), req.Image)
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

// RemoveImage removes one image by ID.
func (a *API) RemoveImage(w http.ResponseWriter, r *http.Request) {
	host, ok := a.host(w, r)
	if !ok {
		return
	}
	start := time.Now()
	_, err := a.docker(host).ImageRemove(r.Context(), chi.URLParam(r, "id"))
	audit.Write(audit.Entry{
		Actor:    "api",
		Action:   "image.remove",
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

// PruneImages removes unused images on the host.
func (a *API) PruneImages(w http.ResponseWriter, r *http.Request) {
	host, ok := a.host(w, r)
	if !ok {
		return
	}
	out, err := a.docker(host).ImagePrune(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	writeRaw(w, out)
}
