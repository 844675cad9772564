package handlers

import "net/http"

type healthResponse struct {
	Status string `json:"status"`
}

// Health reports process liveness.
func Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// Ready reports readiness. The pool dials lazily, so a loaded inventory
// is the only hard dependency.
func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if a.Inventory == nil || a.Inventory.Len() == 0 {
		respondJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "no hosts configured"})
		return
	}
	respondJSON(w, http.StatusOK, healthResponse{Status: "ready"})
}
