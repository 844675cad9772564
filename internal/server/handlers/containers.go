package handlers

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/fleetdock/fleetdock/internal/audit"
)

const defaultLogTail = 200

// ListContainers returns the host's containers as docker's JSON lines.
func (a *API) ListContainers(w http.ResponseWriter, r *http.Request) {
	host, ok := a.host(w, r)
	if !ok {
		return
	}
	out, err := a.docker(host).ContainerList(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	writeRaw(w, out)
}

// InspectContainer returns docker inspect output for one container.
func (a *API) InspectContainer(w http.ResponseWriter, r *http.Request) {
	host, ok := a.host(w, r)
	if !ok {
		return
	}
	out, err := a.docker(host).ContainerInspect(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeRaw(w, out)
}

// ContainerAction starts, stops, restarts, or removes a container
// depending on the {action} URL parameter.
func (a *API) ContainerAction(w http.ResponseWriter, r *http.Request) {
	host, ok := a.host(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	action := chi.URLParam(r, "action")

	ctx := r.Context()
	d := a.docker(host)
	start := time.Now()
	var err error
	switch action {
	case "start":
		_, err = d.ContainerStart(ctx, id)
	case "stop":
		_, err = d.ContainerStop(ctx, id)
	case "restart":
		_, err = d.ContainerRestart(ctx, id)
	case "remove":
		_, err = d.ContainerRemove(ctx, id)
	default:
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown action: " + action})
		return
	}

	audit.Write(audit.Entry{
		Actor:    "api",
		Action:   "container." + action,
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

// ContainerLogs returns the last N lines of a container's logs.
func (a *API) ContainerLogs(w http.ResponseWriter, r *http.Request) {
	host, ok := a.host(w, r)
	if !ok {
		return
	}
	out, err := a.docker(host).ContainerLogs(r.Context(), chi.URLParam(r, "id"), tailParam(r))
	if err != nil {
		respondError(w, err)
		return
	}
	writeRaw(w, out)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // auth happens at the token layer
}

// ContainerLogsStream upgrades to a WebSocket and follows a container's
// logs until the client disconnects.
func (a *API) ContainerLogsStream(w http.ResponseWriter, r *http.Request) {
	host, ok := a.host(w, r)
	if !ok {
		return
	}

	stream, err := a.docker(host).ContainerLogsStream(r.Context(), chi.URLParam(r, "id"), tailParam(r))
	if err != nil {
		respondError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		stream.Close()
		log.Error().Err(err).Msg("websocket upgrade")
		return
	}
	defer conn.Close()
	// Closing the stream returns the pooled session.
	defer stream.Close()

	// Reader goroutine detects client disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	buf := make([]byte, 4096)
	for {
		select {
		case <-done:
			return
		default:
		}
		n, err := stream.Read(buf)
		if n > 0 {
			if werr := conn.WriteMessage(websocket.TextMessage, buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				log.Debug().Err(err).Msg("log stream ended")
			}
			return
		}
	}
}

func tailParam(r *http.Request) int {
	if v, err := strconv.Atoi(r.URL.Query().Get("tail")); err == nil && v > 0 {
		return v
	}
	return defaultLogTail
}

func writeRaw(w http.ResponseWriter, out string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(out))
}
