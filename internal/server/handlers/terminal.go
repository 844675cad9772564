package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/fleetdock/fleetdock/internal/terminal"
)

// controlMessage is the out-of-band JSON sent as text frames; raw
// keyboard bytes travel as binary frames.
type controlMessage struct {
	Type string `json:"type"`
	Rows uint16 `json:"rows,omitempty"`
	Cols uint16 `json:"cols,omitempty"`
}

// Terminal bridges a WebSocket to an interactive PTY on a fleet host.
// Query parameters: host (required), container (optional: opens a shell
// inside the container instead of on the host).
func (a *API) HandleTerminal(w http.ResponseWriter, r *http.Request) {
	identity := r.URL.Query().Get("host")
	host, ok := a.Inventory.Get(identity)
	if !ok {
		respondJSON(w, http.StatusNotFound, errorResponse{Error: "unknown host: " + identity})
		return
	}

	opts := terminal.Options{}
	if container := r.URL.Query().Get("container"); container != "" {
		opts.Command = "docker exec -it " + container + " sh"
	}

	sess, err := a.Terminal.Connect(r.Context(), host, opts)
	if err != nil {
		respondError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		sess.Close()
		log.Error().Err(err).Msg("websocket upgrade")
		return
	}

	id := fmt.Sprintf("%s-%d", identity, time.Now().UnixNano())
	terminal.Register(id, sess)
	defer func() {
		terminal.Unregister(id)
		_ = sess.Close()
		_ = conn.Close()
	}()

	// PTY -> WebSocket
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 4096)
		for {
			n, err := sess.Read(buf)
			if n > 0 {
				if werr := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	// WebSocket -> PTY
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		terminal.Touch(id)

		if msgType == websocket.TextMessage {
			var ctrl controlMessage
			if json.Unmarshal(msg, &ctrl) == nil && ctrl.Type == "resize" {
				if err := sess.Resize(ctrl.Rows, ctrl.Cols); err != nil {
					log.Debug().Err(err).Msg("terminal resize")
				}
				continue
			}
		}
		if _, err := sess.Write(msg); err != nil {
			break
		}
	}

	<-done
	log.Info().Str("host", identity).Msg("terminal session closed")
}
