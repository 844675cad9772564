// Package audit provides a unified helper for recording fleet operations.
//
// Records are emitted as structured zerolog events on a dedicated
// "audit" logger; shipping them anywhere durable is a log-pipeline
// concern, not this package's.
package audit

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Entry holds all fields for a single audit record.
// A named struct avoids the swap-bug risk of consecutive string parameters.
type Entry struct {
	// Actor identifies who triggered the operation ("api", "worker",
	// "cli", or an authenticated client ID).
	Actor string
	// Action is a dot-namespaced verb, e.g. "compose.up", "container.stop".
	Action string
	// Host is the fleet host identity the operation targeted.
	Host string
	// CommandLine is the literal command that ran, when one did.
	CommandLine string
	// Status must be one of StatusPending, StatusSuccess, or StatusFailed.
	Status string
	// Duration is how long the operation took. Zero when not measured.
	Duration time.Duration
	// Err carries the failure when Status is StatusFailed.
	Err error
}

// Write records an entry. It never fails the calling operation: invalid
// entries are logged at warn level and dropped.
func Write(e Entry) {
	switch e.Status {
	case StatusPending, StatusSuccess, StatusFailed:
	default:
		log.Warn().Str("status", e.Status).Str("action", e.Action).Msg("audit: invalid status, entry dropped")
		return
	}

	ev := auditEvent(e.Status)
	ev.Str("actor", e.Actor).
		Str("action", e.Action).
		Str("host", e.Host).
		Str("status", e.Status)
	if e.CommandLine != "" {
		ev.Str("command", e.CommandLine)
	}
	if e.Duration > 0 {
		ev.Dur("duration", e.Duration)
	}
	if e.Err != nil {
		ev.Err(e.Err)
	}
	ev.Msg("audit")
}

func auditEvent(status string) *zerolog.Event {
	logger := log.With().Str("component", "audit").Logger()
	if status == StatusFailed {
		return logger.Warn()
	}
	return logger.Info()
}
