package pool

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetdock/fleetdock/internal/remote"
)

// healthLoop sweeps idle entries on a fixed interval until CloseAll.
func (p *Pool) healthLoop() {
	defer close(p.healthDone)

	ticker := time.NewTicker(p.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopHealth:
			return
		case <-ticker.C:
			p.sweep()
		}
	}
}

// sweep evicts idle entries that have aged past IdleTimeout, then probes
// the remaining idle sessions and evicts the ones that fail. Active
// entries are never touched — only the holder may release or discard them.
func (p *Pool) sweep() {
	type probe struct {
		key     string
		session remote.Session
	}

	now := time.Now()
	var stale []remote.Session
	var probes []probe

	p.mu.Lock()
	for key, e := range p.entries {
		if e.state != stateIdle {
			continue
		}
		if now.Sub(e.lastUsedAt) >= p.cfg.IdleTimeout {
			delete(p.entries, key)
			if e.session != nil {
				stale = append(stale, e.session)
			}
			log.Debug().Str("host", key).Dur("idle", now.Sub(e.lastUsedAt)).Msg("pool: evicted idle session")
			continue
		}
		probes = append(probes, probe{key: key, session: e.session})
	}
	if len(stale) > 0 {
		p.cond.Broadcast()
	}
	p.mu.Unlock()

	for _, s := range stale {
		_ = s.Close()
	}

	// Liveness probes run off-lock; each result is re-checked against the
	// entry table because the session may have been re-acquired meanwhile.
	for _, pr := range probes {
		if pr.session.Alive() {
			continue
		}

		p.mu.Lock()
		e, ok := p.entries[pr.key]
		if ok && e.state == stateIdle && e.session == pr.session {
			delete(p.entries, pr.key)
			p.cond.Broadcast()
		} else {
			ok = false
		}
		p.mu.Unlock()

		if ok {
			_ = pr.session.Close()
			log.Warn().Str("host", pr.key).Msg("pool: evicted dead session after failed liveness probe")
		}
	}
}
