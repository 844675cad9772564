// Package pool maintains reusable remote sessions, one per host identity.
//
// Sessions are expensive to establish (key parsing + SSH handshake), so the
// pool keeps them alive between commands, bounds how many hosts hold one
// simultaneously, and evicts entries that go stale. All entry bookkeeping is
// confined to this package; callers only ever borrow sessions via Get and
// hand them back via Release.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetdock/fleetdock/internal/remote"
)

// Config fixes the pool's behavior at construction time.
type Config struct {
	// MaxConnections caps how many distinct host identities may hold a
	// live session at once.
	MaxConnections int
	// IdleTimeout evicts a session that has been unused this long.
	IdleTimeout time.Duration
	// ConnectTimeout bounds establishing a new session.
	ConnectTimeout time.Duration
	// HealthChecks enables the background sweep of idle entries.
	HealthChecks bool
	// HealthCheckInterval is the sweep period.
	HealthCheckInterval time.Duration
}

// DefaultConfig returns the baseline pool configuration.
func DefaultConfig() Config {
	return Config{
		MaxConnections:      5,
		IdleTimeout:         60 * time.Second,
		ConnectTimeout:      5 * time.Second,
		HealthChecks:        true,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Stats is a point-in-time snapshot of pool state. Hit/miss counters are
// monotonic; the connection counts are gauges.
type Stats struct {
	TotalConnections  int    `json:"total_connections"`
	IdleConnections   int    `json:"idle_connections"`
	ActiveConnections int    `json:"active_connections"`
	PoolHits          uint64 `json:"pool_hits"`
	PoolMisses        uint64 `json:"pool_misses"`
}

// ErrPoolClosed is returned by Get after CloseAll.
var ErrPoolClosed = errors.New("pool is closed")

// CapacityError reports that the pool is at MaxConnections with nothing
// evictable.
type CapacityError struct {
	Host string
	Max  int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("pool at capacity (%d) acquiring session for %s", e.Max, e.Host)
}

type entryState int

const (
	stateIdle entryState = iota
	stateActive
)

// entry is the pool's record of one session. session is nil while the
// initial connect is still in flight; such entries are Active so that
// concurrent Gets for the same host wait instead of double-dialing.
type entry struct {
	session    remote.Session
	state      entryState
	createdAt  time.Time
	lastUsedAt time.Time
}

// Pool owns a bounded set of sessions keyed by host identity.
type Pool struct {
	cfg       Config
	connector remote.Connector

	mu      sync.Mutex
	cond    *sync.Cond
	entries map[string]*entry
	hits    uint64
	misses  uint64
	closed  bool

	stopHealth chan struct{}
	healthDone chan struct{}
}

// New creates a Pool and, when enabled, starts its health-check loop.
// Zero-valued config fields fall back to DefaultConfig.
func New(cfg Config, connector remote.Connector) *Pool {
	def := DefaultConfig()
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = def.MaxConnections
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = def.HealthCheckInterval
	}

	p := &Pool{
		cfg:       cfg,
		connector: connector,
		entries:   make(map[string]*entry),
	}
	p.cond = sync.NewCond(&p.mu)

	if cfg.HealthChecks {
		p.stopHealth = make(chan struct{})
		p.healthDone = make(chan struct{})
		go p.healthLoop()
	}
	return p
}

// Get returns a live session for host, reusing an idle one when possible.
//
// When the host's only entry is currently active, Get blocks until it is
// released, evicted, or ctx is done. When the pool is at capacity, the
// least-recently-used idle entry of another host is evicted to make room;
// with nothing evictable, Get fails with a CapacityError.
func (p *Pool) Get(ctx context.Context, host remote.Host) (remote.Session, error) {
	key := host.Identity()

	// Wake waiters when the caller gives up.
	stop := context.AfterFunc(ctx, p.cond.Broadcast)
	defer stop()

	p.mu.Lock()
	for {
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		if err := ctx.Err(); err != nil {
			p.mu.Unlock()
			return nil, err
		}

		e, ok := p.entries[key]
		if !ok {
			break
		}
		if e.state == stateIdle {
			e.state = stateActive
			e.lastUsedAt = time.Now()
			p.hits++
			s := e.session
			p.mu.Unlock()
			return s, nil
		}
		// Single session per host: wait for the holder to release it.
		p.cond.Wait()
	}

	// No entry for this host — make room if needed, then reserve a slot
	// before dialing so concurrent Gets see the host as taken.
	if len(p.entries) >= p.cfg.MaxConnections {
		if !p.evictLRUIdleLocked() {
			p.mu.Unlock()
			return nil, &CapacityError{Host: key, Max: p.cfg.MaxConnections}
		}
	}
	now := time.Now()
	e := &entry{state: stateActive, createdAt: now, lastUsedAt: now}
	p.entries[key] = e
	p.mu.Unlock()

	connectCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()
	sess, err := p.connector.Connect(connectCtx, host, p.cfg.ConnectTimeout)

	p.mu.Lock()
	if err != nil {
		delete(p.entries, key)
		p.cond.Broadcast()
		p.mu.Unlock()
		return nil, err
	}
	if p.closed {
		delete(p.entries, key)
		p.mu.Unlock()
		_ = sess.Close()
		return nil, ErrPoolClosed
	}
	e.session = sess
	p.misses++
	p.mu.Unlock()

	log.Debug().Str("host", key).Msg("pool: session established")
	return sess, nil
}

// Release hands a session borrowed via Get back to the pool. Releasing a
// session that is not the host's active one is a no-op (logged — it
// indicates a caller bug), never a corruption.
func (p *Pool) Release(host remote.Host, session remote.Session) {
	key := host.Identity()

	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[key]
	if !ok || e.state != stateActive || e.session != session {
		log.Warn().Str("host", key).Msg("pool: release of session not actively held")
		return
	}
	e.state = stateIdle
	e.lastUsedAt = time.Now()
	p.cond.Broadcast()
}

// CloseHost forcibly disconnects and removes the entry for a host
// regardless of state. Used after a session is detected dead mid-command.
func (p *Pool) CloseHost(name string) {
	p.mu.Lock()
	e, ok := p.entries[name]
	if ok {
		delete(p.entries, name)
		p.cond.Broadcast()
	}
	p.mu.Unlock()

	if ok && e.session != nil {
		_ = e.session.Close()
		log.Debug().Str("host", name).Msg("pool: session force-closed")
	}
}

// CloseAll disconnects every entry, stops the health loop, and clears the
// pool. Idempotent; Get fails with ErrPoolClosed afterwards.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	sessions := make([]remote.Session, 0, len(p.entries))
	for _, e := range p.entries {
		if e.session != nil {
			sessions = append(sessions, e.session)
		}
	}
	p.entries = make(map[string]*entry)
	p.cond.Broadcast()
	p.mu.Unlock()

	if p.stopHealth != nil {
		close(p.stopHealth)
		<-p.healthDone
	}
	for _, s := range sessions {
		_ = s.Close()
	}
	log.Info().Int("sessions", len(sessions)).Msg("pool: closed")
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Stats{
		TotalConnections: len(p.entries),
		PoolHits:         p.hits,
		PoolMisses:       p.misses,
	}
	for _, e := range p.entries {
		switch e.state {
		case stateIdle:
			st.IdleConnections++
		case stateActive:
			st.ActiveConnections++
		}
	}
	return st
}

// evictLRUIdleLocked removes the least-recently-used idle entry to free a
// slot. Caller holds p.mu. Returns false when every entry is active.
func (p *Pool) evictLRUIdleLocked() bool {
	var (
		lruKey string
		lru    *entry
	)
	for key, e := range p.entries {
		if e.state != stateIdle {
			continue
		}
		if lru == nil || e.lastUsedAt.Before(lru.lastUsedAt) {
			lruKey, lru = key, e
		}
	}
	if lru == nil {
		return false
	}
	delete(p.entries, lruKey)
	p.cond.Broadcast()
	if s := lru.session; s != nil {
		// Close off-lock; a dead peer could make Close block on network I/O.
		go func() { _ = s.Close() }()
	}
	log.Debug().Str("host", lruKey).Msg("pool: evicted LRU idle session for capacity")
	return true
}
