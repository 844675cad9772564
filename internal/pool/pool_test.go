package pool

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fleetdock/fleetdock/internal/remote"
)

// fakeSession is a scripted remote.Session for pool tests.
type fakeSession struct {
	mu     sync.Mutex
	alive  bool
	closed bool
}

func (s *fakeSession) Run(ctx context.Context, commandLine string) (remote.Result, error) {
	return remote.Result{Stdout: "ok"}, nil
}

func (s *fakeSession) Stream(ctx context.Context, commandLine string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (s *fakeSession) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive && !s.closed
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeConnector hands out fakeSessions and can be scripted to fail or
// stall per host.
type fakeConnector struct {
	mu         sync.Mutex
	dials      int
	connectErr map[string]error
	delay      time.Duration
	sessions   []*fakeSession
}

func (c *fakeConnector) Connect(ctx context.Context, host remote.Host, timeout time.Duration) (remote.Session, error) {
	c.mu.Lock()
	c.dials++
	err := c.connectErr[host.Identity()]
	delay := c.delay
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, &remote.ConnectError{Host: host.Identity(), Err: ctx.Err()}
		case <-time.After(delay):
		}
	}

	s := &fakeSession{alive: true}
	c.mu.Lock()
	c.sessions = append(c.sessions, s)
	c.mu.Unlock()
	return s, nil
}

func (c *fakeConnector) dialCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dials
}

func testHost(name string) remote.Host {
	return remote.Host{Name: name, Addr: name + ".example", User: "ops", KeyPath: "/dev/null"}
}

// newTestPool builds a pool with health checks off so sweeps only run when
// a test calls them explicitly.
func newTestPool(t *testing.T, cfg Config, c remote.Connector) *Pool {
	t.Helper()
	cfg.HealthChecks = false
	p := New(cfg, c)
	t.Cleanup(p.CloseAll)
	return p
}

// ---- Get / Release -------------------------------------------------------

func TestPool_Get_ReusesIdleSession(t *testing.T) {
	conn := &fakeConnector{}
	p := newTestPool(t, Config{MaxConnections: 1}, conn)
	host := testHost("web-01")

	s1, err := p.Get(context.Background(), host)
	if err != nil {
		t.Fatalf("first Get: %v", err)
	}
	p.Release(host, s1)

	s2, err := p.Get(context.Background(), host)
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	p.Release(host, s2)

	if s1 != s2 {
		t.Error("second Get returned a different session; expected reuse")
	}
	if got := conn.dialCount(); got != 1 {
		t.Errorf("dials = %d, want 1", got)
	}

	st := p.Stats()
	if st.PoolHits != 1 || st.PoolMisses != 1 {
		t.Errorf("hits/misses = %d/%d, want 1/1", st.PoolHits, st.PoolMisses)
	}
	if st.TotalConnections != 1 {
		t.Errorf("total = %d, want 1", st.TotalConnections)
	}
}

func TestPool_Get_DistinctHostsNeverShareEntries(t *testing.T) {
	conn := &fakeConnector{}
	p := newTestPool(t, Config{MaxConnections: 2}, conn)

	s1, err := p.Get(context.Background(), testHost("h1"))
	if err != nil {
		t.Fatalf("Get h1: %v", err)
	}
	s2, err := p.Get(context.Background(), testHost("h2"))
	if err != nil {
		t.Fatalf("Get h2: %v", err)
	}
	if s1 == s2 {
		t.Error("h1 and h2 share a session")
	}

	st := p.Stats()
	if st.TotalConnections != 2 {
		t.Errorf("total = %d, want 2", st.TotalConnections)
	}
	if st.ActiveConnections != 2 {
		t.Errorf("active = %d, want 2", st.ActiveConnections)
	}
	if st.PoolMisses != 2 {
		t.Errorf("misses = %d, want 2", st.PoolMisses)
	}
}

func TestPool_Get_CredentialErrorCreatesNoEntry(t *testing.T) {
	credErr := &remote.CredentialError{Host: "h1", KeyPath: "/missing/key", Err: errors.New("no such file")}
	conn := &fakeConnector{connectErr: map[string]error{"h1": credErr}}
	p := newTestPool(t, Config{}, conn)

	_, err := p.Get(context.Background(), testHost("h1"))
	var ce *remote.CredentialError
	if !errors.As(err, &ce) {
		t.Fatalf("Get error = %v, want CredentialError", err)
	}

	st := p.Stats()
	if st.TotalConnections != 0 {
		t.Errorf("total after failed connect = %d, want 0", st.TotalConnections)
	}
	if st.PoolMisses != 0 {
		t.Errorf("misses after failed connect = %d, want 0", st.PoolMisses)
	}
}

func TestPool_Get_ConnectTimeout(t *testing.T) {
	conn := &fakeConnector{delay: time.Second}
	p := newTestPool(t, Config{ConnectTimeout: 20 * time.Millisecond}, conn)

	start := time.Now()
	_, err := p.Get(context.Background(), testHost("slow"))
	var ce *remote.ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("Get error = %v, want ConnectError", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Get took %s, expected prompt timeout", elapsed)
	}
	if st := p.Stats(); st.TotalConnections != 0 {
		t.Errorf("total after connect timeout = %d, want 0", st.TotalConnections)
	}
}

func TestPool_Get_WaitsForActiveSameHost(t *testing.T) {
	conn := &fakeConnector{}
	p := newTestPool(t, Config{MaxConnections: 1}, conn)
	host := testHost("busy")

	s1, err := p.Get(context.Background(), host)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	got := make(chan remote.Session, 1)
	go func() {
		s, err := p.Get(context.Background(), host)
		if err != nil {
			t.Errorf("waiting Get: %v", err)
		}
		got <- s
	}()

	// The second Get must block while the entry is active.
	select {
	case <-got:
		t.Fatal("second Get returned while session was still held")
	case <-time.After(50 * time.Millisecond):
	}

	p.Release(host, s1)

	select {
	case s2 := <-got:
		if s2 != s1 {
			t.Error("waiter received a different session; expected the released one")
		}
		p.Release(host, s2)
	case <-time.After(time.Second):
		t.Fatal("second Get did not wake after release")
	}

	if st := p.Stats(); st.PoolHits != 1 {
		t.Errorf("hits = %d, want 1", st.PoolHits)
	}
}

func TestPool_Get_ContextCanceledWhileWaiting(t *testing.T) {
	conn := &fakeConnector{}
	p := newTestPool(t, Config{MaxConnections: 1}, conn)
	host := testHost("busy")

	s1, err := p.Get(context.Background(), host)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer p.Release(host, s1)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = p.Get(ctx, host)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("waiting Get error = %v, want context.DeadlineExceeded", err)
	}
}

// ---- Capacity ------------------------------------------------------------

func TestPool_Get_EvictsLRUIdleAtCapacity(t *testing.T) {
	conn := &fakeConnector{}
	p := newTestPool(t, Config{MaxConnections: 2}, conn)

	s1, _ := p.Get(context.Background(), testHost("old"))
	p.Release(testHost("old"), s1)
	time.Sleep(5 * time.Millisecond) // ensure distinct lastUsedAt ordering
	s2, _ := p.Get(context.Background(), testHost("fresh"))
	p.Release(testHost("fresh"), s2)

	if _, err := p.Get(context.Background(), testHost("new")); err != nil {
		t.Fatalf("Get at capacity: %v", err)
	}

	st := p.Stats()
	if st.TotalConnections != 2 {
		t.Errorf("total = %d, want 2 (LRU evicted)", st.TotalConnections)
	}

	// "old" was least recently used; its next Get must be a miss.
	missesBefore := p.Stats().PoolMisses
	s4, err := p.Get(context.Background(), testHost("fresh"))
	if err != nil {
		t.Fatalf("Get fresh: %v", err)
	}
	p.Release(testHost("fresh"), s4)
	if p.Stats().PoolMisses != missesBefore {
		t.Error("fresh was evicted; expected old to be the LRU victim")
	}
}

func TestPool_Get_CapacityErrorWhenNothingEvictable(t *testing.T) {
	conn := &fakeConnector{}
	p := newTestPool(t, Config{MaxConnections: 1}, conn)

	s1, err := p.Get(context.Background(), testHost("h1"))
	if err != nil {
		t.Fatalf("Get h1: %v", err)
	}
	defer p.Release(testHost("h1"), s1)

	_, err = p.Get(context.Background(), testHost("h2"))
	var capErr *CapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("Get h2 error = %v, want CapacityError", err)
	}
	if capErr.Max != 1 {
		t.Errorf("CapacityError.Max = %d, want 1", capErr.Max)
	}
}

// ---- Release edge cases --------------------------------------------------

func TestPool_Release_ForeignSessionIsNoOp(t *testing.T) {
	conn := &fakeConnector{}
	p := newTestPool(t, Config{}, conn)
	host := testHost("h1")

	s1, err := p.Get(context.Background(), host)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	// Wrong session: entry must stay active.
	p.Release(host, &fakeSession{alive: true})
	if st := p.Stats(); st.ActiveConnections != 1 {
		t.Errorf("active after foreign release = %d, want 1", st.ActiveConnections)
	}

	p.Release(host, s1)
	// Double release: already idle, must not corrupt state.
	p.Release(host, s1)
	if st := p.Stats(); st.IdleConnections != 1 || st.TotalConnections != 1 {
		t.Errorf("after double release: idle=%d total=%d, want 1/1", st.IdleConnections, st.TotalConnections)
	}
}

// ---- CloseHost / CloseAll ------------------------------------------------

func TestPool_CloseHost_RemovesRegardlessOfState(t *testing.T) {
	conn := &fakeConnector{}
	p := newTestPool(t, Config{}, conn)
	host := testHost("h1")

	s1, err := p.Get(context.Background(), host)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	p.CloseHost(host.Identity())
	if !s1.(*fakeSession).isClosed() {
		t.Error("session not closed by CloseHost")
	}
	if st := p.Stats(); st.TotalConnections != 0 {
		t.Errorf("total after CloseHost = %d, want 0", st.TotalConnections)
	}

	// Re-acquisition establishes a fresh session.
	s2, err := p.Get(context.Background(), host)
	if err != nil {
		t.Fatalf("Get after CloseHost: %v", err)
	}
	if s2 == s1 {
		t.Error("Get returned the closed session")
	}
}

func TestPool_CloseAll_Idempotent(t *testing.T) {
	conn := &fakeConnector{}
	p := New(Config{HealthChecks: false}, conn)

	s1, _ := p.Get(context.Background(), testHost("h1"))
	p.Release(testHost("h1"), s1)
	s2, _ := p.Get(context.Background(), testHost("h2"))
	_ = s2

	p.CloseAll()
	p.CloseAll()

	for i, s := range conn.sessions {
		if !s.isClosed() {
			t.Errorf("session %d not closed by CloseAll", i)
		}
	}
	if _, err := p.Get(context.Background(), testHost("h1")); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("Get after CloseAll = %v, want ErrPoolClosed", err)
	}
	if st := p.Stats(); st.TotalConnections != 0 {
		t.Errorf("total after CloseAll = %d, want 0", st.TotalConnections)
	}
}

// ---- Health sweep --------------------------------------------------------

func TestPool_Sweep_EvictsExpiredIdle(t *testing.T) {
	conn := &fakeConnector{}
	p := newTestPool(t, Config{IdleTimeout: 50 * time.Millisecond}, conn)
	host := testHost("h1")

	s1, err := p.Get(context.Background(), host)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	p.Release(host, s1)

	// Age the entry past the idle timeout, then run one sweep tick.
	p.mu.Lock()
	p.entries[host.Identity()].lastUsedAt = time.Now().Add(-time.Minute)
	p.mu.Unlock()
	p.sweep()

	if st := p.Stats(); st.TotalConnections != 0 {
		t.Fatalf("total after sweep = %d, want 0", st.TotalConnections)
	}
	if !s1.(*fakeSession).isClosed() {
		t.Error("expired session not closed")
	}

	// Next Get for the host is a pool miss.
	missesBefore := p.Stats().PoolMisses
	if _, err := p.Get(context.Background(), host); err != nil {
		t.Fatalf("Get after eviction: %v", err)
	}
	if p.Stats().PoolMisses != missesBefore+1 {
		t.Error("Get after eviction was not a pool miss")
	}
}

func TestPool_Sweep_EvictsDeadIdleSession(t *testing.T) {
	conn := &fakeConnector{}
	p := newTestPool(t, Config{IdleTimeout: time.Hour}, conn)
	host := testHost("h1")

	s1, err := p.Get(context.Background(), host)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	p.Release(host, s1)

	s1.(*fakeSession).mu.Lock()
	s1.(*fakeSession).alive = false
	s1.(*fakeSession).mu.Unlock()
	p.sweep()

	if st := p.Stats(); st.TotalConnections != 0 {
		t.Errorf("total after dead-session sweep = %d, want 0", st.TotalConnections)
	}
}

func TestPool_Sweep_NeverTouchesActive(t *testing.T) {
	conn := &fakeConnector{}
	p := newTestPool(t, Config{IdleTimeout: time.Nanosecond}, conn)
	host := testHost("h1")

	s1, err := p.Get(context.Background(), host)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer p.Release(host, s1)

	p.mu.Lock()
	p.entries[host.Identity()].lastUsedAt = time.Now().Add(-time.Hour)
	p.mu.Unlock()
	p.sweep()

	st := p.Stats()
	if st.TotalConnections != 1 || st.ActiveConnections != 1 {
		t.Errorf("active entry touched by sweep: total=%d active=%d", st.TotalConnections, st.ActiveConnections)
	}
	if s1.(*fakeSession).isClosed() {
		t.Error("active session closed by sweep")
	}
}
