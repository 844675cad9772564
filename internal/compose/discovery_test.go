package compose

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fleetdock/fleetdock/internal/remote"
)

type countingRunner struct {
	mu    sync.Mutex
	calls int
	out   string
	err   error
}

func (r *countingRunner) Execute(ctx context.Context, host remote.Host, command string, args ...string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.out, r.err
}

func (r *countingRunner) Stream(ctx context.Context, host remote.Host, command string, args ...string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

const lsArrayOutput = `[{"Name":"shop","Status":"running(3)","ConfigFiles":"/srv/shop/docker-compose.yml"},{"Name":"blog","Status":"exited(1)","ConfigFiles":"/srv/blog/docker-compose.yml"}]`

func testHost() remote.Host {
	return remote.Host{Name: "web-01", Addr: "10.0.0.1", User: "ops"}
}

func TestDiscovery_ServesFromCacheWithinTTL(t *testing.T) {
	runner := &countingRunner{out: lsArrayOutput}
	d := NewDiscovery(runner, t.TempDir(), time.Hour)

	first, err := d.Discover(context.Background(), testHost())
	if err != nil {
		t.Fatalf("first Discover: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("projects = %d, want 2", len(first))
	}

	second, err := d.Discover(context.Background(), testHost())
	if err != nil {
		t.Fatalf("second Discover: %v", err)
	}
	if len(second) != 2 {
		t.Fatalf("cached projects = %d, want 2", len(second))
	}
	if runner.calls != 1 {
		t.Errorf("remote calls = %d, want 1 (second served from cache)", runner.calls)
	}
}

func TestDiscovery_ExpiredCacheRefetches(t *testing.T) {
	runner := &countingRunner{out: lsArrayOutput}
	d := NewDiscovery(runner, t.TempDir(), time.Nanosecond)

	if _, err := d.Discover(context.Background(), testHost()); err != nil {
		t.Fatalf("first Discover: %v", err)
	}
	time.Sleep(time.Millisecond)
	if _, err := d.Discover(context.Background(), testHost()); err != nil {
		t.Fatalf("second Discover: %v", err)
	}
	if runner.calls != 2 {
		t.Errorf("remote calls = %d, want 2 (cache expired)", runner.calls)
	}
}

func TestDiscovery_InvalidateDropsCache(t *testing.T) {
	runner := &countingRunner{out: lsArrayOutput}
	d := NewDiscovery(runner, t.TempDir(), time.Hour)

	if _, err := d.Discover(context.Background(), testHost()); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	d.Invalidate(testHost())
	if _, err := d.Discover(context.Background(), testHost()); err != nil {
		t.Fatalf("Discover after invalidate: %v", err)
	}
	if runner.calls != 2 {
		t.Errorf("remote calls = %d, want 2 (invalidated)", runner.calls)
	}
}

func TestDiscovery_CacheIsPerHost(t *testing.T) {
	runner := &countingRunner{out: lsArrayOutput}
	d := NewDiscovery(runner, t.TempDir(), time.Hour)

	h1 := remote.Host{Name: "h1", Addr: "10.0.0.1", User: "ops"}
	h2 := remote.Host{Name: "h2", Addr: "10.0.0.2", User: "ops"}

	if _, err := d.Discover(context.Background(), h1); err != nil {
		t.Fatalf("Discover h1: %v", err)
	}
	if _, err := d.Discover(context.Background(), h2); err != nil {
		t.Fatalf("Discover h2: %v", err)
	}
	if runner.calls != 2 {
		t.Errorf("remote calls = %d, want 2 (separate caches)", runner.calls)
	}
}

func TestParseProjects(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"empty", "", 0},
		{"empty array", "[]", 0},
		{"array", lsArrayOutput, 2},
		{"line-delimited", "{\"Name\":\"shop\",\"Status\":\"running(3)\",\"ConfigFiles\":\"/srv/shop/docker-compose.yml\"}\n{\"Name\":\"blog\",\"Status\":\"exited(1)\",\"ConfigFiles\":\"/srv/blog/docker-compose.yml\"}", 2},
	}
	for _, tt := range tests {
		got, err := parseProjects(tt.in)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if len(got) != tt.want {
			t.Errorf("%s: projects = %d, want %d", tt.name, len(got), tt.want)
		}
	}

	if _, err := parseProjects("not-json"); err == nil {
		t.Error("expected error for malformed output")
	}
}

func TestProjectDir(t *testing.T) {
	p := Project{ConfigFiles: "/srv/shop/docker-compose.yml,/srv/shop/override.yml"}
	if got := p.Dir(); got != "/srv/shop" {
		t.Errorf("Dir() = %q, want %q", got, "/srv/shop")
	}
}
