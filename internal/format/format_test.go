package format

import (
	"strings"
	"testing"
	"time"

	"github.com/fleetdock/fleetdock/internal/compose"
	"github.com/fleetdock/fleetdock/internal/pool"
	"github.com/fleetdock/fleetdock/internal/remote"
)

func TestContainers(t *testing.T) {
	out := `{"ID":"sha256:0123456789abcdef","Names":"shop-web-1","Image":"nginx:1.27","State":"running","Status":"Up 2 hours","Ports":"0.0.0.0:80->80/tcp"}
{"ID":"fedcba987654","Names":"shop-db-1","Image":"postgres:16","State":"exited","Status":"Exited (0) 3 days ago","Ports":""}`

	md, err := Containers(out)
	if err != nil {
		t.Fatalf("Containers: %v", err)
	}
	if !strings.Contains(md, "| 0123456789ab |") {
		t.Errorf("missing shortened ID in:\n%s", md)
	}
	if !strings.Contains(md, "shop-db-1") {
		t.Errorf("missing second row in:\n%s", md)
	}
	// Empty ports cell must render as a placeholder, not collapse.
	if !strings.Contains(md, "| - |") {
		t.Errorf("empty cell not padded in:\n%s", md)
	}
}

func TestContainers_MalformedLine(t *testing.T) {
	if _, err := Containers("{broken"); err == nil {
		t.Error("expected error for malformed JSON line")
	}
}

func TestContainers_Empty(t *testing.T) {
	md, err := Containers("")
	if err != nil {
		t.Fatalf("Containers: %v", err)
	}
	if md != "_none_\n" {
		t.Errorf("empty listing = %q, want %q", md, "_none_\n")
	}
}

func TestProjects(t *testing.T) {
	md := Projects([]compose.Project{
		{Name: "shop", Status: "running(3)", ConfigFiles: "/srv/shop/docker-compose.yml"},
	})
	if !strings.Contains(md, "| shop | running(3) | /srv/shop |") {
		t.Errorf("unexpected projects table:\n%s", md)
	}
}

func TestStats(t *testing.T) {
	got := Stats(pool.Stats{TotalConnections: 3, IdleConnections: 2, ActiveConnections: 1, PoolHits: 10, PoolMisses: 3})
	if !strings.Contains(got, "3 total, 2 idle, 1 active") {
		t.Errorf("stats rendering: %q", got)
	}
	if !strings.Contains(got, "10 hits, 3 misses") {
		t.Errorf("stats rendering: %q", got)
	}
}

func TestError_CommandFailure(t *testing.T) {
	got := Error(&remote.CommandError{
		Host:        "web-01",
		CommandLine: "docker stop abc",
		ExitCode:    1,
		Stderr:      "No such container: abc",
	})
	for _, want := range []string{"web-01", "exit 1", "docker stop abc", "No such container"} {
		if !strings.Contains(got, want) {
			t.Errorf("command failure rendering missing %q:\n%s", want, got)
		}
	}
}

func TestError_Timeout(t *testing.T) {
	got := Error(&remote.TimeoutError{Host: "web-01", CommandLine: "sleep 10", Timeout: 100 * time.Millisecond})
	if !strings.Contains(got, "timed out on web-01") || !strings.Contains(got, "sleep 10") {
		t.Errorf("timeout rendering: %q", got)
	}
}
