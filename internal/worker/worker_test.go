package worker

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fleetdock/fleetdock/internal/compose"
	"github.com/fleetdock/fleetdock/internal/inventory"
	"github.com/fleetdock/fleetdock/internal/remote"
)

type recordingRunner struct {
	mu    sync.Mutex
	cmds  []string
	hosts []string
	err   error
}

func (r *recordingRunner) Execute(ctx context.Context, host remote.Host, command string, args ...string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, strings.Join(append([]string{command}, args...), " "))
	r.hosts = append(r.hosts, host.Identity())
	return "", r.err
}

func (r *recordingRunner) Stream(ctx context.Context, host remote.Host, command string, args ...string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func testInventory(t *testing.T) *inventory.Inventory {
	t.Helper()
	inv, err := inventory.Parse(`
[[host]]
name = "web-01"
addr = "10.0.0.11"
user = "ops"
key_path = "/k"
`)
	if err != nil {
		t.Fatalf("inventory: %v", err)
	}
	return inv
}

func TestHandleComposeUp(t *testing.T) {
	runner := &recordingRunner{}
	h := NewHandler(runner, testInventory(t), nil)

	task, err := NewComposeUpTask("web-01", "/srv/shop")
	if err != nil {
		t.Fatalf("NewComposeUpTask: %v", err)
	}
	if err := h.HandleComposeUp(context.Background(), task); err != nil {
		t.Fatalf("HandleComposeUp: %v", err)
	}

	want := "docker compose -f /srv/shop/docker-compose.yml up -d"
	if len(runner.cmds) != 1 || runner.cmds[0] != want {
		t.Errorf("commands = %v, want [%q]", runner.cmds, want)
	}
	if runner.hosts[0] != "web-01" {
		t.Errorf("host = %q, want %q", runner.hosts[0], "web-01")
	}
}

func TestHandleComposeDown_RemoveVolumes(t *testing.T) {
	runner := &recordingRunner{}
	h := NewHandler(runner, testInventory(t), nil)

	task, _ := NewComposeDownTask("web-01", "/srv/shop", true)
	if err := h.HandleComposeDown(context.Background(), task); err != nil {
		t.Fatalf("HandleComposeDown: %v", err)
	}
	want := "docker compose -f /srv/shop/docker-compose.yml down -v"
	if runner.cmds[0] != want {
		t.Errorf("command = %q, want %q", runner.cmds[0], want)
	}
}

func TestHandleImagePull(t *testing.T) {
	runner := &recordingRunner{}
	h := NewHandler(runner, testInventory(t), nil)

	task, _ := NewImagePullTask("web-01", "nginx:1.27")
	if err := h.HandleImagePull(context.Background(), task); err != nil {
		t.Fatalf("HandleImagePull: %v", err)
	}
	if runner.cmds[0] != "docker pull nginx:1.27" {
		t.Errorf("command = %q", runner.cmds[0])
	}
}

func TestHandle_UnknownHostSkipsRetry(t *testing.T) {
	h := NewHandler(&recordingRunner{}, testInventory(t), nil)

	task, _ := NewComposeUpTask("ghost", "/srv/shop")
	err := h.HandleComposeUp(context.Background(), task)
	if err == nil {
		t.Fatal("expected error for unknown host")
	}
	if !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("unknown host should not be retried: %v", err)
	}
	if Retryable(err) {
		t.Error("Retryable() = true for unknown host")
	}
}

func TestHandle_MalformedPayloadSkipsRetry(t *testing.T) {
	h := NewHandler(&recordingRunner{}, testInventory(t), nil)

	err := h.HandleComposeUp(context.Background(), asynq.NewTask(TypeComposeUp, []byte("{broken")))
	if err == nil {
		t.Fatal("expected error for malformed payload")
	}
	if !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("malformed payload should not be retried: %v", err)
	}
}

func TestHandle_ExecutionErrorIsRetryable(t *testing.T) {
	runner := &recordingRunner{err: errors.New("connect refused")}
	h := NewHandler(runner, testInventory(t), nil)

	task, _ := NewComposeUpTask("web-01", "/srv/shop")
	err := h.HandleComposeUp(context.Background(), task)
	if err == nil {
		t.Fatal("expected execution error")
	}
	if !Retryable(err) {
		t.Error("transient execution failure should be retryable")
	}
}

func TestComposeUp_InvalidatesDiscoveryCache(t *testing.T) {
	runner := &recordingRunner{}
	disc := compose.NewDiscovery(runner, t.TempDir(), time.Hour)
	h := NewHandler(runner, testInventory(t), disc)

	host, _ := testInventory(t).Get("web-01")
	if _, err := disc.Discover(context.Background(), host); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	callsBefore := len(runner.cmds)

	task, _ := NewComposeUpTask("web-01", "/srv/shop")
	if err := h.HandleComposeUp(context.Background(), task); err != nil {
		t.Fatalf("HandleComposeUp: %v", err)
	}

	if _, err := disc.Discover(context.Background(), host); err != nil {
		t.Fatalf("Discover after up: %v", err)
	}
	// compose up plus a refetched listing.
	if len(runner.cmds) != callsBefore+2 {
		t.Errorf("calls = %d, want %d (cache invalidated)", len(runner.cmds), callsBefore+2)
	}
}
