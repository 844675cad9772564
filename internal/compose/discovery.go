// Package compose discovers compose projects on fleet hosts, caching the
// results in local JSON files with a TTL so agent queries do not hammer
// remote daemons.
package compose

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetdock/fleetdock/internal/executor"
	"github.com/fleetdock/fleetdock/internal/remote"
)

// Project is one compose project as reported by `docker compose ls`.
type Project struct {
	Name        string `json:"Name"`
	Status      string `json:"Status"`
	ConfigFiles string `json:"ConfigFiles"`
}

// Dir returns the project directory derived from the first config file.
func (p Project) Dir() string {
	first := p.ConfigFiles
	if i := strings.IndexByte(first, ','); i >= 0 {
		first = first[:i]
	}
	return filepath.Dir(first)
}

// Discovery lists compose projects per host with a file-backed TTL cache.
type Discovery struct {
	runner executor.Runner
	dir    string
	ttl    time.Duration
	mu     sync.Mutex
}

// cacheFile is the on-disk cache format, one file per host identity.
type cacheFile struct {
	CachedAt time.Time `json:"cached_at"`
	Projects []Project `json:"projects"`
}

// NewDiscovery creates a Discovery caching under dir with the given TTL.
func NewDiscovery(runner executor.Runner, dir string, ttl time.Duration) *Discovery {
	return &Discovery{runner: runner, dir: dir, ttl: ttl}
}

// Discover returns the compose projects on host, served from the cache
// when it is younger than the TTL.
func (d *Discovery) Discover(ctx context.Context, host remote.Host) ([]Project, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if projects, ok := d.readCache(host.Identity()); ok {
		return projects, nil
	}

	out, err := d.runner.Execute(ctx, host, "docker", "compose", "ls", "--all", "--format", "json")
	if err != nil {
		return nil, err
	}
	projects, err := parseProjects(out)
	if err != nil {
		return nil, fmt.Errorf("compose ls on %s: %w", host.Identity(), err)
	}

	d.writeCache(host.Identity(), projects)
	return projects, nil
}

// Invalidate drops the cached listing for host. Called after mutating
// compose operations so the next Discover reflects them.
func (d *Discovery) Invalidate(host remote.Host) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = os.Remove(d.cachePath(host.Identity()))
}

func (d *Discovery) cachePath(identity string) string {
	return filepath.Join(d.dir, identity+".json")
}

func (d *Discovery) readCache(identity string) ([]Project, bool) {
	data, err := os.ReadFile(d.cachePath(identity))
	if err != nil {
		return nil, false
	}
	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err != nil {
		// Corrupt cache: treat as a miss and let the rewrite fix it.
		return nil, false
	}
	if time.Since(cf.CachedAt) >= d.ttl {
		return nil, false
	}
	return cf.Projects, true
}

func (d *Discovery) writeCache(identity string, projects []Project) {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		log.Warn().Err(err).Str("dir", d.dir).Msg("compose: cache dir create failed")
		return
	}
	data, err := json.Marshal(cacheFile{CachedAt: time.Now(), Projects: projects})
	if err != nil {
		return
	}
	if err := os.WriteFile(d.cachePath(identity), data, 0o644); err != nil {
		log.Warn().Err(err).Str("host", identity).Msg("compose: cache write failed")
	}
}

// parseProjects accepts both output shapes `docker compose ls` has used:
// a JSON array, and one JSON object per line.
func parseProjects(out string) ([]Project, error) {
	out = strings.TrimSpace(out)
	if out == "" || out == "[]" {
		return nil, nil
	}

	if strings.HasPrefix(out, "[") {
		var projects []Project
		if err := json.Unmarshal([]byte(out), &projects); err != nil {
			return nil, err
		}
		return projects, nil
	}

	var projects []Project
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var p Project
		if err := json.Unmarshal([]byte(line), &p); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, nil
}
