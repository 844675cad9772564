// Package remote defines the session capability used to run commands on
// fleet hosts, plus the production SSH and local implementations.
//
// The connection pool (internal/pool) and execution service
// (internal/executor) are built on these interfaces; they never dial or
// read credentials themselves.
package remote

import (
	"context"
	"io"
	"time"
)

// Host describes one remote endpoint. It is immutable after loading from
// the inventory; two hosts with the same Identity but different credentials
// is an inventory error, not something this layer detects.
type Host struct {
	// Name is the configured label, e.g. "web-01". Used as the pool key.
	Name string `toml:"name" json:"name"`
	// Addr is the hostname or IP to dial.
	Addr string `toml:"addr" json:"addr"`
	// Port is the SSH port (0 means 22).
	Port int `toml:"port" json:"port"`
	// Protocol selects the transport: "ssh" (default) or "local".
	Protocol string `toml:"protocol" json:"protocol"`
	// User is the remote login user. Ignored for "local".
	User string `toml:"user" json:"user"`
	// KeyPath is the path to a PEM private key. Read at connect time only.
	KeyPath string `toml:"key_path" json:"key_path,omitempty"`
	// Password is an optional password credential (decrypted by inventory).
	Password string `toml:"password" json:"-"`
}

// Identity returns the key used to bucket pooled sessions for this host.
func (h Host) Identity() string {
	if h.Name != "" {
		return h.Name
	}
	return h.Addr
}

// Local reports whether the host targets the local control socket rather
// than a remote endpoint.
func (h Host) Local() bool {
	return h.Protocol == "local"
}

// Result is the raw outcome of one remote command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Session is an authenticated channel capable of running one command at a
// time and reporting its outcome. Sessions are owned by the pool; callers
// borrow them for the duration of a single command.
type Session interface {
	// Run executes commandLine and waits for completion.
	// A non-zero exit is reported in Result, not as an error; err is
	// reserved for transport failures.
	Run(ctx context.Context, commandLine string) (Result, error)

	// Stream starts commandLine and returns a reader over its stdout.
	// The session stays busy until the reader is closed.
	Stream(ctx context.Context, commandLine string) (io.ReadCloser, error)

	// Alive probes whether the underlying transport is still usable.
	Alive() bool

	// Close tears down the transport. The session is unusable afterwards.
	Close() error
}

// Connector establishes Sessions. Implementations must be safe for
// concurrent use; the pool calls Connect from multiple goroutines.
type Connector interface {
	Connect(ctx context.Context, host Host, timeout time.Duration) (Session, error)
}
