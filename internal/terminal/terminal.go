// Package terminal provides interactive PTY sessions on fleet hosts.
//
// Sessions are bridged to WebSockets by the server's terminal handler:
// callers Write keyboard bytes and Read terminal output. Remote hosts get
// an SSH PTY; "local" hosts get a creack/pty subprocess. Terminal
// connections are deliberately not pooled — an interactive shell owns its
// transport for its whole lifetime.
package terminal

import (
	"context"

	"github.com/fleetdock/fleetdock/internal/remote"
)

// Session is one interactive PTY. Read and Write move raw terminal bytes;
// resize and close arrive out-of-band from the WebSocket control channel.
type Session interface {
	// Write sends bytes to the remote stdin.
	Write(p []byte) (n int, err error)
	// Read receives bytes from the remote stdout/stderr.
	Read(p []byte) (n int, err error)
	// Resize changes the PTY dimensions.
	Resize(rows, cols uint16) error
	// Close terminates the session and frees all resources.
	Close() error
}

// Options tunes a terminal session.
type Options struct {
	// Command runs instead of a login shell when non-empty, still under a
	// PTY. Used for container shells: "docker exec -it <id> sh".
	Command string
	// Rows and Cols are the initial window size. Zero means 24x80.
	Rows, Cols uint16
}

// Connector opens terminal sessions. Implementations must be safe for
// concurrent use.
type Connector interface {
	Connect(ctx context.Context, host remote.Host, opts Options) (Session, error)
}

// Dialer is the production Connector, switching on Host.Protocol.
type Dialer struct {
	// KnownHostsPath enables strict host key verification for SSH
	// terminals. Empty means accept any host key.
	KnownHostsPath string
}

// Connect opens a PTY session on host.
func (d *Dialer) Connect(ctx context.Context, host remote.Host, opts Options) (Session, error) {
	if opts.Rows == 0 {
		opts.Rows = 24
	}
	if opts.Cols == 0 {
		opts.Cols = 80
	}
	if host.Local() {
		return newLocalSession(opts)
	}
	return d.dialSSH(ctx, host, opts)
}

var _ Connector = (*Dialer)(nil)
