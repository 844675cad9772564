package terminal

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	cryptossh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/fleetdock/fleetdock/internal/remote"
)

const sshDialTimeout = 10 * time.Second

func (d *Dialer) dialSSH(ctx context.Context, host remote.Host, opts Options) (Session, error) {
	cfg, err := d.clientConfig(host)
	if err != nil {
		return nil, err
	}

	port := host.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(host.Addr, fmt.Sprintf("%d", port))

	// Respect context cancellation during dial.
	type dialResult struct {
		client *cryptossh.Client
		err    error
	}
	ch := make(chan dialResult, 1)
	go func() {
		cl, err := cryptossh.Dial("tcp", addr, cfg)
		ch <- dialResult{cl, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("terminal: dial %s: %w", addr, r.err)
		}
		return newSSHSession(r.client, opts)
	}
}

func (d *Dialer) clientConfig(host remote.Host) (*cryptossh.ClientConfig, error) {
	var auth cryptossh.AuthMethod
	switch {
	case host.KeyPath != "":
		pem, err := os.ReadFile(host.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("terminal: read key for %s: %w", host.Identity(), err)
		}
		signer, err := cryptossh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("terminal: parse key for %s: %w", host.Identity(), err)
		}
		auth = cryptossh.PublicKeys(signer)
	case host.Password != "":
		auth = cryptossh.Password(host.Password)
	default:
		return nil, fmt.Errorf("terminal: host %s has no credentials", host.Identity())
	}

	hostKeyCallback := cryptossh.InsecureIgnoreHostKey() //nolint:gosec // opt-in via KnownHostsPath
	if d.KnownHostsPath != "" {
		cb, err := knownhosts.New(d.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("terminal: known_hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	return &cryptossh.ClientConfig{
		User:            host.User,
		Auth:            []cryptossh.AuthMethod{auth},
		HostKeyCallback: hostKeyCallback,
		Timeout:         sshDialTimeout,
	}, nil
}

// sshSession wraps an SSH client + session + remote PTY.
type sshSession struct {
	client  *cryptossh.Client
	session *cryptossh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
	mu      sync.Mutex
}

func newSSHSession(client *cryptossh.Client, opts Options) (*sshSession, error) {
	sess, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("terminal: new session: %w", err)
	}

	modes := cryptossh.TerminalModes{
		cryptossh.ECHO:          1,
		cryptossh.TTY_OP_ISPEED: 14400,
		cryptossh.TTY_OP_OSPEED: 14400,
	}
	if err := sess.RequestPty("xterm-256color", int(opts.Rows), int(opts.Cols), modes); err != nil {
		sess.Close()
		client.Close()
		return nil, fmt.Errorf("terminal: request pty: %w", err)
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return nil, fmt.Errorf("terminal: stdin pipe: %w", err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return nil, fmt.Errorf("terminal: stdout pipe: %w", err)
	}
	// A command (e.g. "docker exec -it web sh") runs under the PTY;
	// otherwise ask the server for the user's login shell. sess.Shell() is
	// correct here: sess.Start("$SHELL") would send the literal string to
	// the remote exec, which SSH servers do not expand.
	if opts.Command != "" {
		err = sess.Start(opts.Command)
	} else {
		err = sess.Shell()
	}
	if err != nil {
		sess.Close()
		client.Close()
		return nil, fmt.Errorf("terminal: start: %w", err)
	}

	return &sshSession{
		client:  client,
		session: sess,
		stdin:   stdin,
		stdout:  stdout,
	}, nil
}

func (s *sshSession) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stdin.Write(p)
}

func (s *sshSession) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *sshSession) Resize(rows, cols uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.WindowChange(int(rows), int(cols))
}

func (s *sshSession) Close() error {
	_ = s.stdin.Close()
	_ = s.session.Close()
	return s.client.Close()
}

var _ Session = (*sshSession)(nil)
