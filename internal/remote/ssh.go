package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	cryptossh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Dialer is the production Connector. It picks the transport from
// Host.Protocol: SSH for remote hosts, os/exec for "local".
type Dialer struct {
	// KnownHostsPath enables strict host key verification against an
	// OpenSSH known_hosts file. Empty means accept any host key.
	KnownHostsPath string

	// DockerHost is the DOCKER_HOST value injected into local commands,
	// e.g. "unix:///var/run/docker.sock". Empty keeps the process default.
	DockerHost string
}

// NewDialer creates a Dialer with host key verification disabled.
func NewDialer() *Dialer {
	return &Dialer{}
}

// Connect establishes a Session for host, bounded by timeout.
func (d *Dialer) Connect(ctx context.Context, host Host, timeout time.Duration) (Session, error) {
	if host.Local() {
		return &localSession{dockerHost: d.DockerHost}, nil
	}
	return d.dialSSH(ctx, host, timeout)
}

func (d *Dialer) dialSSH(ctx context.Context, host Host, timeout time.Duration) (Session, error) {
	auth, err := authMethod(host)
	if err != nil {
		return nil, err
	}

	hostKeyCallback := cryptossh.InsecureIgnoreHostKey() //nolint:gosec // opt-in via KnownHostsPath
	if d.KnownHostsPath != "" {
		cb, err := knownhosts.New(d.KnownHostsPath)
		if err != nil {
			return nil, &CredentialError{Host: host.Identity(), Err: fmt.Errorf("known_hosts: %w", err)}
		}
		hostKeyCallback = cb
	}

	cfg := &cryptossh.ClientConfig{
		User:            host.User,
		Auth:            []cryptossh.AuthMethod{auth},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	port := host.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(host.Addr, fmt.Sprintf("%d", port))

	// Respect context cancellation during dial; the ClientConfig timeout
	// bounds the handshake itself.
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
		return nil, &ConnectError{Host: host.Identity(), Addr: addr, Err: ctx.Err()}
	case r := <-ch:
		if r.err != nil {
			return nil, &ConnectError{Host: host.Identity(), Addr: addr, Err: r.err}
		}
		return &sshSession{host: host.Identity(), client: r.client}, nil
	}
}

// authMethod builds the SSH auth method from the host descriptor. Key
// material is read here, at connect time, and held only for the handshake.
func authMethod(host Host) (cryptossh.AuthMethod, error) {
	if host.KeyPath != "" {
		pem, err := os.ReadFile(host.KeyPath)
		if err != nil {
			return nil, &CredentialError{Host: host.Identity(), KeyPath: host.KeyPath, Err: err}
		}
		signer, err := cryptossh.ParsePrivateKey(pem)
		if err != nil {
			return nil, &CredentialError{Host: host.Identity(), KeyPath: host.KeyPath, Err: fmt.Errorf("parse private key: %w", err)}
		}
		return cryptossh.PublicKeys(signer), nil
	}
	if host.Password != "" {
		return cryptossh.Password(host.Password), nil
	}
	return nil, &CredentialError{Host: host.Identity(), Err: errors.New("no key path or password configured")}
}

// sshSession wraps one authenticated *ssh.Client. Each Run opens a fresh
// SSH channel on the shared connection, so the client survives across
// commands and is reusable by the pool.
type sshSession struct {
	host   string
	client *cryptossh.Client
}

func (s *sshSession) Run(ctx context.Context, commandLine string) (Result, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("ssh session on %s: %w", s.host, err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- sess.Run(commandLine) }()

	select {
	case <-ctx.Done():
		// Closing the channel signals the remote side; the command itself
		// may keep running (no server-side cancellation guarantee).
		_ = sess.Close()
		return Result{}, ctx.Err()
	case err = <-done:
	}

	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *cryptossh.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitStatus()
			return res, nil
		}
		return res, fmt.Errorf("ssh run on %s: %w", s.host, err)
	}
	return res, nil
}

func (s *sshSession) Stream(ctx context.Context, commandLine string) (io.ReadCloser, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("ssh session on %s: %w", s.host, err)
	}

	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("ssh stdout pipe on %s: %w", s.host, err)
	}
	if err := sess.Start(commandLine); err != nil {
		sess.Close()
		return nil, fmt.Errorf("ssh start on %s: %w", s.host, err)
	}

	// Close only the channel on cancellation, never the shared client —
	// the client belongs to the pool.
	watchCtx, cancel := context.WithCancel(ctx)
	go func() {
		<-watchCtx.Done()
		_ = sess.Close()
	}()
	return &sshStream{reader: stdout, session: sess, cancel: cancel}, nil
}

func (s *sshSession) Alive() bool {
	_, _, err := s.client.SendRequest("keepalive@openssh.com", true, nil)
	return err == nil
}

func (s *sshSession) Close() error {
	return s.client.Close()
}

// sshStream wraps a command's stdout pipe; Close tears down the SSH channel
// but leaves the shared client open.
type sshStream struct {
	reader  io.Reader
	session *cryptossh.Session
	cancel  context.CancelFunc
}

func (r *sshStream) Read(p []byte) (int, error) { return r.reader.Read(p) }

func (r *sshStream) Close() error {
	r.cancel()
	return r.session.Close()
}

var _ Session = (*sshSession)(nil)
var _ Connector = (*Dialer)(nil)
