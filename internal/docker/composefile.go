package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/sftp"
	cryptossh "golang.org/x/crypto/ssh"

	"github.com/fleetdock/fleetdock/internal/remote"
)

const composeFileMaxBytes = 2 << 20 // 2 MB

// ErrForbiddenPath rejects project directories that could escape the
// compose roots (relative paths, ".." traversal).
var ErrForbiddenPath = errors.New("forbidden project path")

// ComposeConfigRead returns the docker-compose.yml content for a project
// directory on the client's host. Remote hosts are reached over a
// dedicated short-lived SFTP connection — compose file transfers never
// occupy a pooled command session.
func (c *Client) ComposeConfigRead(ctx context.Context, projectDir string) (string, error) {
	if err := checkProjectDir(projectDir); err != nil {
		return "", err
	}
	filePath := composeFile(projectDir)

	if c.host.Local() {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("read compose config: %w", err)
		}
		return string(data), nil
	}

	fc, err := openSFTP(ctx, c.host)
	if err != nil {
		return "", err
	}
	defer fc.Close()

	f, err := fc.sftp.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("read compose config on %s: %w", c.host.Identity(), err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, composeFileMaxBytes))
	if err != nil {
		return "", fmt.Errorf("read compose config on %s: %w", c.host.Identity(), err)
	}
	return string(data), nil
}

// ComposeConfigWrite replaces the docker-compose.yml content for a project
// directory on the client's host.
func (c *Client) ComposeConfigWrite(ctx context.Context, projectDir, content string) error {
	if err := checkProjectDir(projectDir); err != nil {
		return err
	}
	if len(content) > composeFileMaxBytes {
		return fmt.Errorf("compose config exceeds %d bytes", composeFileMaxBytes)
	}
	filePath := composeFile(projectDir)

	if c.host.Local() {
		if err := os.WriteFile(filePath, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write compose config: %w", err)
		}
		return nil
	}

	fc, err := openSFTP(ctx, c.host)
	if err != nil {
		return err
	}
	defer fc.Close()

	f, err := fc.sftp.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("write compose config on %s: %w", c.host.Identity(), err)
	}
	defer f.Close()

	if _, err := f.Write([]byte(content)); err != nil {
		return fmt.Errorf("write compose config on %s: %w", c.host.Identity(), err)
	}
	return nil
}

// checkProjectDir requires an absolute, traversal-free project directory.
func checkProjectDir(projectDir string) error {
	if projectDir == "" || !strings.HasPrefix(projectDir, "/") {
		return ErrForbiddenPath
	}
	if path.Clean(projectDir) != projectDir {
		return ErrForbiddenPath
	}
	for _, seg := range strings.Split(projectDir, "/") {
		if seg == ".." {
			return ErrForbiddenPath
		}
	}
	return nil
}

// sftpConn wraps an SFTP session opened over a dedicated SSH connection.
// It is short-lived: open, transfer, Close.
type sftpConn struct {
	ssh  *cryptossh.Client
	sftp *sftp.Client
}

const sftpDialTimeout = 10 * time.Second

func openSFTP(ctx context.Context, host remote.Host) (*sftpConn, error) {
	cfg, addr, err := sshClientConfig(host)
	if err != nil {
		return nil, err
	}

	type dialResult struct {
		client *cryptossh.Client
		err    error
	}
	ch := make(chan dialResult, 1)
	go func() {
		cl, err := cryptossh.Dial("tcp", addr, cfg)
		ch <- dialResult{cl, err}
	}()

	var sshClient *cryptossh.Client
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, &remote.ConnectError{Host: host.Identity(), Addr: addr, Err: r.err}
		}
		sshClient = r.client
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("sftp subsystem on %s: %w", host.Identity(), err)
	}
	return &sftpConn{ssh: sshClient, sftp: sftpClient}, nil
}

func (c *sftpConn) Close() error {
	_ = c.sftp.Close()
	return c.ssh.Close()
}

// sshClientConfig builds the client config for a dedicated file-transfer
// connection, reading key material the same way the pooled dialer does.
func sshClientConfig(host remote.Host) (*cryptossh.ClientConfig, string, error) {
	var auth cryptossh.AuthMethod
	switch {
	case host.KeyPath != "":
		pem, err := os.ReadFile(host.KeyPath)
		if err != nil {
			return nil, "", &remote.CredentialError{Host: host.Identity(), KeyPath: host.KeyPath, Err: err}
		}
		signer, err := cryptossh.ParsePrivateKey(pem)
		if err != nil {
			return nil, "", &remote.CredentialError{Host: host.Identity(), KeyPath: host.KeyPath, Err: fmt.Errorf("parse private key: %w", err)}
		}
		auth = cryptossh.PublicKeys(signer)
	case host.Password != "":
		auth = cryptossh.Password(host.Password)
	default:
		return nil, "", &remote.CredentialError{Host: host.Identity(), Err: errors.New("no key path or password configured")}
	}

	cfg := &cryptossh.ClientConfig{
		User:            host.User,
		Auth:            []cryptossh.AuthMethod{auth},
		HostKeyCallback: cryptossh.InsecureIgnoreHostKey(), //nolint:gosec // mirrors the pooled dialer default
		Timeout:         sftpDialTimeout,
	}

	port := host.Port
	if port == 0 {
		port = 22
	}
	return cfg, net.JoinHostPort(host.Addr, fmt.Sprintf("%d", port)), nil
}
