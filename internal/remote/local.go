package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
)

// localSession runs commands via os/exec on this machine, targeting the
// local Docker control socket. It holds no transport, so Alive is always
// true and Close is a no-op — the pool can still evict it like any entry.
type localSession struct {
	// dockerHost is the DOCKER_HOST env value injected into each command.
	dockerHost string
}

func (s *localSession) Run(ctx context.Context, commandLine string) (Result, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", commandLine)
	if s.dockerHost != "" {
		cmd.Env = append(cmd.Environ(), "DOCKER_HOST="+s.dockerHost)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("local run: %w", err)
	}
	return res, nil
}

func (s *localSession) Stream(ctx context.Context, commandLine string) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", commandLine)
	if s.dockerHost != "" {
		cmd.Env = append(cmd.Environ(), "DOCKER_HOST="+s.dockerHost)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("local stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("local start: %w", err)
	}
	return &localStream{reader: stdout, cmd: cmd}, nil
}

func (s *localSession) Alive() bool { return true }

func (s *localSession) Close() error { return nil }

// localStream reaps the child process when the reader is closed.
type localStream struct {
	reader io.ReadCloser
	cmd    *exec.Cmd
}

func (r *localStream) Read(p []byte) (int, error) { return r.reader.Read(p) }

func (r *localStream) Close() error {
	err := r.reader.Close()
	if r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
	}
	_ = r.cmd.Wait()
	return err
}

var _ Session = (*localSession)(nil)
