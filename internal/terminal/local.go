package terminal

import (
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// localSession runs a shell (or command) in a PTY subprocess on the
// control host itself, for inventory hosts with protocol "local".
type localSession struct {
	cmd  *exec.Cmd
	ptmx *os.File
}

func newLocalSession(opts Options) (*localSession, error) {
	var cmd *exec.Cmd
	if opts.Command != "" {
		cmd = exec.Command("sh", "-c", opts.Command)
	} else {
		shell := os.Getenv("SHELL")
		if shell == "" {
			shell = "bash"
		}
		cmd = exec.Command(shell)
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: opts.Rows, Cols: opts.Cols})
	if err != nil {
		return nil, err
	}
	return &localSession{cmd: cmd, ptmx: ptmx}, nil
}

func (s *localSession) Write(p []byte) (int, error) { return s.ptmx.Write(p) }
func (s *localSession) Read(p []byte) (int, error)  { return s.ptmx.Read(p) }

func (s *localSession) Resize(rows, cols uint16) error {
	return pty.Setsize(s.ptmx, &pty.Winsize{Rows: rows, Cols: cols})
}

// Close kills the subprocess and waits so no orphans are left behind.
func (s *localSession) Close() error {
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	err := s.ptmx.Close()
	_ = s.cmd.Wait()
	return err
}

var _ Session = (*localSession)(nil)
