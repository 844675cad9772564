package remote

import (
	"fmt"
	"time"
)

// CredentialError reports that auth material for a host could not be read
// or parsed. It is fatal for the connect attempt and never retried here.
type CredentialError struct {
	Host    string
	KeyPath string
	Err     error
}

func (e *CredentialError) Error() string {
	if e.KeyPath != "" {
		return fmt.Sprintf("credentials for %s (key %s): %v", e.Host, e.KeyPath, e.Err)
	}
	return fmt.Sprintf("credentials for %s: %v", e.Host, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// ConnectError reports that the transport handshake failed or did not
// complete within the connect timeout.
type ConnectError struct {
	Host string
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to %s (%s): %v", e.Host, e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// CommandError reports a remote command that ran but exited non-zero.
// It carries everything needed to diagnose the failure without re-running
// the command.
type CommandError struct {
	Host        string
	CommandLine string
	ExitCode    int
	Stdout      string
	Stderr      string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command failed on %s (exit %d): %s", e.Host, e.ExitCode, e.CommandLine)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// TimeoutError reports client-side abandonment of a command. The remote
// process may still be running; see the executor package docs.
type TimeoutError struct {
	Host        string
	CommandLine string
	Timeout     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command timed out on %s after %s: %s", e.Host, e.Timeout, e.CommandLine)
}
