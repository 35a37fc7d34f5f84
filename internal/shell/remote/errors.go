package remote

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrCommandFailed is matched by every CommandError.
	ErrCommandFailed = errors.New("remote command failed")

	// ErrConnectionFailed wraps dial and handshake failures.
	ErrConnectionFailed = errors.New("ssh connection failed")

	// ErrNoAuthMethods is returned when neither a key nor an agent is usable.
	ErrNoAuthMethods = errors.New("no ssh authentication method available")

	// ErrTargetChanged is returned when the selected host or user no longer
	// matches the session opened earlier in the same run.
	ErrTargetChanged = errors.New("deployment target changed after connecting")

	// ErrClosed is returned by a session used after Close.
	ErrClosed = errors.New("session closed")
)

// CommandError reports a remote command that exited non-zero.
type CommandError struct {
	Command    string
	ExitStatus int
	Stderr     string
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%q exited with status %d: %s", e.Command, e.ExitStatus, e.Stderr)
	}
	return fmt.Sprintf("%q exited with status %d", e.Command, e.ExitStatus)
}

func (e *CommandError) Unwrap() error {
	return ErrCommandFailed
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, exitStatus int, stderr string) *CommandError {
	return &CommandError{
		Command:    command,
		ExitStatus: exitStatus,
		Stderr:     stderr,
	}
}
