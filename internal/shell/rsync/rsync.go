// Package rsync mirrors the local project tree to the deployment host with
// the rsync binary over ssh.
package rsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"
)

// ErrSyncFailed wraps every rsync failure.
var ErrSyncFailed = errors.New("rsync failed")

// DefaultOptions are the archive-style flags used for every transfer.
var DefaultOptions = []string{"-pthrvz"}

// Transfer describes one source to destination mirror.
type Transfer struct {
	Source     string // local directory
	Host       string
	User       string
	RemotePath string
	Excludes   []string // rsync --exclude patterns
	SSHPort    int
	SSHKeyFile string
	KnownHosts string // empty disables strict host key checking
}

// Destination returns user@host:path.
func (t Transfer) Destination() string {
	return fmt.Sprintf("%s@%s:%s", t.User, t.Host, t.RemotePath)
}

// RemoteShell returns the ssh command rsync uses as its transport.
func (t Transfer) RemoteShell() string {
	args := []string{"ssh"}
	if t.SSHPort != 0 {
		args = append(args, "-p", strconv.Itoa(t.SSHPort))
	}
	if t.SSHKeyFile != "" {
		args = append(args, "-i", t.SSHKeyFile)
	}
	if t.KnownHosts != "" {
		args = append(args, "-o", "UserKnownHostsFile="+t.KnownHosts, "-o", "StrictHostKeyChecking=yes")
	} else {
		args = append(args, "-o", "StrictHostKeyChecking=no")
	}
	return shellquote.Join(args...)
}

// CommandRunner runs an external program.
type CommandRunner func(ctx context.Context, name string, args []string, stdout, stderr io.Writer) error

// ExecRunner runs the program with os/exec.
func ExecRunner(ctx context.Context, name string, args []string, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

// Syncer runs rsync transfers.
type Syncer struct {
	binary  string
	options []string
	run     CommandRunner
	stdout  io.Writer
	stderr  io.Writer
	logger  *slog.Logger
}

// Config configures a Syncer.
type Config struct {
	Binary  string   // Default: rsync
	Options []string // Default: DefaultOptions
	Runner  CommandRunner
	Stdout  io.Writer
	Stderr  io.Writer
}

// NewSyncer creates a Syncer.
func NewSyncer(config Config, logger *slog.Logger) *Syncer {
	if config.Binary == "" {
		config.Binary = "rsync"
	}
	if len(config.Options) == 0 {
		config.Options = DefaultOptions
	}
	if config.Runner == nil {
		config.Runner = ExecRunner
	}
	if config.Stdout == nil {
		config.Stdout = os.Stdout
	}
	if config.Stderr == nil {
		config.Stderr = os.Stderr
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		binary:  config.Binary,
		options: config.Options,
		run:     config.Runner,
		stdout:  config.Stdout,
		stderr:  config.Stderr,
		logger:  logger,
	}
}

// Args returns the rsync argument list for t.
func (s *Syncer) Args(t Transfer) []string {
	args := append([]string{}, s.options...)
	args = append(args, "--rsh="+t.RemoteShell())
	for _, pattern := range t.Excludes {
		args = append(args, "--exclude="+pattern)
	}

	source := t.Source
	if source == "" {
		source = "."
	}
	if !strings.HasSuffix(source, "/") {
		source += "/"
	}
	return append(args, source, t.Destination())
}

// Sync mirrors t.Source into t.RemotePath.
func (s *Syncer) Sync(ctx context.Context, t Transfer) error {
	args := s.Args(t)
	s.logger.Info("syncing files",
		"source", t.Source,
		"destination", t.Destination(),
		"excludes", len(t.Excludes),
	)
	s.logger.Debug("rsync command", "command", s.binary+" "+shellquote.Join(args...))

	if err := s.run(ctx, s.binary, args, s.stdout, s.stderr); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%w: exit status %d", ErrSyncFailed, exitErr.ExitCode())
		}
		return fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}
	return nil
}
