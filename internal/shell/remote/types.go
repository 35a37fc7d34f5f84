// Package remote provides the SSH session used by every remote operation and
// the manager that opens it once per run.
package remote

import (
	"context"
	"io"
	"net"
	"os"
	"strconv"
)

// Target identifies the remote login.
type Target struct {
	Host string
	User string
	Port int
}

// Address returns host:port. A port already present in Host wins.
func (t Target) Address() string {
	if _, _, err := net.SplitHostPort(t.Host); err == nil {
		return t.Host
	}
	port := t.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(port))
}

// HostPort splits Address into host name and port.
func (t Target) HostPort() (string, int) {
	host, portStr, err := net.SplitHostPort(t.Address())
	if err != nil {
		return t.Host, t.Port
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, t.Port
	}
	return host, port
}

func (t Target) String() string {
	return t.User + "@" + t.Address()
}

// Result is the outcome of a remote command.
type Result struct {
	Command    string
	Stdout     string
	Stderr     string
	ExitStatus int
}

// Session is an open remote login that runs commands and receives files.
type Session interface {
	// Run executes cmd through the remote shell and blocks until it exits.
	// A non-zero exit is returned as a *CommandError along with the Result.
	Run(ctx context.Context, cmd string) (*Result, error)

	// Upload writes the contents of r to remotePath, creating parent directories.
	Upload(ctx context.Context, r io.Reader, remotePath string, mode os.FileMode) error

	// Close ends the login.
	Close() error
}

// Dialer opens sessions.
type Dialer interface {
	Dial(ctx context.Context, target Target) (Session, error)
}
