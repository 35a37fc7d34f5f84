package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kballard/go-shellquote"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultPort is the SSH port used when neither the target nor the config sets one.
const DefaultPort = 22

// captureLimit bounds how much command output is kept in a Result.
// Output is still streamed in full to the configured writers.
const captureLimit = 64 * 1024

// DialConfig configures SSHDialer.
type DialConfig struct {
	Port           int           // Default: 22
	KeyFile        string        // Private key; empty tries ~/.ssh defaults
	KeyPassphrase  string        // Passphrase for an encrypted KeyFile
	UseAgent       bool          // Use the agent at SSH_AUTH_SOCK
	KnownHostsFile string        // Empty disables host key verification
	ConnectTimeout time.Duration // Default: 10 seconds
	Stdout         io.Writer     // Remote stdout is streamed here; default os.Stdout
	Stderr         io.Writer     // Remote stderr is streamed here; default os.Stderr
}

// DefaultDialConfig returns the default configuration.
func DefaultDialConfig() DialConfig {
	return DialConfig{
		Port:           DefaultPort,
		UseAgent:       true,
		ConnectTimeout: 10 * time.Second,
		Stdout:         os.Stdout,
		Stderr:         os.Stderr,
	}
}

func (c DialConfig) withDefaults() DialConfig {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.Stdout == nil {
		c.Stdout = os.Stdout
	}
	if c.Stderr == nil {
		c.Stderr = os.Stderr
	}
	return c
}

// =============================================================================
// Dialer
// =============================================================================

// SSHDialer opens SSH sessions with golang.org/x/crypto/ssh.
type SSHDialer struct {
	config DialConfig
	logger *slog.Logger
}

// NewSSHDialer creates a dialer.
func NewSSHDialer(config DialConfig, logger *slog.Logger) *SSHDialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SSHDialer{
		config: config.withDefaults(),
		logger: logger,
	}
}

// Dial connects and authenticates to target.
func (d *SSHDialer) Dial(ctx context.Context, target Target) (Session, error) {
	if target.Port == 0 {
		target.Port = d.config.Port
	}

	auth, agentConn, err := d.authMethods()
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := d.hostKeyCallback()
	if err != nil {
		closeQuietly(agentConn)
		return nil, err
	}

	clientConfig := &ssh.ClientConfig{
		User:            target.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         d.config.ConnectTimeout,
	}

	addr := target.Address()
	d.logger.Debug("dialing ssh", "target", target.String())

	dialer := net.Dialer{Timeout: d.config.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		closeQuietly(agentConn)
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, addr, err)
	}

	// The handshake runs on the raw connection, so bound it with a deadline
	// and tear the connection down if ctx ends first.
	if err := conn.SetDeadline(time.Now().Add(d.config.ConnectTimeout)); err != nil {
		conn.Close()
		closeQuietly(agentConn)
		return nil, fmt.Errorf("%w: set deadline %s: %v", ErrConnectionFailed, addr, err)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	interrupted := !stop()
	if err == nil && interrupted {
		sshConn.Close()
		err = ctx.Err()
	}
	if err != nil {
		conn.Close()
		closeQuietly(agentConn)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: handshake %s: %w", ErrConnectionFailed, addr, ctxErr)
		}
		return nil, fmt.Errorf("%w: handshake %s: %v", ErrConnectionFailed, addr, err)
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		sshConn.Close()
		closeQuietly(agentConn)
		return nil, fmt.Errorf("%w: clear deadline %s: %v", ErrConnectionFailed, addr, err)
	}

	d.logger.Info("connected", "target", target.String())

	return &SSHSession{
		client:    ssh.NewClient(sshConn, chans, reqs),
		agentConn: agentConn,
		target:    target,
		stdout:    d.config.Stdout,
		stderr:    d.config.Stderr,
		logger:    d.logger,
	}, nil
}

// authMethods collects the agent and key file signers.
func (d *SSHDialer) authMethods() ([]ssh.AuthMethod, net.Conn, error) {
	var methods []ssh.AuthMethod
	var agentConn net.Conn

	if d.config.UseAgent {
		if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
			conn, err := net.Dial("unix", sock)
			if err != nil {
				d.logger.Warn("ssh agent unavailable", "socket", sock, "error", err)
			} else {
				agentConn = conn
				methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
			}
		}
	}

	var signers []ssh.Signer
	for _, keyFile := range d.keyFiles() {
		signer, err := loadSigner(keyFile, d.config.KeyPassphrase)
		if err != nil {
			if d.config.KeyFile != "" {
				closeQuietly(agentConn)
				return nil, nil, err
			}
			d.logger.Debug("skipping default key", "file", keyFile, "error", err)
			continue
		}
		signers = append(signers, signer)
	}
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}

	if len(methods) == 0 {
		return nil, nil, ErrNoAuthMethods
	}
	return methods, agentConn, nil
}

// keyFiles returns the configured key or the existing default keys.
func (d *SSHDialer) keyFiles() []string {
	if d.config.KeyFile != "" {
		return []string{expandHome(d.config.KeyFile)}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	var files []string
	for _, name := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
		p := filepath.Join(home, ".ssh", name)
		if _, err := os.Stat(p); err == nil {
			files = append(files, p)
		}
	}
	return files
}

func (d *SSHDialer) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if d.config.KnownHostsFile == "" {
		d.logger.Warn("host key verification disabled, set ssh.known_hosts to enable it")
		return ssh.InsecureIgnoreHostKey(), nil
	}
	callback, err := knownhosts.New(expandHome(d.config.KnownHostsFile))
	if err != nil {
		return nil, fmt.Errorf("load known hosts: %w", err)
	}
	return callback, nil
}

func loadSigner(keyFile, passphrase string) (ssh.Signer, error) {
	data, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("read SSH private key: %w", err)
	}

	var signer ssh.Signer
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(data, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parse SSH private key %s: %w", keyFile, err)
	}
	return signer, nil
}

// =============================================================================
// Session
// =============================================================================

// SSHSession is one authenticated SSH connection. Each command runs in its
// own SSH channel on the shared connection.
type SSHSession struct {
	client    *ssh.Client
	agentConn net.Conn
	target    Target
	stdout    io.Writer
	stderr    io.Writer
	logger    *slog.Logger
	mu        sync.Mutex // Protects client
}

func (s *SSHSession) newSession() (*ssh.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil, ErrClosed
	}
	session, err := s.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("create SSH session: %w", err)
	}
	return session, nil
}

// Run executes cmd and streams its output while it runs.
// Cancelling ctx interrupts the remote process.
func (s *SSHSession) Run(ctx context.Context, cmd string) (*Result, error) {
	return s.run(ctx, cmd, nil)
}

func (s *SSHSession) run(ctx context.Context, cmd string, stdin io.Reader) (*Result, error) {
	session, err := s.newSession()
	if err != nil {
		return nil, err
	}
	defer session.Close()

	stdout := &tailBuffer{limit: captureLimit}
	stderr := &tailBuffer{limit: captureLimit}
	session.Stdout = io.MultiWriter(stdout, s.stdout)
	session.Stderr = io.MultiWriter(stderr, s.stderr)
	if stdin != nil {
		session.Stdin = stdin
	}

	s.logger.Debug("running remote command", "target", s.target.String(), "command", cmd)

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGINT)
		session.Close()
		return nil, ctx.Err()
	case err := <-done:
		result := &Result{
			Command: cmd,
			Stdout:  stdout.String(),
			Stderr:  stderr.String(),
		}
		if err == nil {
			return result, nil
		}

		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			result.ExitStatus = exitErr.ExitStatus()
			return result, NewCommandError(cmd, result.ExitStatus, lastLine(result.Stderr))
		}
		var missingErr *ssh.ExitMissingError
		if errors.As(err, &missingErr) {
			result.ExitStatus = -1
			return result, NewCommandError(cmd, result.ExitStatus, "connection closed before exit status")
		}
		return result, fmt.Errorf("run %q: %w", cmd, err)
	}
}

// Upload writes r to remotePath by piping it into cat, like a scp-less copy.
func (s *SSHSession) Upload(ctx context.Context, r io.Reader, remotePath string, mode os.FileMode) error {
	dir := path.Dir(remotePath)
	cmd := fmt.Sprintf("mkdir -p %s && cat > %s && chmod %s %s",
		shellquote.Join(dir),
		shellquote.Join(remotePath),
		strconv.FormatUint(uint64(mode.Perm()), 8),
		shellquote.Join(remotePath),
	)

	if _, err := s.run(ctx, cmd, r); err != nil {
		return fmt.Errorf("upload %s: %w", remotePath, err)
	}
	return nil
}

// Close closes the SSH connection.
func (s *SSHSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	closeQuietly(s.agentConn)
	s.agentConn = nil

	if s.client != nil {
		err := s.client.Close()
		s.client = nil
		return err
	}
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) >= b.limit {
		b.buf.Reset()
		b.buf.Write(p[len(p)-b.limit:])
		return n, nil
	}
	if over := b.buf.Len() + len(p) - b.limit; over > 0 {
		b.buf.Next(over)
	}
	b.buf.Write(p)
	return n, nil
}

func (b *tailBuffer) String() string {
	return b.buf.String()
}

func lastLine(s string) string {
	s = strings.TrimRight(s, " \t\r\n")
	return s[strings.LastIndexByte(s, '\n')+1:]
}

func expandHome(p string) string {
	if len(p) < 2 || p[:2] != "~/" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

func closeQuietly(c io.Closer) {
	if c != nil {
		c.Close()
	}
}
