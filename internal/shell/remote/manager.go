package remote

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bchexplorer/deployctl/internal/core/environment"
)

// Manager opens the run's session on first demand and hands the same
// session to every later caller.
//
// A Manager belongs to one run and is not safe for concurrent use. There is
// no reconnect: a dropped connection surfaces as an error from the next
// command that uses it.
type Manager struct {
	cfg     *environment.Config
	dialer  Dialer
	port    int
	logger  *slog.Logger
	session Session
	target  Target
}

// NewManager creates a manager reading the target from cfg.
func NewManager(cfg *environment.Config, dialer Dialer, port int, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		dialer: dialer,
		port:   port,
		logger: logger,
	}
}

// Get returns the cached session or validates the configuration and dials.
func (m *Manager) Get(ctx context.Context) (Session, error) {
	if m.session != nil {
		if m.cfg.Host != m.target.Host || m.cfg.User != m.target.User {
			return nil, fmt.Errorf("%w: connected to %s, selected %s",
				ErrTargetChanged, m.target.String(), m.cfg.Target())
		}
		return m.session, nil
	}

	if err := m.cfg.Validate(); err != nil {
		return nil, err
	}

	target := m.Target()
	session, err := m.dialer.Dial(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", target.String(), err)
	}

	m.session = session
	m.target = target
	m.logger.Debug("session cached", "target", target.String())

	return session, nil
}

// Target returns the login derived from the current configuration.
func (m *Manager) Target() Target {
	return Target{
		Host: m.cfg.Host,
		User: m.cfg.User,
		Port: m.port,
	}
}

// Connected reports whether a session has been opened.
func (m *Manager) Connected() bool {
	return m.session != nil
}

// Close closes the cached session, if any.
func (m *Manager) Close() error {
	if m.session == nil {
		return nil
	}
	err := m.session.Close()
	m.session = nil
	m.logger.Debug("session closed", "target", m.target.String())
	return err
}
