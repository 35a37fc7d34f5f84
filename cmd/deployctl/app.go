package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/bchexplorer/deployctl/internal/core/commands"
	"github.com/bchexplorer/deployctl/internal/deploy"
	"github.com/bchexplorer/deployctl/internal/shell/remote"
	"github.com/bchexplorer/deployctl/internal/shell/rsync"
	"github.com/bchexplorer/deployctl/internal/shell/selector"
	"github.com/spf13/afero"
)

// app is one invocation's component graph. Every component shares the
// same environment record.
type app struct {
	selector *selector.Selector
	manager  *remote.Manager
	ops      *deploy.Operations
	logger   *slog.Logger
}

type appOptions struct {
	follow bool
	stdout io.Writer
	stderr io.Writer
}

func newApp(cfg *Config, logger *slog.Logger, opts appOptions) *app {
	record := cfg.Target.Record()
	fsys := afero.NewOsFs()

	sel := selector.New(fsys, record, cfg.Environments, cfg.DefaultEnvironment, logger)

	dialer := remote.NewSSHDialer(dialConfig(cfg.SSH, opts), logger)
	manager := remote.NewManager(record, dialer, cfg.SSH.Port, logger)

	syncer := rsync.NewSyncer(rsync.Config{
		Binary: cfg.Sync.RsyncPath,
		Stdout: opts.stdout,
		Stderr: opts.stderr,
	}, logger)

	builder := commands.NewBuilder(record, commands.Tooling{
		Compose: cfg.Compose.Binary,
		Docker:  cfg.Docker.Binary,
	}, cfg.Cache.Targets())

	ops := deploy.New(record, manager, sel, syncer, builder, fsys, deploy.Options{
		Source:         cfg.Sync.Source,
		ExtraExcludes:  cfg.Sync.Exclude,
		SSHKeyFile:     cfg.SSH.KeyFile,
		KnownHostsFile: cfg.SSH.KnownHosts,
		FollowLogs:     opts.follow,
		Env:            processEnv(),
		Out:            opts.stdout,
	}, logger)

	return &app{
		selector: sel,
		manager:  manager,
		ops:      ops,
		logger:   logger,
	}
}

// dialConfig overlays the configured SSH settings on the dialer defaults.
// Zero values keep the defaults, except UseAgent which is always taken from cfg.
func dialConfig(cfg SSHConfig, opts appOptions) remote.DialConfig {
	dc := remote.DefaultDialConfig()
	if cfg.Port != 0 {
		dc.Port = cfg.Port
	}
	if cfg.ConnectTimeout != 0 {
		dc.ConnectTimeout = cfg.ConnectTimeout
	}
	if opts.stdout != nil {
		dc.Stdout = opts.stdout
	}
	if opts.stderr != nil {
		dc.Stderr = opts.stderr
	}
	dc.KeyFile = cfg.KeyFile
	dc.KeyPassphrase = cfg.KeyPassphrase
	dc.UseAgent = cfg.UseAgent
	dc.KnownHostsFile = cfg.KnownHosts
	return dc
}

// Close releases the SSH session, if one was opened.
func (a *app) Close() {
	if !a.manager.Connected() {
		return
	}
	if err := a.manager.Close(); err != nil {
		a.logger.Debug("closing ssh session", "error", err)
	}
}

// processEnv returns the process environment as a map for compose interpolation.
func processEnv() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if key, value, ok := strings.Cut(kv, "="); ok {
			env[key] = value
		}
	}
	return env
}
