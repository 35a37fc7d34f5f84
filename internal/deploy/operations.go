// Package deploy runs the named remote operations against the selected
// environment and sequences them into the full deploy workflow.
//
// Every operation shares one environment record and one remote session per
// run. Lifecycle operations propagate failures. The cache clearing
// operations are best-effort: a failing remote command is only logged, but
// a missing configuration or a failed connection still fails the caller.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/bchexplorer/deployctl/internal/core/commands"
	"github.com/bchexplorer/deployctl/internal/core/environment"
	"github.com/bchexplorer/deployctl/internal/core/pipeline"
	"github.com/bchexplorer/deployctl/internal/shell/remote"
	"github.com/bchexplorer/deployctl/internal/shell/rsync"
	"github.com/bchexplorer/deployctl/internal/shell/selector"
	"github.com/spf13/afero"
)

// Operation names, as accepted on the command line.
const (
	OpConnectivity   = "uname"
	OpSync           = "sync"
	OpBuild          = "build"
	OpUp             = "up"
	OpDown           = "down"
	OpRestart        = "restart"
	OpStatus         = "status"
	OpLogs           = "logs"
	OpPrune          = "prune"
	OpClearCacheData = "clear-cache-data"
	OpClearAppCache  = "clear-app-cache"
	OpClearCache     = "clear-cache"
	OpShowConfig     = "show-config"
	OpDeploy         = "deploy"
)

// envFileMode is the permission of the uploaded .env file.
const envFileMode os.FileMode = 0600

// Connector hands out the run's session.
type Connector interface {
	Get(ctx context.Context) (remote.Session, error)
	Target() remote.Target
}

// Syncer mirrors the local tree to the host.
type Syncer interface {
	Sync(ctx context.Context, t rsync.Transfer) error
}

// Options configures Operations.
type Options struct {
	Source         string            // local project directory; default "."
	ExtraExcludes  []string          // appended to the fixed exclude list
	SSHKeyFile     string            // passed to rsync's ssh
	KnownHostsFile string            // passed to rsync's ssh
	FollowLogs     bool              // logs task streams until interrupted
	Env            map[string]string // interpolation variables for show-config
	Out            io.Writer         // reporter output; default os.Stdout
}

// Operations runs remote operations for one run.
type Operations struct {
	cfg      *environment.Config
	conns    Connector
	selector *selector.Selector
	syncer   Syncer
	commands *commands.Builder
	fs       afero.Fs
	reporter *Reporter
	opts     Options
	logger   *slog.Logger
}

// New creates Operations. cfg must be the record the selector and the
// connector were built with.
func New(
	cfg *environment.Config,
	conns Connector,
	sel *selector.Selector,
	syncer Syncer,
	builder *commands.Builder,
	fsys afero.Fs,
	opts Options,
	logger *slog.Logger,
) *Operations {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if opts.Source == "" {
		opts.Source = "."
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Operations{
		cfg:      cfg,
		conns:    conns,
		selector: sel,
		syncer:   syncer,
		commands: builder,
		fs:       fsys,
		reporter: NewReporter(opts.Out),
		opts:     opts,
		logger:   logger,
	}
}

// =============================================================================
// Operation Catalog
// =============================================================================

// operation is one named unit with its failure policy.
type operation struct {
	policy   pipeline.Policy
	tolerate pipeline.Tolerance
	banner   string
	run      func(ctx context.Context) error
}

// remoteCommandFailed limits best-effort operations to failures of the
// remote command itself. Configuration, connection and cancellation errors
// still fail the caller.
func remoteCommandFailed(err error) bool {
	return errors.Is(err, remote.ErrCommandFailed)
}

func (o *Operations) catalog() map[string]operation {
	propagate := func(banner string, run func(ctx context.Context) error) operation {
		return operation{policy: pipeline.Propagate, banner: banner, run: run}
	}
	bestEffort := func(banner string, run func(ctx context.Context) error) operation {
		return operation{policy: pipeline.Suppress, tolerate: remoteCommandFailed, banner: banner, run: run}
	}

	return map[string]operation{
		OpConnectivity: propagate("Checking connection", o.checkConnectivity),
		OpSync:         propagate("Syncing files", o.sync),
		OpBuild:        propagate("Building Docker images", o.remoteStep(OpBuild, o.commands.Build)),
		OpUp:           propagate("Starting new containers", o.remoteStep(OpUp, o.commands.Up)),
		OpDown:         propagate("Stopping old containers", o.remoteStep(OpDown, o.commands.Down)),
		OpRestart:      propagate("Restarting containers", o.remoteStep(OpRestart, o.commands.Restart)),
		OpStatus:       propagate("", o.remoteStep(OpStatus, o.commands.Status)),
		OpLogs: propagate("", func(ctx context.Context) error {
			return o.logs(ctx, o.opts.FollowLogs)
		}),
		OpPrune:          propagate("Pruning images and networks", o.prune),
		OpClearCacheData: bestEffort("Clearing cached chain data", o.remoteStep(OpClearCacheData, o.commands.ClearCacheData)),
		OpClearAppCache:  bestEffort("Flagging application cache for flush", o.remoteStep(OpClearAppCache, o.commands.ClearAppCache)),
		OpShowConfig:     propagate("", o.showConfig),
	}
}

// Policy returns the failure policy of a named operation.
func (o *Operations) Policy(name string) (pipeline.Policy, bool) {
	op, ok := o.catalog()[name]
	return op.policy, ok
}

// Invoke runs one named operation and applies its failure policy.
func (o *Operations) Invoke(ctx context.Context, name string) error {
	switch name {
	case OpDeploy:
		return o.Deploy(ctx)
	case OpClearCache:
		return o.ClearCache(ctx)
	}

	op, ok := o.catalog()[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTask, name)
	}
	if op.banner != "" {
		o.reporter.Stage(op.banner)
	}
	return pipeline.Apply(op.policy, op.tolerate, name, op.run(ctx), o.logger)
}

// steps converts operation names into pipeline steps, in order.
func (o *Operations) steps(names ...string) ([]pipeline.Step, error) {
	catalog := o.catalog()
	steps := make([]pipeline.Step, 0, len(names))
	for _, name := range names {
		op, ok := catalog[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTask, name)
		}
		run := op.run
		banner := op.banner
		steps = append(steps, pipeline.Step{
			Name:     name,
			Policy:   op.policy,
			Tolerate: op.tolerate,
			Run: func(ctx context.Context) error {
				if banner != "" {
					o.reporter.Stage(banner)
				}
				return run(ctx)
			},
		})
	}
	return steps, nil
}

// =============================================================================
// Public Operations
// =============================================================================

// CheckConnectivity runs a trivial command on the host.
func (o *Operations) CheckConnectivity(ctx context.Context) error {
	return o.Invoke(ctx, OpConnectivity)
}

// Sync mirrors the project and uploads the selected environment file.
func (o *Operations) Sync(ctx context.Context) error {
	return o.Invoke(ctx, OpSync)
}

func (o *Operations) Build(ctx context.Context) error {
	return o.Invoke(ctx, OpBuild)
}

func (o *Operations) Up(ctx context.Context) error {
	return o.Invoke(ctx, OpUp)
}

func (o *Operations) Down(ctx context.Context) error {
	return o.Invoke(ctx, OpDown)
}

func (o *Operations) Restart(ctx context.Context) error {
	return o.Invoke(ctx, OpRestart)
}

func (o *Operations) Status(ctx context.Context) error {
	return o.Invoke(ctx, OpStatus)
}

// Logs shows the stack's logs. With follow set it streams until ctx is cancelled.
func (o *Operations) Logs(ctx context.Context, follow bool) error {
	return o.logs(ctx, follow)
}

// Prune removes unused images and networks.
func (o *Operations) Prune(ctx context.Context) error {
	return o.Invoke(ctx, OpPrune)
}

// ClearCacheData deletes cached lists from the data store. A failing remote
// command is logged, not returned.
func (o *Operations) ClearCacheData(ctx context.Context) error {
	return o.Invoke(ctx, OpClearCacheData)
}

// ClearAppCache asks the application to flush its cache on next start. A
// failing remote command is logged, not returned.
func (o *Operations) ClearAppCache(ctx context.Context) error {
	return o.Invoke(ctx, OpClearAppCache)
}

// ClearCache runs both cache clearing operations.
func (o *Operations) ClearCache(ctx context.Context) error {
	steps, err := o.steps(OpClearCacheData, OpClearAppCache)
	if err != nil {
		return err
	}
	return pipeline.Run(ctx, o.logger, steps)
}

// ShowConfig prints the resolved environment and the local compose services.
func (o *Operations) ShowConfig(ctx context.Context) error {
	return o.Invoke(ctx, OpShowConfig)
}

// =============================================================================
// Implementations
// =============================================================================

// runRemote runs cmds in order and stops at the first failure.
func (o *Operations) runRemote(ctx context.Context, op string, cmds ...string) error {
	session, err := o.conns.Get(ctx)
	if err != nil {
		return err
	}

	logger := o.opLogger(op)
	for _, cmd := range cmds {
		logger.Debug("remote command", "command", cmd)
		if _, err := session.Run(ctx, cmd); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	logger.Info("operation complete")
	return nil
}

// remoteStep adapts a single command builder to an operation.
func (o *Operations) remoteStep(op string, build func() string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return o.runRemote(ctx, op, build())
	}
}

func (o *Operations) checkConnectivity(ctx context.Context) error {
	return o.runRemote(ctx, OpConnectivity, o.commands.Connectivity())
}

func (o *Operations) logs(ctx context.Context, follow bool) error {
	return o.runRemote(ctx, OpLogs, o.commands.Logs(follow))
}

// prune attempts both cleanup commands even when the first fails.
func (o *Operations) prune(ctx context.Context) error {
	session, err := o.conns.Get(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, cmd := range o.commands.Prune() {
		if _, err := session.Run(ctx, cmd); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", OpPrune, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	o.reporter.Success("Docker cleanup complete")
	return nil
}

func (o *Operations) sync(ctx context.Context) error {
	session, err := o.conns.Get(ctx)
	if err != nil {
		return err
	}

	host, port := o.conns.Target().HostPort()
	transfer := rsync.Transfer{
		Source:     o.opts.Source,
		Host:       host,
		User:       o.cfg.User,
		RemotePath: o.cfg.RemotePath,
		Excludes:   commands.SyncExcludes(o.opts.ExtraExcludes...),
		SSHPort:    port,
		SSHKeyFile: o.opts.SSHKeyFile,
		KnownHosts: o.opts.KnownHostsFile,
	}
	if err := o.syncer.Sync(ctx, transfer); err != nil {
		return fmt.Errorf("%s: %w", OpSync, err)
	}

	return o.uploadEnvFile(ctx, session)
}

// uploadEnvFile copies the selected environment file to the host as .env.
// A missing local file is a warning.
func (o *Operations) uploadEnvFile(ctx context.Context, session remote.Session) error {
	local := o.cfg.SourceEnvFile
	logger := o.opLogger(OpSync)

	f, err := o.fs.Open(local)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("environment file not found, remote .env left unchanged", "file", local)
			o.reporter.Warn(fmt.Sprintf("%s not found, skipping .env upload", local))
			return nil
		}
		return fmt.Errorf("%s: open %s: %w", OpSync, local, err)
	}
	defer f.Close()

	dest := commands.RemoteEnvPath(o.cfg.RemotePath)
	if err := session.Upload(ctx, f, dest, envFileMode); err != nil {
		return fmt.Errorf("%s: %w", OpSync, err)
	}

	logger.Info("environment file uploaded", "file", local, "destination", dest)
	return nil
}

func (o *Operations) opLogger(op string) *slog.Logger {
	return o.logger.With(
		"operation", op,
		"environment", o.cfg.Name,
		"host", o.cfg.Host,
	)
}
