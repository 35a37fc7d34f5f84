package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bchexplorer/deployctl/internal/core/environment"
	"github.com/bchexplorer/deployctl/internal/deploy"
	"github.com/bchexplorer/deployctl/internal/shell/selector"
	"github.com/spf13/cobra"
	"github.com/subosito/gotenv"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess          = 0
	ExitOperationFailure = 1
	ExitUsageError       = 2
)

// usageError marks failures caused by the invocation rather than the host.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// exitCode maps a run error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var uErr *usageError
	switch {
	case errors.As(err, &uErr),
		errors.Is(err, deploy.ErrUnknownTask),
		errors.Is(err, selector.ErrUnknownEnvironment),
		errors.Is(err, environment.ErrMissingConfig):
		return ExitUsageError
	default:
		return ExitOperationFailure
	}
}

// =============================================================================
// Entry Point
// =============================================================================

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if err := loadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return ExitUsageError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	return exitCode(err)
}

// loadDotEnv loads KEY=VALUE pairs into the process environment without
// overriding variables that are already set. A missing file is ignored.
func loadDotEnv(path string) error {
	if err := gotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// =============================================================================
// Root Command
// =============================================================================

type rootOptions struct {
	configPath string
	env        string
	follow     bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "deployctl [flags] <task> [task...]",
		Short: "Deploy the explorer stack to a remote Docker host",
		Long: `deployctl runs deployment tasks over SSH against the selected environment.

Tasks run left to right over one SSH connection. An environment name selects
that environment for the tasks after it:

  deployctl mainnet deploy
  deployctl chipnet status logs

Tasks:
  uname             check SSH connectivity
  sync              rsync the project and upload the environment file as .env
  build             build images on the host
  up                recreate and start containers
  down              stop and remove containers
  restart           restart containers
  status            list containers
  logs              show container logs (streams with --follow)
  prune             remove unused images and networks
  clear-cache-data  delete cached chain data lists from redis
  clear-app-cache   flag the application cache for flush
  clear-cache       both cache clearing tasks
  deploy            sync, build, down, clear caches, up
  show-config       print the resolved configuration`,
		Version:       fmt.Sprintf("%s (built %s)", Version, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return &usageError{err: errors.New("no tasks given, see --help")}
			}
			return runTasks(cmd, opts, args)
		},
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "path to config file (default ./deployctl.yaml)")
	flags.StringVar(&opts.env, "env", "", "select this environment before running tasks")
	flags.BoolVar(&opts.follow, "follow", true, "stream logs until interrupted")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "text", "log format: text or json")

	return cmd
}

func runTasks(cmd *cobra.Command, opts *rootOptions, tasks []string) error {
	cfg, err := LoadConfig(opts.configPath, cmd.Flags())
	if err != nil {
		return &usageError{err: fmt.Errorf("configuration error: %w", err)}
	}

	logger := SetupLogger(cfg)
	logger.Debug("starting deployctl",
		"version", Version,
		"tasks", strings.Join(tasks, " "),
	)

	app := newApp(cfg, logger, appOptions{
		follow: opts.follow,
		stdout: cmd.OutOrStdout(),
		stderr: cmd.ErrOrStderr(),
	})
	defer app.Close()

	ctx := cmd.Context()
	if opts.env != "" {
		if err := app.selector.Select(opts.env); err != nil {
			return err
		}
	}
	return app.ops.RunTasks(ctx, tasks)
}
