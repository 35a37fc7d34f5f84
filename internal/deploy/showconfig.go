package deploy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/bchexplorer/deployctl/internal/core/commands"
	"github.com/bchexplorer/deployctl/internal/core/compose"
	"github.com/bchexplorer/deployctl/internal/core/envfile"
	"github.com/spf13/afero"
)

// showConfig prints the resolved record and a summary of the local compose
// file. It does not connect to the host.
func (o *Operations) showConfig(_ context.Context) error {
	w := tabwriter.NewWriter(o.opts.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "environment\t%s\n", o.environmentLabel())
	fmt.Fprintf(w, "env file\t%s\n", o.cfg.SourceEnvFile)
	fmt.Fprintf(w, "host\t%s\n", valueOrMissing(o.cfg.Host))
	fmt.Fprintf(w, "user\t%s\n", valueOrMissing(o.cfg.User))
	fmt.Fprintf(w, "remote path\t%s\n", o.cfg.RemotePath)
	fmt.Fprintf(w, "compose file\t%s\n", o.cfg.ComposeFile)
	fmt.Fprintf(w, "compose project\t%s\n", o.cfg.ComposeProject)
	fmt.Fprintf(w, "sync excludes\t%s\n", strings.Join(commands.SyncExcludes(o.opts.ExtraExcludes...), " "))
	if err := w.Flush(); err != nil {
		return err
	}

	if err := o.cfg.Validate(); err != nil {
		o.reporter.Warn(err.Error())
	}

	summary, err := o.loadComposeSummary()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			o.reporter.Warn(fmt.Sprintf("compose file %s not found locally", o.cfg.ComposeFile))
			return nil
		}
		return fmt.Errorf("%s: %w", OpShowConfig, err)
	}

	w = tabwriter.NewWriter(o.opts.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tIMAGE\tBUILD\tDEPENDS ON")
	for _, svc := range summary.Services {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", svc.Name, dash(svc.Image), dash(svc.Build), dash(strings.Join(svc.DependsOn, ",")))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if built := summary.Built(); len(built) > 0 {
		fmt.Fprintf(o.opts.Out, "built on host: %s\n", strings.Join(built, ", "))
	}

	cache := o.commands.CacheTargets()
	if err := compose.RequireServices(summary, cache.RedisService, cache.AppService); err != nil {
		o.reporter.Warn(fmt.Sprintf("cache clearing will have no effect: %v", err))
	}
	return nil
}

// loadComposeSummary parses the compose file from the local project tree.
// Variables from the selected environment file win over the process
// environment, as they do on the host where that file becomes .env.
func (o *Operations) loadComposeSummary() (*compose.Summary, error) {
	path := filepath.Join(o.opts.Source, o.cfg.ComposeFile)
	content, err := afero.ReadFile(o.fs, path)
	if err != nil {
		return nil, err
	}

	env, err := o.interpolationEnv()
	if err != nil {
		return nil, err
	}
	return compose.ParseSummary(string(content), o.cfg.ComposeProject, env)
}

func (o *Operations) interpolationEnv() (map[string]string, error) {
	env := make(map[string]string, len(o.opts.Env))
	for k, v := range o.opts.Env {
		env[k] = v
	}

	if o.cfg.SourceEnvFile == "" {
		return env, nil
	}
	f, err := o.fs.Open(o.cfg.SourceEnvFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return env, nil
		}
		return nil, fmt.Errorf("open %s: %w", o.cfg.SourceEnvFile, err)
	}
	defer f.Close()

	entries, err := envfile.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", o.cfg.SourceEnvFile, err)
	}
	for k, v := range envfile.ToMap(entries) {
		env[k] = v
	}
	return env, nil
}

func valueOrMissing(v string) string {
	if strings.TrimSpace(v) == "" {
		return "<missing>"
	}
	return v
}

func dash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
