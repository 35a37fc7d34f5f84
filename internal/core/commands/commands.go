// Package commands builds the shell command lines run on the deployment host.
// This is part of the Functional Core - every function returns a string and
// performs no I/O, so the exact remote invocations can be asserted in tests.
package commands

import (
	"strconv"
	"strings"

	"github.com/bchexplorer/deployctl/internal/core/environment"
	"github.com/kballard/go-shellquote"
)

// =============================================================================
// Defaults
// =============================================================================

const (
	DefaultComposeBinary = "sudo docker-compose"
	DefaultDockerBinary  = "sudo docker"

	// LogTail is the number of lines shown by the logs operation.
	LogTail = 100
)

// Tooling names the binaries invoked on the remote host.
type Tooling struct {
	Compose string // e.g. "sudo docker-compose" or "docker compose"
	Docker  string
}

// DefaultTooling returns the binaries used when none are configured.
func DefaultTooling() Tooling {
	return Tooling{
		Compose: DefaultComposeBinary,
		Docker:  DefaultDockerBinary,
	}
}

func (t Tooling) withDefaults() Tooling {
	if strings.TrimSpace(t.Compose) == "" {
		t.Compose = DefaultComposeBinary
	}
	if strings.TrimSpace(t.Docker) == "" {
		t.Docker = DefaultDockerBinary
	}
	return t
}

// =============================================================================
// Builders
// =============================================================================

// Builder renders commands for one environment.
// It reads the Config on every call so a later environment selection is
// picked up by builders created earlier.
type Builder struct {
	cfg   *environment.Config
	tools Tooling
	cache CacheTargets
}

// NewBuilder creates a Builder. Empty tooling and cache fields use defaults.
func NewBuilder(cfg *environment.Config, tools Tooling, cache CacheTargets) *Builder {
	return &Builder{
		cfg:   cfg,
		tools: tools.withDefaults(),
		cache: cache.withDefaults(),
	}
}

// CacheTargets returns the effective cache targets.
func (b *Builder) CacheTargets() CacheTargets {
	return b.cache
}

// Connectivity is the trivial diagnostic command.
func (b *Builder) Connectivity() string {
	return "uname -a"
}

// Compose renders a compose invocation scoped to the configured project and file.
func (b *Builder) Compose(args ...string) string {
	words := splitBinary(b.tools.Compose)
	words = append(words, "-p", b.cfg.ComposeProject, "-f", b.cfg.ComposeFile)
	words = append(words, args...)
	return shellquote.Join(words...)
}

// InRemotePath runs cmd with the remote working directory set to the
// configured remote path.
func (b *Builder) InRemotePath(cmd string) string {
	return InDir(b.cfg.RemotePath, cmd)
}

func (b *Builder) Build() string {
	return b.InRemotePath(b.Compose("build"))
}

// Up recreates every container from freshly built images, detached.
func (b *Builder) Up() string {
	return b.InRemotePath(b.Compose("up", "-d", "--build", "--force-recreate"))
}

func (b *Builder) Down() string {
	return b.InRemotePath(b.Compose("down"))
}

func (b *Builder) Restart() string {
	return b.InRemotePath(b.Compose("restart"))
}

func (b *Builder) Status() string {
	return b.InRemotePath(b.Compose("ps"))
}

// Logs returns a bounded tail, or a streamed tail when follow is set.
func (b *Builder) Logs(follow bool) string {
	tail := "--tail=" + strconv.Itoa(LogTail)
	if follow {
		return b.InRemotePath(b.Compose("logs", "-f", tail))
	}
	return b.InRemotePath(b.Compose("logs", tail))
}

// Prune returns the image and network cleanup commands, in order.
func (b *Builder) Prune() []string {
	docker := splitBinary(b.tools.Docker)
	image := append(append([]string{}, docker...), "image", "prune", "-f")
	network := append(append([]string{}, docker...), "network", "prune", "-f")
	return []string{
		shellquote.Join(image...),
		shellquote.Join(network...),
	}
}

// ClearCacheData deletes the application's cached lists from the data store container.
func (b *Builder) ClearCacheData() string {
	args := []string{"exec", "-T", b.cache.RedisService, "redis-cli", "DEL"}
	args = append(args, b.cache.RedisKeys...)
	return b.InRemotePath(b.Compose(args...))
}

// ClearAppCache drops a marker file the application checks on start.
func (b *Builder) ClearAppCache() string {
	return b.InRemotePath(b.Compose("exec", "-T", b.cache.AppService, "touch", b.cache.MarkerPath))
}

// =============================================================================
// Helpers
// =============================================================================

// InDir prefixes cmd with a cd into dir.
func InDir(dir, cmd string) string {
	if dir == "" {
		return cmd
	}
	return "cd " + shellquote.Join(dir) + " && " + cmd
}

// splitBinary splits a configured binary such as "sudo docker-compose" into
// words. Unparseable values are used as a single word.
func splitBinary(binary string) []string {
	words, err := shellquote.Split(binary)
	if err != nil || len(words) == 0 {
		return []string{binary}
	}
	return words
}
