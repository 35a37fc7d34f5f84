package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/bchexplorer/deployctl/internal/core/commands"
	"github.com/bchexplorer/deployctl/internal/core/environment"
	"github.com/bchexplorer/deployctl/internal/shell/selector"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all tool configuration.
type Config struct {
	Log                LogConfig         `mapstructure:"log"`
	SSH                SSHConfig         `mapstructure:"ssh"`
	Target             TargetConfig      `mapstructure:"target"`
	Environments       map[string]string `mapstructure:"environments"`
	DefaultEnvironment string            `mapstructure:"default_environment"`
	Compose            BinaryConfig      `mapstructure:"compose"`
	Docker             BinaryConfig      `mapstructure:"docker"`
	Sync               SyncConfig        `mapstructure:"sync"`
	Cache              CacheConfig       `mapstructure:"cache"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SSHConfig holds SSH client configuration.
type SSHConfig struct {
	Port           int           `mapstructure:"port"`
	KeyFile        string        `mapstructure:"key_file"`
	KeyPassphrase  string        `mapstructure:"key_passphrase"`
	UseAgent       bool          `mapstructure:"use_agent"`
	KnownHosts     string        `mapstructure:"known_hosts"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// TargetConfig seeds the environment record before any environment file
// is loaded. The SERVER_* variables of the process environment land here.
type TargetConfig struct {
	Host           string `mapstructure:"host"`
	User           string `mapstructure:"user"`
	Path           string `mapstructure:"path"`
	ComposeFile    string `mapstructure:"compose_file"`
	ComposeProject string `mapstructure:"compose_project"`
}

// Record returns the environment record at process start.
func (c TargetConfig) Record() *environment.Config {
	record := environment.Defaults()
	for key, value := range map[string]string{
		environment.KeyHost:           c.Host,
		environment.KeyUser:           c.User,
		environment.KeyRemotePath:     c.Path,
		environment.KeyComposeFile:    c.ComposeFile,
		environment.KeyComposeProject: c.ComposeProject,
	} {
		if value != "" {
			record.Set(key, value)
		}
	}
	return record
}

// BinaryConfig names a remote binary, which may include a sudo prefix.
type BinaryConfig struct {
	Binary string `mapstructure:"binary"`
}

// SyncConfig holds file transfer configuration.
type SyncConfig struct {
	Source    string   `mapstructure:"source"`
	RsyncPath string   `mapstructure:"rsync_path"`
	Exclude   []string `mapstructure:"exclude"`
}

// CacheConfig names the stack's cache locations.
type CacheConfig struct {
	RedisService string   `mapstructure:"redis_service"`
	RedisKeys    []string `mapstructure:"redis_keys"`
	AppService   string   `mapstructure:"app_service"`
	MarkerPath   string   `mapstructure:"marker_path"`
}

// Targets converts the cache configuration.
func (c CacheConfig) Targets() commands.CacheTargets {
	return commands.CacheTargets{
		RedisService: c.RedisService,
		RedisKeys:    c.RedisKeys,
		AppService:   c.AppService,
		MarkerPath:   c.MarkerPath,
	}
}

// =============================================================================
// Config Loading
// =============================================================================

// envPrefix prefixes every tool setting in the process environment.
const envPrefix = "DEPLOYCTL"

// targetEnv maps record seed keys to the variables deployment files use.
var targetEnv = map[string]string{
	"target.host":            environment.KeyHost,
	"target.user":            environment.KeyUser,
	"target.path":            environment.KeyRemotePath,
	"target.compose_file":    environment.KeyComposeFile,
	"target.compose_project": environment.KeyComposeProject,
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"log-level":  "log.level",
	"log-format": "log.format",
}

// LoadConfig loads configuration from file, environment and flags.
// An empty configPath looks for deployctl.yaml in the working directory.
// flags may be nil.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("ssh.port", 22)
	v.SetDefault("ssh.key_file", "")
	v.SetDefault("ssh.key_passphrase", "")
	v.SetDefault("ssh.use_agent", true)
	v.SetDefault("ssh.known_hosts", "")
	v.SetDefault("ssh.connect_timeout", "10s")

	v.SetDefault("target.host", "")
	v.SetDefault("target.user", "")
	v.SetDefault("target.path", environment.DefaultRemotePath)
	v.SetDefault("target.compose_file", environment.DefaultComposeFile)
	v.SetDefault("target.compose_project", environment.DefaultComposeProject)

	v.SetDefault("environments", selector.DefaultFiles())
	v.SetDefault("default_environment", selector.DefaultEnvironment)

	v.SetDefault("compose.binary", commands.DefaultComposeBinary)
	v.SetDefault("docker.binary", commands.DefaultDockerBinary)

	v.SetDefault("sync.source", ".")
	v.SetDefault("sync.rsync_path", "rsync")
	v.SetDefault("sync.exclude", []string{})

	v.SetDefault("cache.redis_service", commands.DefaultRedisService)
	v.SetDefault("cache.redis_keys", commands.DefaultRedisKeys)
	v.SetDefault("cache.app_service", commands.DefaultAppService)
	v.SetDefault("cache.marker_path", commands.DefaultMarkerPath)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("deployctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var parseErr viper.ConfigParseError
		if errors.As(err, &parseErr) {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		// A missing file is fine, defaults apply.
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, name := range targetEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, name); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", name, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(cfg.Environments) == 0 {
		return nil, errors.New("no environments configured")
	}

	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
// Logs go to stderr; stdout carries remote command output.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
