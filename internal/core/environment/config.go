// Package environment holds the deployment target record shared by every operation.
// This is part of the Functional Core - no I/O happens here.
package environment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bchexplorer/deployctl/internal/core/envfile"
)

// =============================================================================
// Keys and Defaults
// =============================================================================

// Recognized environment file keys.
const (
	KeyHost           = "SERVER_HOSTNAME"
	KeyUser           = "SERVER_USER"
	KeyRemotePath     = "SERVER_PATH"
	KeyComposeFile    = "SERVER_DOCKER_COMPOSE_FILE"
	KeyComposeProject = "SERVER_DOCKER_COMPOSE_PROJECT"
)

const (
	DefaultRemotePath     = "/root/bitcoincash-explorer"
	DefaultComposeFile    = "docker-compose.prod.yml"
	DefaultComposeProject = "bitcoincash_explorer"
	DefaultSourceEnvFile  = ".env"
)

// =============================================================================
// Errors
// =============================================================================

// ErrMissingConfig is matched by every ConfigurationError.
var ErrMissingConfig = errors.New("missing required configuration")

// ConfigurationError lists every required key that is empty.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing required .env/env vars: %s", strings.Join(e.Missing, ", "))
}

func (e *ConfigurationError) Unwrap() error {
	return ErrMissingConfig
}

// =============================================================================
// Config
// =============================================================================

// Config is the live deployment target.
//
// One Config is created per process and handed by pointer to the selector,
// the connection manager and the operations. Selecting an environment
// overwrites only the keys present in its file, so the last selection wins
// field by field.
type Config struct {
	Name           string // selected environment, empty when none was selected
	Host           string
	User           string
	RemotePath     string
	ComposeFile    string
	ComposeProject string
	SourceEnvFile  string // local file uploaded as the remote .env
}

// Defaults returns the record as it exists at process start.
func Defaults() *Config {
	return &Config{
		RemotePath:     DefaultRemotePath,
		ComposeFile:    DefaultComposeFile,
		ComposeProject: DefaultComposeProject,
		SourceEnvFile:  DefaultSourceEnvFile,
	}
}

// Set assigns a recognized key. It reports false for unknown keys.
func (c *Config) Set(key, value string) bool {
	switch key {
	case KeyHost:
		c.Host = value
	case KeyUser:
		c.User = value
	case KeyRemotePath:
		c.RemotePath = value
	case KeyComposeFile:
		c.ComposeFile = value
	case KeyComposeProject:
		c.ComposeProject = value
	default:
		return false
	}
	return true
}

// Apply overwrites the fields whose keys appear in entries and returns the
// keys that were applied. Fields without an entry keep their current value.
func (c *Config) Apply(entries []envfile.Entry) []string {
	var applied []string
	for _, e := range entries {
		if c.Set(e.Key, e.Value) {
			applied = append(applied, e.Key)
		}
	}
	return applied
}

// Validate checks that the connection target is complete.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Host) == "" {
		missing = append(missing, KeyHost)
	}
	if strings.TrimSpace(c.User) == "" {
		missing = append(missing, KeyUser)
	}
	if len(missing) > 0 {
		return &ConfigurationError{Missing: missing}
	}
	return nil
}

// Selected reports whether an environment has been selected.
func (c *Config) Selected() bool {
	return c.Name != ""
}

// Target returns user@host.
func (c *Config) Target() string {
	return c.User + "@" + c.Host
}
