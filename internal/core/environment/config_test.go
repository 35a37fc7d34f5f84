package environment

import (
	"errors"
	"strings"
	"testing"

	"github.com/bchexplorer/deployctl/internal/core/envfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, content string) []envfile.Entry {
	t.Helper()
	entries, err := envfile.Parse(strings.NewReader(content))
	require.NoError(t, err)
	return entries
}

// =============================================================================
// Apply Tests
// =============================================================================

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Empty(t, cfg.Name)
	assert.Empty(t, cfg.Host)
	assert.Empty(t, cfg.User)
	assert.Equal(t, DefaultRemotePath, cfg.RemotePath)
	assert.Equal(t, DefaultComposeFile, cfg.ComposeFile)
	assert.Equal(t, DefaultComposeProject, cfg.ComposeProject)
	assert.Equal(t, ".env", cfg.SourceEnvFile)
	assert.False(t, cfg.Selected())
}

func TestApply_AllKeys(t *testing.T) {
	cfg := Defaults()
	applied := cfg.Apply(parse(t, `
SERVER_HOSTNAME = "explorer.example.org"
SERVER_USER='deploy'
SERVER_PATH=/srv/explorer
SERVER_DOCKER_COMPOSE_FILE=docker-compose.chipnet.yml
SERVER_DOCKER_COMPOSE_PROJECT=explorer_chipnet
REDIS_URL=redis://redis:6379
`))

	assert.Equal(t, []string{KeyHost, KeyUser, KeyRemotePath, KeyComposeFile, KeyComposeProject}, applied)
	assert.Equal(t, "explorer.example.org", cfg.Host)
	assert.Equal(t, "deploy", cfg.User)
	assert.Equal(t, "/srv/explorer", cfg.RemotePath)
	assert.Equal(t, "docker-compose.chipnet.yml", cfg.ComposeFile)
	assert.Equal(t, "explorer_chipnet", cfg.ComposeProject)
	assert.Equal(t, "deploy@explorer.example.org", cfg.Target())
}

func TestApply_PartialKeepsPriorValues(t *testing.T) {
	cfg := Defaults()
	cfg.Apply(parse(t, "SERVER_HOSTNAME=a\nSERVER_USER=alice\nSERVER_PATH=/srv/a\n"))

	cfg.Apply(parse(t, "SERVER_HOSTNAME=b\n"))

	assert.Equal(t, "b", cfg.Host)
	assert.Equal(t, "alice", cfg.User)
	assert.Equal(t, "/srv/a", cfg.RemotePath)
	assert.Equal(t, DefaultComposeFile, cfg.ComposeFile)
}

func TestApply_UnknownKeysIgnored(t *testing.T) {
	cfg := Defaults()
	applied := cfg.Apply(parse(t, "FOO=bar\nBCH_RPC_URL=http://node:8332\n"))

	assert.Empty(t, applied)
	assert.Equal(t, Defaults(), cfg)
}

// =============================================================================
// Validate Tests
// =============================================================================

func TestValidate_HostAndUserOnly(t *testing.T) {
	cfg := Defaults()
	cfg.Apply(parse(t, "SERVER_HOSTNAME=host1\nSERVER_USER=alice\n"))

	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultRemotePath, cfg.RemotePath)
	assert.Equal(t, DefaultComposeFile, cfg.ComposeFile)
	assert.Equal(t, DefaultComposeProject, cfg.ComposeProject)
}

func TestValidate_MissingUser(t *testing.T) {
	cfg := Defaults()
	cfg.Apply(parse(t, "SERVER_HOSTNAME=host1\n"))

	err := cfg.Validate()
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, []string{KeyUser}, cfgErr.Missing)
	assert.ErrorIs(t, err, ErrMissingConfig)
	assert.Contains(t, err.Error(), "SERVER_USER")
	assert.NotContains(t, err.Error(), "SERVER_HOSTNAME")
}

func TestValidate_MissingBoth(t *testing.T) {
	err := Defaults().Validate()

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{KeyHost, KeyUser}, cfgErr.Missing)
	assert.Equal(t, "missing required .env/env vars: SERVER_HOSTNAME, SERVER_USER", err.Error())
}

func TestValidate_WhitespaceOnlyIsMissing(t *testing.T) {
	cfg := Defaults()
	cfg.Set(KeyHost, "   ")
	cfg.Set(KeyUser, "alice")

	var cfgErr *ConfigurationError
	require.ErrorAs(t, cfg.Validate(), &cfgErr)
	assert.Equal(t, []string{KeyHost}, cfgErr.Missing)
}
