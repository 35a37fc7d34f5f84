package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bchexplorer/deployctl/internal/core/environment"
	"github.com/bchexplorer/deployctl/internal/deploy"
	"github.com/bchexplorer/deployctl/internal/shell/remote"
	"github.com/bchexplorer/deployctl/internal/shell/selector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, ExitSuccess},
		{"usage", &usageError{err: errors.New("bad flag")}, ExitUsageError},
		{"unknown task", fmt.Errorf("%w: %q", deploy.ErrUnknownTask, "x"), ExitUsageError},
		{"unknown environment", fmt.Errorf("%w: %q", selector.ErrUnknownEnvironment, "x"), ExitUsageError},
		{"missing config", &environment.ConfigurationError{Missing: []string{environment.KeyUser}}, ExitUsageError},
		{"remote failure", remote.NewCommandError("build", 1, ""), ExitOperationFailure},
		{"other", errors.New("boom"), ExitOperationFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestRootCommand_NoTasks(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs(nil)
	cmd.SetOut(&bytes.Buffer{})

	err := cmd.ExecuteContext(context.Background())
	assert.Equal(t, ExitUsageError, exitCode(err))
}

func TestRootCommand_BadFlag(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"--no-such-flag", "status"})
	cmd.SetOut(&bytes.Buffer{})

	err := cmd.ExecuteContext(context.Background())
	assert.Equal(t, ExitUsageError, exitCode(err))
}

func TestRootCommand_UnknownTask(t *testing.T) {
	clearEnv(t)

	cmd := newRootCommand()
	cmd.SetArgs([]string{"status", "deploy-everything"})
	cmd.SetOut(&bytes.Buffer{})

	err := cmd.ExecuteContext(context.Background())
	assert.ErrorIs(t, err, deploy.ErrUnknownTask)
	assert.Equal(t, ExitUsageError, exitCode(err))
}

func TestRootCommand_UnknownEnvFlag(t *testing.T) {
	clearEnv(t)

	cmd := newRootCommand()
	cmd.SetArgs([]string{"--env", "testnet4", "status"})
	cmd.SetOut(&bytes.Buffer{})

	err := cmd.ExecuteContext(context.Background())
	assert.ErrorIs(t, err, selector.ErrUnknownEnvironment)
}

func TestRootCommand_ShowConfigWithoutHost(t *testing.T) {
	clearEnv(t)

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs([]string{"show-config"})
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "bitcoincash_explorer")
	assert.Contains(t, out.String(), "<missing>")
}

func TestRootCommand_Version(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs([]string{"--version"})
	cmd.SetOut(&out)

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), Version)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("DEPLOYCTL_DOTENV_TEST=from-file\nDEPLOYCTL_DOTENV_KEEP=from-file\nDEPLOYCTL_DOTENV_COMMENT='ops'  # deploy user\n"), 0600))

	t.Setenv("DEPLOYCTL_DOTENV_TEST", "")
	os.Unsetenv("DEPLOYCTL_DOTENV_TEST")
	t.Setenv("DEPLOYCTL_DOTENV_KEEP", "already-set")
	t.Setenv("DEPLOYCTL_DOTENV_COMMENT", "")
	os.Unsetenv("DEPLOYCTL_DOTENV_COMMENT")

	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("DEPLOYCTL_DOTENV_TEST"))
	assert.Equal(t, "already-set", os.Getenv("DEPLOYCTL_DOTENV_KEEP"))
	assert.Equal(t, "ops", os.Getenv("DEPLOYCTL_DOTENV_COMMENT"))

	assert.NoError(t, loadDotEnv(filepath.Join(dir, "missing.env")))
}

func TestDialConfig_OverlaysDefaults(t *testing.T) {
	dc := dialConfig(SSHConfig{KeyFile: "~/.ssh/deploy", UseAgent: false}, appOptions{})

	assert.Equal(t, 22, dc.Port)
	assert.Equal(t, 10*time.Second, dc.ConnectTimeout)
	assert.Equal(t, "~/.ssh/deploy", dc.KeyFile)
	assert.False(t, dc.UseAgent)
	assert.Equal(t, os.Stdout, dc.Stdout)

	var out bytes.Buffer
	dc = dialConfig(SSHConfig{Port: 2222, ConnectTimeout: time.Second, UseAgent: true}, appOptions{stdout: &out})
	assert.Equal(t, 2222, dc.Port)
	assert.Equal(t, time.Second, dc.ConnectTimeout)
	assert.True(t, dc.UseAgent)
	assert.Same(t, &out, dc.Stdout)
}
