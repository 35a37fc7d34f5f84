package deploy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const explorerCompose = `
services:
  explorer:
    build: .
    image: bch-explorer:latest
    depends_on:
      - redis
  redis:
    image: redis:7-alpine
`

func TestShowConfig_PrintsRecordAndServices(t *testing.T) {
	h := newHarness(t, map[string]string{
		".env.mainnet":            mainnetEnv,
		"docker-compose.prod.yml": explorerCompose,
	})
	require.NoError(t, h.ops.selector.Select("mainnet"))

	require.NoError(t, h.ops.ShowConfig(context.Background()))

	output := h.out.String()
	assert.Contains(t, output, "main.example.org")
	assert.Contains(t, output, ".env.mainnet")
	assert.Contains(t, output, "bitcoincash_explorer")
	assert.Contains(t, output, "redis:7-alpine")
	assert.Contains(t, output, "bch-explorer:latest")
	assert.Contains(t, output, "built on host: explorer")
	assert.NotContains(t, output, "cache clearing will have no effect")
	assert.Equal(t, 0, h.dialer.dials)
}

func TestShowConfig_InterpolatesFromSelectedEnvFile(t *testing.T) {
	h := newHarness(t, map[string]string{
		".env.chipnet":            "SERVER_HOSTNAME=chip.example.org\nSERVER_USER=deploy\nEXPLORER_TAG=chipnet-42\n",
		"docker-compose.prod.yml": "services:\n  explorer:\n    image: bch-explorer:${EXPLORER_TAG}\n  redis:\n    image: redis:7-alpine\n",
	})
	h.ops.opts.Env = map[string]string{"EXPLORER_TAG": "from-process"}
	require.NoError(t, h.ops.selector.Select("chipnet"))

	require.NoError(t, h.ops.ShowConfig(context.Background()))

	output := h.out.String()
	assert.Contains(t, output, "bch-explorer:chipnet-42")
	assert.NotContains(t, output, "from-process")
	assert.NotContains(t, output, "built on host")
}

func TestShowConfig_WarnsOnMissingValues(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.ops.ShowConfig(context.Background()))

	output := h.out.String()
	assert.Contains(t, output, "<missing>")
	assert.Contains(t, output, "missing required .env/env vars: SERVER_HOSTNAME, SERVER_USER")
	assert.Contains(t, output, "compose file docker-compose.prod.yml not found locally")
}

func TestShowConfig_WarnsWhenCacheServicesAbsent(t *testing.T) {
	h := newHarness(t, map[string]string{
		"docker-compose.prod.yml": "services:\n  web:\n    image: nginx\n",
	})

	require.NoError(t, h.ops.ShowConfig(context.Background()))

	assert.Contains(t, h.out.String(), "cache clearing will have no effect")
}

func TestShowConfig_InvalidComposeFails(t *testing.T) {
	h := newHarness(t, map[string]string{
		"docker-compose.prod.yml": "services: [",
	})

	err := h.ops.ShowConfig(context.Background())
	assert.Error(t, err)
}
