package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadGatewayConfigLayers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9001"
consumer_name: gw-a
mirror_size: 64
`), 0o600))
	t.Setenv("GATEWAY_PORT", "")
	t.Setenv("NATS_URL", "nats://bus:4222")
	t.Setenv("GATEWAY_MIRROR_SIZE", "")

	cfg, err := loadGatewayConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "9001", cfg.Port)
	assert.Equal(t, "gw-a", cfg.ConsumerName)
	assert.Equal(t, 64, cfg.MirrorSize)
	assert.Equal(t, "nats://bus:4222", cfg.NATSURL)
	assert.Equal(t, "CLOCK_EVENTS", cfg.Stream)
}

func TestLoadGatewayConfigBadMirrorSize(t *testing.T) {
	t.Setenv("GATEWAY_MIRROR_SIZE", "lots")
	_, err := loadGatewayConfig("")
	assert.Error(t, err)
}
