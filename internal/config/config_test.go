package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "gateway-1", cfg.GatewayID)
	assert.Equal(t, "nats", cfg.ModuleTransport)
	assert.Equal(t, 30*time.Second, cfg.HealthCheckInterval)
	assert.Equal(t, 3, cfg.HealthRetryThreshold)
	assert.Equal(t, 15*time.Second, cfg.RemoteCallTimeout)
	assert.NotEmpty(t, cfg.NatsURL)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("GATEWAY_ID", "edge-42")
	t.Setenv("HEALTH_RETRY_THRESHOLD", "5")
	t.Setenv("REMOTE_CALL_TIMEOUT", "3s")
	t.Setenv("MODULE_TRANSPORT", "GRPC")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "edge-42", cfg.GatewayID)
	assert.Equal(t, 5, cfg.HealthRetryThreshold)
	assert.Equal(t, 3*time.Second, cfg.RemoteCallTimeout)
	assert.Equal(t, "grpc", cfg.ModuleTransport)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scope_id: plant-7\nport: 9100\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "plant-7", cfg.ScopeID)
	assert.Equal(t, 9100, cfg.Port)
}

func TestLoadMissingConfigFileFallsBack(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "scope", cfg.ScopeID)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		GatewayID:            "gw",
		NatsURL:              "nats://localhost:4222",
		ModuleTransport:      "nats",
		HealthRetryThreshold: 1,
		RemoteCallTimeout:    time.Second,
	}
	require.NoError(t, cfg.Validate())

	cfg.ModuleTransport = "http"
	cfg.HealthRetryThreshold = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MODULE_TRANSPORT")
	assert.Contains(t, err.Error(), "HEALTH_RETRY_THRESHOLD")
}
