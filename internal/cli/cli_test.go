package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceConfigPassesConfigPath(t *testing.T) {
	cfg := serviceConfig("/etc/vision-gateway/config.yaml")
	assert.Equal(t, "vision-gateway", cfg.Name)
	assert.Equal(t, []string{"service", "run", "--config", "/etc/vision-gateway/config.yaml"}, cfg.Arguments)

	assert.Equal(t, []string{"service", "run"}, serviceConfig("").Arguments)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "vision-gateway dev")
}

func TestServiceCommandRequiresAction(t *testing.T) {
	rootCmd.SetArgs([]string{"service"})
	rootCmd.SetErr(&bytes.Buffer{})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetErr(nil) })

	assert.Error(t, rootCmd.Execute())
}
