package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/rpmsgsock/rpmsgsock"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "local_cpu: cpuA\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "cpuA", cfg.LocalCPU)
	require.Equal(t, rpmsgsock.DefaultRingCapacity, cfg.RingCapacity)
	require.Equal(t, rpmsgsock.DefaultPollWaiters, cfg.PollWaiters)
	require.Equal(t, rpmsgsock.DefaultMaxBacklog, cfg.MaxBacklog)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
local_cpu: cpuB
ring_capacity: 8192
poll_waiters: 16
max_backlog: 64
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "cpuB", cfg.LocalCPU)
	require.Equal(t, 8192, cfg.RingCapacity)
	require.Equal(t, 16, cfg.PollWaiters)
	require.Equal(t, 64, cfg.MaxBacklog)
}

func TestLoadMissingLocalCPUFailsValidation(t *testing.T) {
	path := writeConfig(t, "ring_capacity: 4096\n")

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsNonPositiveRingCapacity(t *testing.T) {
	path := writeConfig(t, "local_cpu: cpuA\nring_capacity: -1\n")

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadWithNoPathUsesEnvAndDefaults(t *testing.T) {
	t.Setenv("RPMSGSOCK_LOCAL_CPU", "cpuA")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "cpuA", cfg.LocalCPU)
	require.Equal(t, rpmsgsock.DefaultRingCapacity, cfg.RingCapacity)
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "local_cpu: cpuA\nmax_backlog: 16\n")

	t.Setenv("RPMSGSOCK_MAX_BACKLOG", "256")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 256, cfg.MaxBacklog)
}
