package admission

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "admission.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig(LoadOptions{Args: []string{}, Environ: []string{}})
	require.NoError(t, err)

	require.True(t, cfg.EnableHTTP)
	require.Equal(t, ":8080", cfg.HTTPListenAddr)
	require.True(t, cfg.EnableGRPC)
	require.Equal(t, ":9090", cfg.GRPCListenAddr)
	require.Equal(t, 5*time.Minute, cfg.CleanupInterval)
	require.Equal(t, 10*time.Second, cfg.LoadSampleInterval)
	require.Equal(t, 1.0, cfg.InitialLoadMultiplier)
	require.True(t, cfg.SeedDefaultEndpoints)
	require.False(t, cfg.EnableAuth)
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Parallel()
	path := writeConfigFile(t, `
http_addr: ":7070"
enable_grpc: false
cleanup_interval: 30s
initial_load_multiplier: 0.5
endpoints:
  /api/data:
    algorithm: token_bucket
    token_bucket:
      capacity: 100
      refillRate: 10
      initialTokens: 100
    per_peer: true
    trusted_multiplier: 2.0
  /api/register:
    algorithm: sliding_window
    sliding_window:
      windowSize: 300
      maxRequests: 10
      subWindows: 10
`)

	cfg, err := LoadConfig(LoadOptions{ConfigPath: path, Args: []string{}, Environ: []string{}})
	require.NoError(t, err)

	require.Equal(t, ":7070", cfg.HTTPListenAddr)
	require.False(t, cfg.EnableGRPC)
	require.Equal(t, 30*time.Second, cfg.CleanupInterval)
	require.Equal(t, 0.5, cfg.InitialLoadMultiplier)

	data, ok := cfg.Endpoints["/api/data"]
	require.True(t, ok)
	require.Equal(t, AlgorithmTokenBucket, data.Algorithm.Kind)
	require.Equal(t, uint32(100), data.Algorithm.TokenBucket.Capacity)
	require.True(t, data.PerPeer)
	require.Equal(t, 2.0, data.TrustedMultiplier)

	register, ok := cfg.Endpoints["/api/register"]
	require.True(t, ok)
	require.Equal(t, AlgorithmSlidingWindow, register.Algorithm.Kind)
	require.Equal(t, uint32(10), register.Algorithm.SlidingWindow.SubWindows)
	// Unset trusted multiplier defaults to neutral.
	require.Equal(t, 1.0, register.TrustedMultiplier)
}

func TestLoadConfigRejectsInvalidEndpointPolicy(t *testing.T) {
	t.Parallel()
	path := writeConfigFile(t, `
endpoints:
  /api/broken:
    algorithm: token_bucket
    token_bucket:
      capacity: 0
      refillRate: 1
`)

	_, err := LoadConfig(LoadOptions{ConfigPath: path, Args: []string{}, Environ: []string{}})
	require.Error(t, err)
}

func TestLoadConfigRejectsInvalidDuration(t *testing.T) {
	t.Parallel()
	path := writeConfigFile(t, "cleanup_interval: nonsense\n")
	_, err := LoadConfig(LoadOptions{ConfigPath: path, Args: []string{}, Environ: []string{}})
	require.Error(t, err)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	t.Parallel()
	path := writeConfigFile(t, "http_addr: \":7070\"\n")

	cfg, err := LoadConfig(LoadOptions{
		ConfigPath: path,
		Args:       []string{},
		Environ: []string{
			"ADMISSION_HTTP_ADDR=:6060",
			"ADMISSION_ENABLE_AUTH=true",
			"ADMISSION_ADMIN_TOKEN=secret",
			"ADMISSION_CLEANUP_INTERVAL_MS=1500",
		},
	})
	require.NoError(t, err)

	require.Equal(t, ":6060", cfg.HTTPListenAddr)
	require.True(t, cfg.EnableAuth)
	require.Equal(t, "secret", cfg.AdminToken)
	require.Equal(t, 1500*time.Millisecond, cfg.CleanupInterval)
}

func TestLoadConfigFlagsOverrideEnv(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig(LoadOptions{
		Args:    []string{"-http_addr", ":5050", "-seed_defaults=false"},
		Environ: []string{"ADMISSION_HTTP_ADDR=:6060"},
	})
	require.NoError(t, err)

	require.Equal(t, ":5050", cfg.HTTPListenAddr)
	require.False(t, cfg.SeedDefaultEndpoints)
}

func TestLoadConfigFlagSelectsConfigFile(t *testing.T) {
	t.Parallel()
	path := writeConfigFile(t, "grpc_addr: \":4040\"\n")

	cfg, err := LoadConfig(LoadOptions{Args: []string{"-config", path}, Environ: []string{}})
	require.NoError(t, err)
	require.Equal(t, ":4040", cfg.GRPCListenAddr)
}

func TestLoadConfigInvalidEnvValue(t *testing.T) {
	t.Parallel()
	_, err := LoadConfig(LoadOptions{
		Args:    []string{},
		Environ: []string{"ADMISSION_ENABLE_HTTP=maybe"},
	})
	require.Error(t, err)
}

func TestAlgorithmConfigValidate(t *testing.T) {
	t.Parallel()
	valid := AlgorithmConfig{
		Kind:        AlgorithmTokenBucket,
		TokenBucket: TokenBucketConfig{Capacity: 1, RefillRate: 1},
	}
	require.NoError(t, valid.Validate())

	require.Error(t, AlgorithmConfig{Kind: "unknown"}.Validate())
	require.Error(t, AlgorithmConfig{
		Kind:        AlgorithmTokenBucket,
		TokenBucket: TokenBucketConfig{Capacity: 1},
	}.Validate())
	require.Error(t, AlgorithmConfig{
		Kind:          AlgorithmSlidingWindow,
		SlidingWindow: SlidingWindowConfig{WindowSize: 10, MaxRequests: 0, SubWindows: 2},
	}.Validate())
}
