package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Queue.Concurrency)
	assert.Equal(t, 3, cfg.Queue.MaxReceive)
	assert.False(t, cfg.IsProduction())

	require.NoError(t, cfg.Validate())
}

func TestLoadFromFilesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fragor.toml")
	content := `
environment = "production"

[server]
port = 9090

[cache]
counter_ttl = "30s"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Cache.CounterTTLDuration())
	// Untouched values keep their defaults.
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 10*time.Minute, cfg.Cache.GuardTTLDuration())
}

func TestLoadFromFilesEnvOverride(t *testing.T) {
	t.Setenv("FRAGOR_SERVER_PORT", "7070")
	t.Setenv("FRAGOR_GITHUB_TOKEN", "test-token")

	cfg, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "test-token", cfg.GitHub.Token)
}

func TestValidateRejectsBadEnvironment(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Environment = "staging"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadDuration(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Queue.VisibilityTimeout = "five minutes"
	assert.Error(t, cfg.Validate())
}

func TestDurationAccessorFallbacks(t *testing.T) {
	q := QueueConfig{PollInterval: "garbage", VisibilityTimeout: "2m", PurgeAfter: "-1h"}
	assert.Equal(t, time.Second, q.PollIntervalDuration())
	assert.Equal(t, 2*time.Minute, q.VisibilityTimeoutDuration())
	assert.Equal(t, 24*time.Hour, q.PurgeAfterDuration())
}
