package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkaarten-service/internal/config"
)

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := config.LoadFile(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, time.Hour, cfg.Sync.Interval)
	assert.Equal(t, 4, cfg.Sync.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 0, cfg.Fetch.MaxRetries)
	assert.Equal(t, "dataset-sync-workers", cfg.Worker.ConsumerGroup)
	assert.NotEmpty(t, cfg.Publish.IconBaseURL)
}

func TestLoadFile_FromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "API_PORT=9090\nDB_HOST=db\nDB_PORT=5432\nSYNC_INTERVAL=120\nFETCH_MAX_RETRIES=2\nPUBLIC_BASE_URL=https://maps.example.org/\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "db", cfg.Database.Host)
	assert.Equal(t, 2*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 2, cfg.Fetch.MaxRetries)
	assert.Equal(t, "https://maps.example.org", cfg.Publish.BaseURL)
	assert.Equal(t, "0.0.0.0:9090", cfg.GetServerAddr())
}

func TestLoadFile_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LOG_LEVEL=info\n"), 0o600))
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadFile_NonPositiveIntervalFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SYNC_INTERVAL=-30\nREDIS_POOL_SIZE=-1\n"), 0o600))

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, time.Hour, cfg.Sync.Interval)
	assert.Equal(t, 20, cfg.Redis.PoolSize)
}

func TestLoadFile_RedisAndGeocoder(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := config.LoadFile(filepath.Join(t.TempDir(), "missing.env"))
		require.NoError(t, err)

		assert.Equal(t, "localhost:6379", cfg.GetRedisAddr())
		assert.Equal(t, 5*time.Second, cfg.Redis.PingTimeout)
		assert.Equal(t, 3*time.Second, cfg.Redis.ReadTimeout)
		assert.True(t, cfg.Geocoder.Enabled)
		assert.Equal(t, "https://nominatim.openstreetmap.org", cfg.Geocoder.BaseURL)
		assert.Equal(t, cfg.Fetch.UserAgent, cfg.Geocoder.UserAgent)
		assert.Equal(t, "nl", cfg.Geocoder.CountryCodes)
	})

	t.Run("from env file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		content := "REDIS_URL=redis://cache:6380/2\nREDIS_DIAL_TIMEOUT=750\nGEOCODER_ENABLED=false\nGEOCODER_BASE_URL=http://geo.local/\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		cfg, err := config.LoadFile(path)
		require.NoError(t, err)

		assert.Equal(t, "redis://cache:6380/2", cfg.Redis.URL)
		assert.Equal(t, 750*time.Millisecond, cfg.Redis.DialTimeout)
		assert.False(t, cfg.Geocoder.Enabled)
		assert.Equal(t, "http://geo.local", cfg.Geocoder.BaseURL)
	})
}
