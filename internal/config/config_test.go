package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "local", cfg.Lock.Backend)
	assert.Equal(t, 10*time.Second, cfg.Lock.TTL)
	assert.Equal(t, 24*time.Hour, cfg.Auth.JWTExpiry)
	assert.Equal(t, "connect-request-events", cfg.Kafka.ConnectionEventsTopic)
	assert.Equal(t, 30, cfg.RateLimit.RequestsPerMinute)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("DATABASE_TYPE", "mysql")
	t.Setenv("DATABASE_PORT", "3306")
	t.Setenv("LOCK_BACKEND", "redis")
	t.Setenv("KAFKA_ENABLED", "false")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Type)
	assert.Equal(t, 3306, cfg.Database.Port)
	assert.Equal(t, "redis", cfg.Lock.Backend)
	assert.False(t, cfg.Kafka.Enabled)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connect.yaml")
	content := `
API_SERVER:
  PORT: "9000"
RATE_LIMIT:
  REQUESTS_PER_MINUTE: 5
  BURST: 1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.APIServer.Port)
	assert.Equal(t, 5, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, 1, cfg.RateLimit.Burst)
	// 文件中未出现的键仍使用默认值
	assert.Equal(t, "0.0.0.0", cfg.APIServer.Host)
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
