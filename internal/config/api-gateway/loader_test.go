package api_gateway_config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	common "github.com/NordCoder/Herald/internal/config/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, common.DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, time.Hour, cfg.Cache.PreferenceTTL)
	assert.Equal(t, 10000, cfg.Bus.MaxLen)
	assert.Equal(t, 3, cfg.Channels.Push.Attempts)
	assert.Equal(t, 50.0, cfg.Channels.SMS.RatePerSec)
	assert.Equal(t, "herald/api-gateway", cfg.Log.AsLoggerConfig(cfg.App).App)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api-gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  driver: sqlite
  sqlite:
    path: /tmp/herald-test.db
channels:
  email:
    rate_per_sec: 2
bus:
  max_len: 50
`), 0o600))
	t.Setenv("CACHE_PREFERENCE_TTL", "5m")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, common.DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "/tmp/herald-test.db", cfg.Storage.SQLite.Path)
	assert.Equal(t, 2.0, cfg.Channels.Email.RatePerSec)
	assert.Equal(t, 10, cfg.Channels.Email.Burst)
	assert.Equal(t, 50, cfg.Bus.MaxLen)
	assert.Equal(t, 5*time.Minute, cfg.Cache.PreferenceTTL)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "mongo")
	_, err := Load("")
	var cerr common.ErrConfig
	require.ErrorAs(t, err, &cerr)
}
