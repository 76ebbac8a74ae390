package dispatcher_config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"localhost:9094"}, cfg.Kafka.Brokers)
	assert.Equal(t, "herald.notifications.request", cfg.Kafka.IntakeTopic)
	assert.Equal(t, "herald.delivery.status", cfg.Kafka.StatusTopic)
	assert.Equal(t, "herald-dispatcher", cfg.Kafka.GroupID)
	assert.Equal(t, 30*time.Second, cfg.Outbox.InProgressTTL)
	assert.Equal(t, "@every 1h", cfg.Tracker.Spec)
	assert.Equal(t, 720*time.Hour, cfg.Tracker.Retention)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("TRACKER_RETENTION", "24h")
	t.Setenv("OUTBOX_WORKERS", "8")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, cfg.Tracker.Retention)
	assert.Equal(t, 8, cfg.Outbox.Workers)
}
