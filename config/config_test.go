package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("should apply defaults", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "clover", cfg.AppName)
		assert.Equal(t, "postgres", cfg.StorageDriver)
		assert.Equal(t, time.Minute, cfg.SweepExpiredTendersInterval)
		assert.Equal(t, 5*time.Minute, cfg.SweepNewShipmentsInterval)
		assert.Equal(t, 100, cfg.AutomationShadowLogLimit)
		assert.Equal(t, "clover.tender-responses", cfg.KafkaResponseTopic)
	})

	t.Run("should read overrides from the environment", func(t *testing.T) {
		t.Setenv("STORAGE_DRIVER", "memory")
		t.Setenv("SWEEP_NEW_SHIPMENTS_INTERVAL", "30s")
		t.Setenv("AUTOMATION_SHADOW_LOG_LIMIT", "25")

		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.UsesMemoryStorage())
		assert.Equal(t, 30*time.Second, cfg.SweepNewShipmentsInterval)
		assert.Equal(t, 25, cfg.AutomationShadowLogLimit)
	})

	t.Run("should load a dotenv file and skip missing ones", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, ".env")
		require.NoError(t, os.WriteFile(path, []byte("CLOVER_TEST_ONLY=1\nKAFKA_CONSUMER_GROUP=clover-test\n"), 0o600))
		t.Cleanup(func() {
			_ = os.Unsetenv("KAFKA_CONSUMER_GROUP")
			_ = os.Unsetenv("CLOVER_TEST_ONLY")
		})

		cfg, err := Load(filepath.Join(dir, "missing.env"), path)
		require.NoError(t, err)
		assert.Equal(t, "clover-test", cfg.KafkaConsumerGroup)
	})

	t.Run("should reject invalid values", func(t *testing.T) {
		t.Setenv("STORAGE_DRIVER", "sqlite")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "StorageDriver")
	})
	t.Run("should fail on a value that does not parse", func(t *testing.T) {
		t.Setenv("SWEEP_LOCK_TTL", "two minutes")
		_, err := Load()
		require.ErrorContains(t, err, "failed to read config")
	})

	t.Run("should reject a negative migration version", func(t *testing.T) {
		t.Setenv("DB_MIGRATION_VERSION", "-1")
		_, err := Load()
		require.ErrorContains(t, err, "DatabaseMigrationVersion")
	})
}
