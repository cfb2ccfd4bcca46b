package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Tasks.MaxConcurrent)
	assert.Equal(t, 24, cfg.Tasks.RetentionHours)
	assert.Equal(t, 10.0, cfg.Storage.QuotaGB)
	assert.Equal(t, "@hourly", cfg.Storage.MaintenanceSchedule)
	assert.Equal(t, "720p", cfg.Media.DefaultFormat)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("NEWSLEARN_SERVER_PORT", "9090")
	t.Setenv("NEWSLEARN_TASKS_MAX_CONCURRENT", "4")
	t.Setenv("NEWSLEARN_LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Tasks.MaxConcurrent)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("NEWSLEARN_LOG_LEVEL", "verbose")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Log.Level")
}

func TestLoadCollectsAllValidationErrors(t *testing.T) {
	t.Setenv("NEWSLEARN_LOG_LEVEL", "verbose")
	t.Setenv("NEWSLEARN_MEDIA_MAX_RESOLUTION", "4k")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Log.Level")
	assert.Contains(t, err.Error(), "Media.MaxResolution")
}

func TestDerivedValues(t *testing.T) {
	s := StorageConfig{QuotaGB: 2, CacheHours: 12}
	assert.Equal(t, int64(2*1024*1024*1024), s.QuotaBytes())
	assert.Equal(t, 12*time.Hour, s.CacheTTL())

	tc := TasksConfig{RetentionHours: 48}
	assert.Equal(t, 48*time.Hour, tc.RetentionDuration())
}
