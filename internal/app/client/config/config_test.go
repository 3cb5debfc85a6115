package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldsync/internal/domain/record"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CONFIG_DIR", dir)
	t.Setenv("SERVER_ADDRESS", "collect.example.org")

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "http://collect.example.org", cfg.BaseURL())
	assert.Equal(t, filepath.Join(dir, "fieldsync.db"), cfg.DataPath)
	assert.Equal(t, filepath.Join(dir, "token"), cfg.TokenPath)
	assert.Equal(t, 30*time.Second, cfg.SyncEvery())
	assert.NotEmpty(t, cfg.Engine.Resources)
	assert.NotEmpty(t, cfg.Engine.NaturalKeys)
	assert.Equal(t, uint(1), cfg.Engine.Retry.MaxAttempts)
	assert.True(t, cfg.IsLocal())
}

func TestLoad_DeviceIDIsStable(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CONFIG_DIR", dir)

	first, err := Load(viper.New())
	require.NoError(t, err)
	second, err := Load(viper.New())
	require.NoError(t, err)

	assert.NotEmpty(t, first.DeviceID)
	assert.Equal(t, first.DeviceID, second.DeviceID)

	t.Setenv("DEVICE_ID", "tablet-7")
	third, err := Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "tablet-7", third.DeviceID)
}

func TestLoad_EngineFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "engine.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
resources:
  - key: families
    stale_time: 10m
    envelope: families
  - key: villages
    path: /api/v1/geo/villages
    force_sync: true
natural_keys:
  - kind: monitoring_response
    fields: [family_id, form_id]
    reason: already monitored
references:
  - resource: monitoring_response
    field: registration_id
    target: registration
retry:
  max_attempts: 3
  initial_interval: 1s
  max_interval: 20s
policies:
  social_post:
    max_attempts: 2
`), 0600))

	t.Setenv("CONFIG_DIR", dir)
	t.Setenv("CONFIG_FILE", file)
	t.Setenv("ENABLE_TLS", "true")

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	require.Len(t, cfg.Engine.Resources, 2)
	assert.Equal(t, 10*time.Minute, cfg.Engine.Resources[0].StaleTime)
	assert.Equal(t, "families", cfg.Engine.Resources[0].Envelope)
	assert.True(t, cfg.Engine.Resources[1].ForceSync)

	require.Len(t, cfg.Engine.NaturalKeys, 1)
	assert.Equal(t, record.KindMonitoringResponse, cfg.Engine.NaturalKeys[0].Kind)

	require.Len(t, cfg.Engine.References, 1)
	assert.Equal(t, "registration_id", cfg.Engine.References[0].Field)

	assert.Equal(t, uint(3), cfg.Engine.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Engine.Retry.InitialInterval)
	assert.Equal(t, uint(2), cfg.Engine.Policies["social_post"].MaxAttempts)

	assert.Equal(t, "https://localhost:8080", cfg.BaseURL())
}

func TestLoad_MissingEngineFile(t *testing.T) {
	t.Setenv("CONFIG_DIR", t.TempDir())
	t.Setenv("CONFIG_FILE", "/nonexistent/engine.yaml")

	_, err := Load(viper.New())
	assert.Error(t, err)
}
