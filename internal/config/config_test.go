package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5*time.Second, cfg.Timer.ReconcileInterval)
	assert.Equal(t, time.Second, cfg.Timer.TickInterval)
	assert.True(t, cfg.Notify.Enabled)
	assert.Equal(t, time.Hour, cfg.Notify.LeakNudgeAfter)
	assert.Equal(t, 5*time.Minute, cfg.Notify.LeakNudgeEvery)
	assert.Equal(t, 10*time.Second, cfg.Sync.Timeout)
	assert.Empty(t, cfg.Sync.URL)
	assert.Equal(t, "/v1", cfg.Server.BasePath)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Dir(Path(ws)), 0o755))
	require.NoError(t, os.WriteFile(Path(ws), []byte("sync:\n  url: https://example.com/hook\n  timeout: 3s\n"), 0o644))

	cfg, err := Load(ws)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/hook", cfg.Sync.URL)
	assert.Equal(t, 3*time.Second, cfg.Sync.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Timer.ReconcileInterval)
}

func TestValidateCollectsFieldErrors(t *testing.T) {
	_, err := FromYAML([]byte(`
timer:
  reconcile_interval: 0s
sync:
  url: ftp://nope
log:
  level: loud
`))
	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Len(t, fieldErrs, 3)

	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fe.Field)
	}
	assert.Contains(t, fields, "timer.reconcile_interval")
	assert.Contains(t, fields, "sync.url")
	assert.Contains(t, fields, "log.level")
}

func TestFromYAMLRejectsGarbage(t *testing.T) {
	_, err := FromYAML([]byte("timer: ["))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config yaml")
}

func TestOverlay(t *testing.T) {
	v := viper.New()
	v.Set("sync.url", "http://localhost:9000/tasks")
	v.Set("timer.reconcile_interval", "2s")
	v.Set("notify.enabled", false)

	cfg := Default()
	require.NoError(t, cfg.Overlay(v))
	assert.Equal(t, "http://localhost:9000/tasks", cfg.Sync.URL)
	assert.Equal(t, 2*time.Second, cfg.Timer.ReconcileInterval)
	assert.False(t, cfg.Notify.Enabled)
	assert.Equal(t, time.Second, cfg.Timer.TickInterval)

	v.Set("server.base_path", "api")
	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, cfg.Overlay(v), &fieldErrs)
}
