package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/lessonsync/internal/reconcile"
	"github.com/abhisek/lessonsync/internal/store"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
	for _, k := range []string{
		"LESSONSYNC_CONFIG", "LESSONSYNC_INSTRUCTOR", "LESSONSYNC_TIMEZONE",
		"LESSONSYNC_STORE_DRIVER", "LESSONSYNC_STORE_DSN", "LESSONSYNC_CALENDAR_PROVIDER",
		"LESSONSYNC_CALENDAR_TIMEOUT", "LESSONSYNC_CONFLICT_POLICY", "LESSONSYNC_LOG_LEVEL",
		"LESSONSYNC_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT", "LESSONSYNC_LISTEN",
		"LESSONSYNC_ICS_PATH",
	} {
		t.Setenv(k, "")
	}
	t.Chdir(dir)
	return dir
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load(filepath.Join(dir, "nope.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "default", cfg.Instructor)
	assert.Equal(t, store.DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "ics", cfg.Calendar.Provider)
	assert.Equal(t, filepath.Join(dir, "lessonsync", "calendar.ics"), cfg.Calendar.ICS.Path)
	assert.Equal(t, reconcile.PolicyLocalWins, cfg.Sync.ConflictPolicy)
	assert.True(t, cfg.Sync.Conferencing)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
instructor: maria
timezone: Europe/Lisbon
calendar:
  provider: mock
  conferencing: false
  timeout: 5s
sync:
  conflict_policy: surface-only
  schedule: "0 * * * *"
api:
  listen: 0.0.0.0:9000
`), 0o600))

	t.Setenv("LESSONSYNC_INSTRUCTOR", "ana")
	t.Setenv("LESSONSYNC_CALENDAR_TIMEOUT", "2s")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "ana", cfg.Instructor)
	assert.Equal(t, "Europe/Lisbon", cfg.Location().String())
	assert.Equal(t, "mock", cfg.Calendar.Provider)
	assert.Equal(t, 2*time.Second, cfg.Calendar.Timeout)
	assert.False(t, cfg.Sync.Conferencing)
	assert.Equal(t, reconcile.PolicySurfaceOnly, cfg.Sync.ConflictPolicy)
	assert.Equal(t, "0 * * * *", cfg.Sync.Schedule)
	assert.Equal(t, "0.0.0.0:9000", cfg.API.Listen)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LESSONSYNC_LOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("LESSONSYNC_LOG_LEVEL") })
	os.Unsetenv("LESSONSYNC_LOG_LEVEL")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Telemetry.Level)
}

func TestLoad_UnknownField(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("calender:\n  provider: mock\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnv_BadDuration(t *testing.T) {
	isolate(t)
	t.Setenv("LESSONSYNC_CALENDAR_TIMEOUT", "soon")

	cfg := DefaultConfig()
	assert.Error(t, ApplyEnv(&cfg))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = store.DriverPostgres }},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mysql" }},
		{"unknown provider", func(c *Config) { c.Calendar.Provider = "outlook" }},
		{"bad policy", func(c *Config) { c.Sync.ConflictPolicy = "remote-wins" }},
		{"bad log level", func(c *Config) { c.Telemetry.Level = "loud" }},
		{"bad listen", func(c *Config) { c.API.Listen = "8080" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Calendar.Provider = "mock"
			require.NoError(t, cfg.Validate())
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDefaultPath(t *testing.T) {
	dir := isolate(t)
	p, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "lessonsync", "config.yaml"), p)

	t.Setenv("LESSONSYNC_CONFIG", "/etc/lessonsync.yaml")
	p, err = DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, "/etc/lessonsync.yaml", p)
}
