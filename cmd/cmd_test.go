package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/lessonsync/internal/calview"
	"github.com/abhisek/lessonsync/internal/lesson"
)

func testCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "test"}
	c.Flags().String("config", "", "")
	c.Flags().String("db", "", "")
	require.NoError(t, c.ParseFlags(args))
	return c
}

func TestLoadConfig_DBFlag(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_DATA_HOME", dir)
	t.Setenv("LESSONSYNC_CONFIG", "")
	t.Setenv("LESSONSYNC_DB", "")
	t.Chdir(dir)

	db := filepath.Join(dir, "nested", "lessons.db")
	cfg, err := loadConfig(testCommand(t, "--db", db))
	require.NoError(t, err)
	assert.Equal(t, db, cfg.Store.DSN)

	_, err = os.Stat(filepath.Dir(db))
	assert.NoError(t, err, "parent directory is created")
}

func TestLoadConfig_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)
	t.Setenv("LESSONSYNC_DB", "")
	t.Setenv("LESSONSYNC_CALENDAR_PROVIDER", "")
	t.Chdir(dir)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("instructor: ana\ncalendar:\n  provider: mock\n"), 0o644))

	cfg, err := loadConfig(testCommand(t, "--config", path))
	require.NoError(t, err)
	assert.Equal(t, "ana", cfg.Instructor)
	assert.Equal(t, "mock", cfg.Calendar.Provider)
	assert.Equal(t, filepath.Join(dir, "lessonsync", "lessonsync.db"), cfg.Store.DSN)
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)
	t.Chdir(dir)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("calendar:\n  provider: outlook\n"), 0o644))

	_, err := loadConfig(testCommand(t, "--config", path))
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestSyncLabel(t *testing.T) {
	tests := []struct {
		name string
		item calview.Item
		want string
	}{
		{"read-only event", calview.Item{Origin: calview.OriginRemote}, "read-only"},
		{"editable event", calview.Item{Origin: calview.OriginRemote, Editable: true}, "calendar"},
		{"completed", calview.Item{Origin: calview.OriginLocal, Status: lesson.StatusCompleted}, "completed"},
		{"detached", calview.Item{Origin: calview.OriginLocal, Detached: true, NeedsSync: true}, "removed"},
		{"pending", calview.Item{Origin: calview.OriginLocal, NeedsSync: true}, "pending"},
		{"synced", calview.Item{Origin: calview.OriginLocal, RemoteID: "ev1"}, "synced"},
		{"never synced", calview.Item{Origin: calview.OriginLocal}, "not synced"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, syncLabel(tt.item))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "Mari…", truncate("Mariana Souza", 5))
	assert.Equal(t, "Zoë", truncate("Zoë", 3))
}

func TestRate(t *testing.T) {
	assert.Zero(t, rate(0, 0))
	assert.InDelta(t, 75.0, rate(3, 1), 0.001)
}
