package setup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/craftbridge/internal/config"
	"github.com/msageha/craftbridge/internal/model"
	"github.com/msageha/craftbridge/templates"
)

func TestWriteConfig_MatchesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "craftbridge.yaml")

	require.NoError(t, WriteConfig(path, false))

	cfg, err := config.Load(config.Options{Path: path})
	require.NoError(t, err)
	def := model.DefaultConfig()
	assert.Equal(t, def.Session, cfg.Session)
	assert.Equal(t, def.Reconnect, cfg.Reconnect)
	assert.Equal(t, def.Timeouts, cfg.Timeouts)
	assert.Equal(t, def.Area, cfg.Area)
	assert.Equal(t, def.Movement, cfg.Movement)
	assert.Equal(t, model.Duration(5*time.Second), cfg.Daemon.ShutdownTimeout)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestWriteConfig_RefusesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "craftbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session:\n  host: mine\n"), 0o644))

	err := WriteConfig(path, false)
	assert.ErrorIs(t, err, ErrExists)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "session:\n  host: mine\n", string(data))
}

func TestWriteConfig_ForceKeepsBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "craftbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session:\n  host: mine\n"), 0o644))

	require.NoError(t, WriteConfig(path, true))

	bak, err := os.ReadFile(path + ".bak")
	require.NoError(t, err)
	assert.Equal(t, "session:\n  host: mine\n", string(bak))
	cur, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, templates.Config(), cur)
}

func TestAtomicWrite_RejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "craftbridge.yaml")

	err := atomicWrite(path, []byte("session:\n  port: 99999\n"))
	assert.ErrorContains(t, err, "session.port out of range")

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
