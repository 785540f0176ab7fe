package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/craftbridge/internal/model"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "craftbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(Options{})
	require.NoError(t, err)

	def := model.DefaultConfig()
	assert.Equal(t, def.Session, cfg.Session)
	assert.Equal(t, def.Reconnect, cfg.Reconnect)
	assert.Equal(t, def.Timeouts.Actions, cfg.Timeouts.Actions)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.For("dig"))
	assert.Equal(t, 15*time.Second, cfg.Timeouts.For("find_and_dig:approach"))
	assert.Equal(t, 4.5, cfg.Area.Reach)
	assert.Equal(t, int64(50*1024*1024), cfg.Transcript.MaxBytes)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
session:
  host: mc.example.net
  port: 25570
reconnect:
  base: 250ms
  fatal_patterns: ["banned"]
timeouts:
  actions:
    dig: 5s
area:
  max_width: 8
logging:
  level: DEBUG
  format: json
`)

	cfg, err := Load(Options{Path: path})
	require.NoError(t, err)

	assert.Equal(t, "mc.example.net", cfg.Session.Host)
	assert.Equal(t, 25570, cfg.Session.Port)
	assert.Equal(t, "McFunBot", cfg.Session.Username)
	assert.Equal(t, 250*time.Millisecond, cfg.Reconnect.Base.Duration())
	assert.Equal(t, []string{"banned"}, cfg.Reconnect.FatalPatterns)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.For("dig"))
	assert.Equal(t, 10*time.Second, cfg.Timeouts.For("place"), "unlisted overrides keep their defaults")
	assert.Equal(t, 8, cfg.Area.MaxWidth)
	assert.Equal(t, 10, cfg.Area.MaxHeight)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_Precedence(t *testing.T) {
	path := writeConfig(t, "session:\n  host: from-file\n  port: 1111\n  username: filebot\n")

	t.Setenv("CRAFTBRIDGE_SESSION_HOST", "from-env")
	t.Setenv("CRAFTBRIDGE_SESSION_PORT", "2222")
	t.Setenv("CRAFTBRIDGE_AREA_MAX_DEPTH", "7")
	t.Setenv("MC_PORT", "3333")
	t.Setenv("BOT_USERNAME", "legacybot")

	cfg, err := Load(Options{Path: path, Overrides: map[string]any{"session.username": "flagbot"}})
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Session.Host)
	assert.Equal(t, 3333, cfg.Session.Port)
	assert.Equal(t, "flagbot", cfg.Session.Username)
	assert.Equal(t, 7, cfg.Area.MaxDepth)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		opts    func(t *testing.T) Options
		wantErr string
	}{
		{
			name:    "missing file",
			opts:    func(t *testing.T) Options { return Options{Path: filepath.Join(t.TempDir(), "nope.yaml")} },
			wantErr: "open config file",
		},
		{
			name:    "directory",
			opts:    func(t *testing.T) Options { return Options{Path: t.TempDir()} },
			wantErr: "is a directory",
		},
		{
			name:    "bad yaml",
			opts:    func(t *testing.T) Options { return Options{Path: writeConfig(t, "session: [")} },
			wantErr: "parse config file",
		},
		{
			name: "invalid values",
			opts: func(t *testing.T) Options {
				return Options{Path: writeConfig(t, "session:\n  port: 70000\nlogging:\n  level: loud\n")}
			},
			wantErr: "session.port out of range",
		},
		{
			name:    "bad duration",
			opts:    func(t *testing.T) Options { return Options{Path: writeConfig(t, "reconnect:\n  base: soon\n")} },
			wantErr: "unmarshal config",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.opts(t))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "session.host", envKey("CRAFTBRIDGE_SESSION_HOST"))
	assert.Equal(t, "area.max_width", envKey("CRAFTBRIDGE_AREA_MAX_WIDTH"))
	assert.Equal(t, "debug", envKey("CRAFTBRIDGE_DEBUG"))
}

func TestEncode_RoundTripsThroughLoad(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Session.Host = "encoded"

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, cfg))
	assert.Contains(t, buf.String(), "host: encoded")
	assert.Contains(t, buf.String(), "default: 30s")

	var decoded map[string]any
	require.NoError(t, yamlv3.Unmarshal(buf.Bytes(), &decoded))

	loaded, err := Load(Options{Path: writeConfig(t, buf.String())})
	require.NoError(t, err)
	assert.Equal(t, "encoded", loaded.Session.Host)
}

func TestWatcher_ReloadsLogLevel(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: info\n")
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	core, logs := observer.New(zapcore.DebugLevel)
	w := NewWatcher(Options{Path: path}, level, zap.New(core))

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o600))
	w.Reload()
	assert.Equal(t, zapcore.DebugLevel, level.Level())
	assert.Equal(t, 1, logs.FilterMessage("log level changed").Len())
	assert.Equal(t, 1, logs.FilterMessage("config reloaded").Len())

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: nonsense\n"), 0o600))
	w.Reload()
	assert.Equal(t, zapcore.DebugLevel, level.Level(), "invalid reload keeps the current level")
	rejected := logs.FilterMessage("config reload rejected, keeping current settings").All()
	require.Len(t, rejected, 1)
	assert.Equal(t, zapcore.WarnLevel, rejected[0].Level)
	assert.Equal(t, 1, logs.FilterMessage("config reloaded").Len())
}

func TestWatcher_RunReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: info\n")
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	w := NewWatcher(Options{Path: path}, level, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("logging:\n  level: warn\n"), 0o600)
		return level.Level() == zapcore.WarnLevel
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
