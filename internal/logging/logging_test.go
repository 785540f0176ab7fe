package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/msageha/craftbridge/internal/model"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"fatal", zapcore.InfoLevel, true},
		{"loud", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(model.LoggingConfig{Level: "info", Format: "json"}, zapcore.AddSync(&buf))
	require.NoError(t, err)

	logger.Named("queue").Info("queued", zap.String("kind", "dig"))
	logger.Debug("hidden")
	require.NoError(t, logger.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "queued", entry["msg"])
	assert.Equal(t, "queue", entry["logger"])
	assert.Equal(t, "dig", entry["kind"])
	assert.Contains(t, entry, "ts")
}

func TestNew_AtomicLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, level, err := New(model.LoggingConfig{Level: "warn", Format: "console"}, zapcore.AddSync(&buf))
	require.NoError(t, err)

	logger.Info("before")
	level.SetLevel(zapcore.DebugLevel)
	logger.Debug("after")

	out := buf.String()
	assert.NotContains(t, out, "before")
	assert.Contains(t, out, "after")
}

func TestNew_RejectsBadConfig(t *testing.T) {
	_, _, err := New(model.LoggingConfig{Level: "info", Format: "xml"}, nil)
	assert.ErrorContains(t, err, "log format")

	_, _, err = New(model.LoggingConfig{Level: "verbose"}, nil)
	assert.ErrorContains(t, err, "invalid log level")
}

func TestIsStdioSyncError(t *testing.T) {
	assert.True(t, isStdioSyncError(syscall.EINVAL))
	assert.True(t, isStdioSyncError(fmt.Errorf("sync /dev/stderr: %w", syscall.ENOTTY)))
	assert.False(t, isStdioSyncError(syscall.EIO))
	assert.False(t, isStdioSyncError(fmt.Errorf("boom")))
}
