package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "localhost:25565", cfg.Session.Address())
	assert.Equal(t, 10, cfg.Reconnect.MaxAttempts)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty host", func(c *Config) { c.Session.Host = " " }},
		{"port", func(c *Config) { c.Session.Port = 70000 }},
		{"username", func(c *Config) { c.Session.Username = "" }},
		{"cap below base", func(c *Config) { c.Reconnect.Cap = Duration(time.Millisecond) }},
		{"timeout", func(c *Config) { c.Timeouts.Default = 0 }},
		{"level", func(c *Config) { c.Logging.Level = "trace" }},
		{"format", func(c *Config) { c.Logging.Format = "xml" }},
		{"progress", func(c *Config) { c.Area.ProgressEvery = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestTimeoutsFor(t *testing.T) {
	timeouts := DefaultConfig().Timeouts
	assert.Equal(t, 10*time.Second, timeouts.For("place"))
	assert.Equal(t, 15*time.Second, timeouts.For("craft"))
	assert.Equal(t, 15*time.Second, timeouts.For("find_and_dig:approach"))
	assert.Equal(t, 10*time.Second, timeouts.For("sleep:approach"), "phase falls back to its action")
	assert.Equal(t, 30*time.Second, timeouts.For("dig"))
}

func TestDuration(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration())
	assert.Equal(t, int64(90000), d.Milliseconds())

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))

	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}

func TestActionErrorCode(t *testing.T) {
	err := ValidationErrorf("Invalid coordinates: %s", "x")
	assert.Equal(t, ErrCodeValidation, CodeOf(err))
	assert.Equal(t, "Invalid coordinates: x", err.Error())

	wrapped := WrapError(ErrCodeTimeout, errors.New("dig timed out after 10ms"))
	assert.Equal(t, ErrCodeTimeout, CodeOf(wrapped))
	assert.Equal(t, ErrCodeFailed, CodeOf(errors.New("plain")))
	assert.Nil(t, WrapError(ErrCodeFailed, nil))
}

func TestGeometry(t *testing.T) {
	p := Vec3{X: -0.5, Y: 64.9, Z: 3.2}
	assert.Equal(t, BlockPos{X: -1, Y: 64, Z: 3}, p.Floored())
	assert.Equal(t, Vec3{X: 1.5, Y: 1.5, Z: 1.5}, BlockPos{1, 1, 1}.Center())
	assert.InDelta(t, 5.0, Vec3{}.DistanceTo(Vec3{X: 3, Y: 4}), 1e-9)
	assert.True(t, IsAir("cave_air"))
	assert.True(t, IsAir(""))
	assert.False(t, IsAir("stone"))
	assert.Equal(t, "1, -2, 3", BlockPos{1, -2, 3}.String())
}
