// Package model defines the bridge's wire records, configuration and session state.
package model

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Session    SessionConfig    `koanf:"session" yaml:"session"`
	Reconnect  ReconnectConfig  `koanf:"reconnect" yaml:"reconnect"`
	Timeouts   TimeoutsConfig   `koanf:"timeouts" yaml:"timeouts"`
	Area       AreaConfig       `koanf:"area" yaml:"area"`
	Movement   MovementConfig   `koanf:"movement" yaml:"movement"`
	Chat       ChatConfig       `koanf:"chat" yaml:"chat"`
	Logging    LoggingConfig    `koanf:"logging" yaml:"logging"`
	HTTP       HTTPConfig       `koanf:"http" yaml:"http"`
	Mirror     MirrorConfig     `koanf:"mirror" yaml:"mirror"`
	Lock       LockConfig       `koanf:"lock" yaml:"lock"`
	Transcript TranscriptConfig `koanf:"transcript" yaml:"transcript"`
	Daemon     DaemonConfig     `koanf:"daemon" yaml:"daemon"`
}

type SessionConfig struct {
	Host     string `koanf:"host" yaml:"host"`
	Port     int    `koanf:"port" yaml:"port"`
	Username string `koanf:"username" yaml:"username"`
	Auth     string `koanf:"auth" yaml:"auth"`
	Driver   string `koanf:"driver" yaml:"driver"`
}

func (s SessionConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type ReconnectConfig struct {
	MaxAttempts   int      `koanf:"max_attempts" yaml:"max_attempts"`
	Base          Duration `koanf:"base" yaml:"base"`
	Cap           Duration `koanf:"cap" yaml:"cap"`
	FatalPatterns []string `koanf:"fatal_patterns" yaml:"fatal_patterns"`
}

// TimeoutsConfig holds the uniform action deadline plus per-label overrides.
// Labels are action kinds or "<kind>:<phase>" for sub-steps such as approach.
type TimeoutsConfig struct {
	Default Duration            `koanf:"default" yaml:"default"`
	Actions map[string]Duration `koanf:"actions" yaml:"actions"`
}

func (t TimeoutsConfig) For(label string) time.Duration {
	if d, ok := t.Actions[label]; ok && d > 0 {
		return d.Duration()
	}
	if i := strings.IndexByte(label, ':'); i > 0 {
		if d, ok := t.Actions[label[:i]]; ok && d > 0 {
			return d.Duration()
		}
	}
	return t.Default.Duration()
}

type AreaConfig struct {
	DefaultWidth  int     `koanf:"default_width" yaml:"default_width"`
	DefaultHeight int     `koanf:"default_height" yaml:"default_height"`
	DefaultDepth  int     `koanf:"default_depth" yaml:"default_depth"`
	MaxWidth      int     `koanf:"max_width" yaml:"max_width"`
	MaxHeight     int     `koanf:"max_height" yaml:"max_height"`
	MaxDepth      int     `koanf:"max_depth" yaml:"max_depth"`
	Reach         float64 `koanf:"reach" yaml:"reach"`
	ApproachRange int     `koanf:"approach_range" yaml:"approach_range"`
	ProgressEvery int     `koanf:"progress_every" yaml:"progress_every"`
}

type MovementConfig struct {
	FallbackMove   Duration `koanf:"fallback_move" yaml:"fallback_move"`
	FallbackGoto   Duration `koanf:"fallback_goto" yaml:"fallback_goto"`
	GotoRange      int      `koanf:"goto_range" yaml:"goto_range"`
	FollowDistance int      `koanf:"follow_distance" yaml:"follow_distance"`
	JumpPulse      Duration `koanf:"jump_pulse" yaml:"jump_pulse"`
	SearchRadius   int      `koanf:"search_radius" yaml:"search_radius"`
	DigReach       float64  `koanf:"dig_reach" yaml:"dig_reach"`
}

type ChatConfig struct {
	RatePerSecond float64 `koanf:"rate_per_second" yaml:"rate_per_second"`
	Burst         int     `koanf:"burst" yaml:"burst"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}

type HTTPConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

type MirrorConfig struct {
	NATSURL       string `koanf:"nats_url" yaml:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix" yaml:"subject_prefix"`
}

type LockConfig struct {
	Dir string `koanf:"dir" yaml:"dir"`
}

type TranscriptConfig struct {
	Path     string `koanf:"path" yaml:"path"`
	MaxBytes int64  `koanf:"max_bytes" yaml:"max_bytes"`
}

type DaemonConfig struct {
	ShutdownTimeout Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// DefaultConfig mirrors the bridge's historical defaults.
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			Host:     "localhost",
			Port:     25565,
			Username: "McFunBot",
			Auth:     "offline",
			Driver:   "sim",
		},
		Reconnect: ReconnectConfig{
			MaxAttempts:   10,
			Base:          Duration(time.Second),
			Cap:           Duration(30 * time.Second),
			FatalPatterns: []string{"not whitelisted", "banned"},
		},
		Timeouts: TimeoutsConfig{
			Default: Duration(30 * time.Second),
			Actions: map[string]Duration{
				"place":                 Duration(10 * time.Second),
				"activate_block":        Duration(10 * time.Second),
				"equip":                 Duration(10 * time.Second),
				"craft":                 Duration(15 * time.Second),
				"drop":                  Duration(10 * time.Second),
				"drop_item":             Duration(10 * time.Second),
				"sleep":                 Duration(10 * time.Second),
				"goal":                  Duration(30 * time.Second),
				"find_and_dig:approach": Duration(15 * time.Second),
				"dig_area:approach":     Duration(10 * time.Second),
			},
		},
		Area: AreaConfig{
			DefaultWidth:  5,
			DefaultHeight: 3,
			DefaultDepth:  5,
			MaxWidth:      20,
			MaxHeight:     10,
			MaxDepth:      20,
			Reach:         4.5,
			ApproachRange: 3,
			ProgressEvery: 10,
		},
		Movement: MovementConfig{
			FallbackMove:   Duration(2 * time.Second),
			FallbackGoto:   Duration(3 * time.Second),
			GotoRange:      2,
			FollowDistance: 3,
			JumpPulse:      Duration(500 * time.Millisecond),
			SearchRadius:   32,
			DigReach:       5,
		},
		Chat: ChatConfig{
			RatePerSecond: 1,
			Burst:         5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Mirror: MirrorConfig{
			SubjectPrefix: "craftbridge",
		},
		Transcript: TranscriptConfig{
			MaxBytes: 50 * 1024 * 1024,
		},
		Daemon: DaemonConfig{
			ShutdownTimeout: Duration(5 * time.Second),
		},
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Session.Host) == "" {
		problems = append(problems, "session.host is required")
	}
	if c.Session.Port <= 0 || c.Session.Port > 65535 {
		problems = append(problems, fmt.Sprintf("session.port out of range: %d", c.Session.Port))
	}
	if strings.TrimSpace(c.Session.Username) == "" {
		problems = append(problems, "session.username is required")
	}
	if c.Reconnect.MaxAttempts < 0 {
		problems = append(problems, "reconnect.max_attempts must be >= 0")
	}
	if c.Reconnect.Base <= 0 {
		problems = append(problems, "reconnect.base must be > 0")
	}
	if c.Reconnect.Cap < c.Reconnect.Base {
		problems = append(problems, "reconnect.cap must be >= reconnect.base")
	}
	if c.Timeouts.Default <= 0 {
		problems = append(problems, "timeouts.default must be > 0")
	}
	if c.Area.MaxWidth <= 0 || c.Area.MaxHeight <= 0 || c.Area.MaxDepth <= 0 {
		problems = append(problems, "area caps must be > 0")
	}
	if c.Area.ProgressEvery <= 0 {
		problems = append(problems, "area.progress_every must be > 0")
	}
	if c.Chat.RatePerSecond <= 0 || c.Chat.Burst <= 0 {
		problems = append(problems, "chat rate and burst must be > 0")
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		problems = append(problems, fmt.Sprintf("logging.level invalid: %q", c.Logging.Level))
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		problems = append(problems, fmt.Sprintf("logging.format invalid: %q", c.Logging.Format))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
