// Package config resolves the bridge's effective configuration.
//
// Precedence, lowest to highest:
//  1. built-in defaults (model.DefaultConfig)
//  2. the YAML file, when a path is given
//  3. CRAFTBRIDGE_<SECTION>_<FIELD> environment variables
//  4. the legacy MC_HOST, MC_PORT and BOT_USERNAME variables
//  5. overrides from the command line
//
// Environment keys split on the first underscore after the prefix:
//
//	CRAFTBRIDGE_SESSION_HOST         -> session.host
//	CRAFTBRIDGE_AREA_MAX_WIDTH       -> area.max_width
//	CRAFTBRIDGE_RECONNECT_BASE       -> reconnect.base
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/craftbridge/internal/model"
)

const (
	EnvPrefix         = "CRAFTBRIDGE_"
	maxConfigFileSize = 1024 * 1024
)

// legacyEnv maps the variables the original launcher read onto config keys.
var legacyEnv = []struct {
	name string
	key  string
}{
	{"MC_HOST", "session.host"},
	{"MC_PORT", "session.port"},
	{"BOT_USERNAME", "session.username"},
}

type Options struct {
	// Path is the YAML file. Empty skips the file; a missing file is an error.
	Path string
	// Overrides are koanf keys set from flags and positional arguments.
	Overrides map[string]any
}

func Load(opts Options) (model.Config, error) {
	k := koanf.New(".")

	defaults, err := yamlv3.Marshal(model.DefaultConfig())
	if err != nil {
		return model.Config{}, fmt.Errorf("encode defaults: %w", err)
	}
	if err := k.Load(rawbytes.Provider(defaults), yaml.Parser()); err != nil {
		return model.Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if opts.Path != "" {
		content, err := readConfigFile(opts.Path)
		if err != nil {
			return model.Config{}, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return model.Config{}, fmt.Errorf("parse config file %s: %w", opts.Path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return model.Config{}, fmt.Errorf("load environment: %w", err)
	}

	for _, l := range legacyEnv {
		if v, ok := os.LookupEnv(l.name); ok && v != "" {
			if err := k.Set(l.key, v); err != nil {
				return model.Config{}, fmt.Errorf("apply %s: %w", l.name, err)
			}
		}
	}

	for key, v := range opts.Overrides {
		if err := k.Set(key, v); err != nil {
			return model.Config{}, fmt.Errorf("apply override %s: %w", key, err)
		}
	}

	var cfg model.Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return model.Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	if err := cfg.Validate(); err != nil {
		return model.Config{}, err
	}
	return cfg, nil
}

// envKey maps CRAFTBRIDGE_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, errors.New("config path is a directory: " + path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return content, nil
}

// Encode renders cfg as YAML for the config subcommand.
func Encode(w io.Writer, cfg model.Config) error {
	enc := yamlv3.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}
