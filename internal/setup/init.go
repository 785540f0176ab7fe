// Package setup writes a starter configuration file.
package setup

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/msageha/craftbridge/internal/config"
	"github.com/msageha/craftbridge/templates"
)

// DefaultConfigFile is where init writes when no path is given.
const DefaultConfigFile = "craftbridge.yaml"

var ErrExists = errors.New("config file already exists")

// WriteConfig writes the starter config to path. An existing file is kept unless force
// is set, in which case it is first copied to path+".bak".
func WriteConfig(path string, force bool) error {
	if path == "" {
		path = DefaultConfigFile
	}
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%w: %s", ErrExists, path)
	}
	return atomicWrite(path, templates.Config())
}

// atomicWrite replaces path with content via a validated temp file in the same directory.
func atomicWrite(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	// Step 1: write temp file
	tmp, err := os.CreateTemp(dir, ".craftbridge-tmp-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	// Step 2: the file must load as a valid config
	if _, err := config.Load(config.Options{Path: tmpName}); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	// Step 3: keep the previous file
	if _, err := os.Stat(path); err == nil {
		if err := copyFile(path, path+".bak"); err != nil {
			return fmt.Errorf("create backup: %w", err)
		}
	}

	// Step 4: atomic rename
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
