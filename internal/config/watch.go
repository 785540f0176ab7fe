package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/msageha/craftbridge/internal/logging"
)

// Watcher reloads the config file when it changes and applies the one runtime-mutable
// setting, logging.level. Everything else is fixed at start.
type Watcher struct {
	opts   Options
	level  zap.AtomicLevel
	logger *zap.Logger
	group  singleflight.Group
}

func NewWatcher(opts Options, level zap.AtomicLevel, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{opts: opts, level: level, logger: logger}
}

// Run watches the file's directory until ctx ends. Editors replace files rather than
// writing them in place, so the directory is watched and events filtered by name.
func (w *Watcher) Run(ctx context.Context) error {
	if w.opts.Path == "" {
		<-ctx.Done()
		return nil
	}
	target, err := filepath.Abs(w.opts.Path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}
	w.logger.Debug("watching config", zap.String("path", target))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			w.Reload()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

// Reload re-reads the config. Concurrent calls share one load. A rejected file is
// logged and leaves the current settings in place.
func (w *Watcher) Reload() {
	_, _, _ = w.group.Do("reload", func() (any, error) {
		cfg, err := Load(w.opts)
		if err != nil {
			w.logger.Warn("config reload rejected, keeping current settings", zap.Error(err))
			return nil, err
		}
		lvl, err := logging.ParseLevel(cfg.Logging.Level)
		if err != nil {
			w.logger.Warn("config reload rejected, keeping current settings", zap.Error(err))
			return nil, err
		}
		if lvl != w.level.Level() {
			w.logger.Info("log level changed", zap.Stringer("from", w.level.Level()), zap.Stringer("to", lvl))
			w.level.SetLevel(lvl)
		}
		w.logger.Debug("config reloaded", zap.String("path", w.opts.Path), zap.Stringer("level", lvl))
		return nil, nil
	})
}
