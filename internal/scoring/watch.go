package scoring

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"eventtriage/internal/logger"
)

// TablesWatcher reloads a tables file whenever it changes on disk.
type TablesWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(Tables)
}

// NewTablesWatcher watches the directory holding path, so editors that
// replace the file by rename are still seen.
func NewTablesWatcher(path string, onChange func(Tables)) (*TablesWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve tables path: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create tables watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &TablesWatcher{path: abs, watcher: w, onChange: onChange}, nil
}

// Run blocks until ctx is done.
func (tw *TablesWatcher) Run(ctx context.Context) {
	defer tw.watcher.Close()
	logger.Infof("Watching scoring tables: %s", tw.path)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-tw.watcher.Events:
			if !ok {
				return
			}
			tw.handle(ev)
		case err, ok := <-tw.watcher.Errors:
			if !ok {
				return
			}
			logger.Warnf("Tables watcher error: %v", err)
		}
	}
}

func (tw *TablesWatcher) handle(ev fsnotify.Event) {
	if filepath.Clean(ev.Name) != tw.path {
		return
	}
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	tables, err := LoadTables(tw.path)
	if err != nil {
		logger.Warnf("Scoring tables reload failed, keeping previous tables: %v", err)
		return
	}
	logger.Infof("Scoring tables reloaded: attack_types=%d ports=%d", len(tables.AttackTypes), len(tables.Ports))
	tw.onChange(tables)
}
