package eventlog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/vipers-surveillance/vipers/internal/logger"
)

// Watch calls onChange every time the log file is written, created, removed
// or renamed, until ctx is cancelled. The directory is watched rather than
// the file so a log that does not exist yet is still picked up.
func (l *Log) Watch(ctx context.Context, onChange func()) error {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &IOError{Op: "watch", Path: l.path, Err: err}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return &IOError{Op: "watch", Path: l.path, Err: err}
	}
	logger.Debug("EventLog", "Watching %s", l.path)

	target := filepath.Clean(l.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			onChange()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("EventLog", "Watcher error: %v", err)
		}
	}
}
