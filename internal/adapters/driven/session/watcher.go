package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/m365ctl/internal/core/ports/driven"
	"github.com/custodia-labs/m365ctl/internal/logger"
)

// Verify interface compliance.
var _ driven.SessionWatcher = (*Watcher)(nil)

// Watcher reports changes to the session file.
//
// The parent directory is watched rather than the file itself: Save replaces
// the file by rename, and the file may not exist yet.
type Watcher struct {
	path string
}

// NewWatcher creates a watcher for the session file at path.
func NewWatcher(path string) *Watcher {
	return &Watcher{path: filepath.Clean(path)}
}

// Watch blocks, calling fn after every create, write, remove or rename of the
// session file, until ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context, fn func()) error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if w.relevant(event) {
				logger.Debug("session file changed (%s)", event.Op)
				fn()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("session watcher: %v", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}
