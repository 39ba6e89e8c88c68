package backend

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchEndpoint calls onChange whenever the endpoint artifact is created,
// removed or renamed. The parent directory is watched so the path need not
// exist yet. It blocks until ctx is cancelled.
func WatchEndpoint(ctx context.Context, path string, onChange func(op fsnotify.Op)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("backend: create watcher: %w", err)
	}
	defer watcher.Close()

	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("backend: watch %s: %w", filepath.Dir(path), err)
	}
	slog.Debug("[Backend] watching endpoint", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename) {
				slog.Debug("[Backend] endpoint changed", "op", ev.Op.String())
				onChange(ev.Op)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("[Backend] endpoint watcher", "error", err)
		}
	}
}
