// Package watch turns writes to an HTML snapshot file into document
// mutation notifications.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/elonfeng/feedpulse/pkg/document"
)

// Watch monitors path and calls onChange with the re-parsed snapshot each
// time the file is written or replaced by an atomic save. It runs until ctx
// is cancelled.
//
// The parent directory is watched so a replaced or recreated file is picked
// up again. If a reparse fails, or the file is removed, the error is logged
// and the previous snapshot stays live.
func Watch(ctx context.Context, path, location, selector string, onChange func(*document.Snapshot)) error {
	path = filepath.Clean(path)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	slog.Info("watch: watching for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				slog.Warn("watch: file removed, keeping previous snapshot", "path", path)
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			snap, err := document.ParseFile(path, location, selector)
			if err != nil {
				slog.Error("watch: reparse failed, keeping previous snapshot", "path", path, "err", err)
				continue
			}

			slog.Debug("watch: reloaded", "path", path, "items", len(snap.Items()))
			onChange(snap)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("watch: watcher error", "err", err)
		}
	}
}
