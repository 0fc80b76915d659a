package catalog

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads path whenever it is written and swaps the new tables into h.
// Documents that fail validation are logged and ignored, so the previous
// tables stay active. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, h *Holder, logger *zap.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors often replace the file rather than write it.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			next, err := LoadFile(path)
			if err != nil {
				logger.Warn("rules reload rejected", zap.String("path", path), zap.Error(err))
				continue
			}
			prev := h.Swap(next)
			logger.Info("rules reloaded",
				zap.String("path", path),
				zap.String("version", next.Version),
				zap.String("previous_version", prev.Version))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("rules watcher error", zap.Error(err))
		}
	}
}
