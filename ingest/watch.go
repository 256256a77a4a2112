package ingest

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last filesystem
// event before re-ingesting. Editors fire bursts of writes; one run per
// burst is enough.
const DefaultDebounce = 2 * time.Second

// Watch re-runs the pipeline whenever files under dir change. Runs are
// serialized and debounced; a failed run is logged and watching continues.
// Watch blocks until ctx is cancelled.
func (p *Pipeline) Watch(ctx context.Context, dir string, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := addRecursive(watcher, dir); err != nil {
		return err
	}

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Create) {
				// New subdirectories need their own watch.
				_ = addRecursive(watcher, event.Name)
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Warn("watch error", "error", err)

		case <-timer.C:
			if _, err := p.Run(ctx, dir); err != nil {
				p.logger.Error("re-ingest failed", "error", err)
			}
		}
	}
}

// addRecursive watches path and every directory below it. Non-directories
// and vanished paths are ignored; fsnotify does not watch recursively on
// its own.
func addRecursive(watcher *fsnotify.Watcher, path string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if name := d.Name(); len(name) > 1 && name[0] == '.' {
			return filepath.SkipDir
		}
		return watcher.Add(p)
	})
}
