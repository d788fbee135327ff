package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period WatchConfig waits after the last write.
const DefaultDebounce = 500 * time.Millisecond

// WatchConfig watches the given files and emits the absolute path of a file
// once its writes have settled for the debounce period. The directory of
// each file is watched so editors that save by rename are still seen. The
// channel is closed when ctx is cancelled.
func WatchConfig(ctx context.Context, debounce time.Duration, files ...string) (<-chan string, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(files))
	dirs := make(map[string]bool)
	for _, file := range files {
		absPath, err := filepath.Abs(file)
		if err != nil {
			slog.Warn("Could not resolve absolute path for watch file", "file", file)
			continue
		}
		wanted[absPath] = true
		dirs[filepath.Dir(absPath)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			slog.Warn("Could not watch directory", "dir", dir, "error", err)
		} else {
			slog.Debug("Watching configuration directory", "dir", dir)
		}
	}

	reloadCh := make(chan string, len(wanted)+1)

	go func() {
		var (
			mu     sync.Mutex
			closed bool
			timers = make(map[string]*time.Timer)
		)
		defer func() {
			watcher.Close()
			mu.Lock()
			defer mu.Unlock()
			for _, t := range timers {
				t.Stop()
			}
			closed = true
			close(reloadCh)
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				name, _ := filepath.Abs(event.Name)
				if !wanted[name] {
					continue
				}
				// Vim/nano atomic saves show up as Create or Rename
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
					continue
				}
				mu.Lock()
				if t, ok := timers[name]; ok {
					t.Stop()
				}
				timers[name] = time.AfterFunc(debounce, func() {
					mu.Lock()
					defer mu.Unlock()
					if closed {
						return
					}
					slog.Info("Configuration change detected", "file", name)
					// Non-blocking send
					select {
					case reloadCh <- name:
					default:
					}
				})
				mu.Unlock()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Watcher encountered an error", "error", err)
			}
		}
	}()

	return reloadCh, nil
}
