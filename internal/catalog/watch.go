package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors the configured fixture sources and invokes the supplied
// callback with a freshly loaded snapshot whenever they change. Stop must be
// called to release filesystem resources.
type Watcher struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop halts the watcher and waits for the underlying goroutine to exit.
func (w *Watcher) Stop() {
	if w == nil {
		return
	}
	w.once.Do(func() {
		w.cancel()
		<-w.done
	})
}

// Watch wires fsnotify around the fixture file and folder and reloads the
// snapshot on any relevant change. Reload bursts are debounced so editors
// that write in several steps trigger a single reload.
func Watch(ctx context.Context, fixtureFile, fixtureFolder string, onChange func(Snapshot), onError func(error)) (*Watcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("catalog: watch requires a change callback")
	}
	if fixtureFile == "" && fixtureFolder == "" {
		return nil, fmt.Errorf("catalog: no fixture source configured for watching")
	}

	watchCtx, cancel := context.WithCancel(ctx)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("catalog: watch fixtures: %w", err)
	}

	done := make(chan struct{})
	w := &Watcher{cancel: cancel, done: done}

	reportError := func(err error) {
		if onError != nil {
			onError(err)
		}
	}

	dirs := map[string]struct{}{}
	addDir := func(dir string) {
		dir = filepath.Clean(dir)
		if _, ok := dirs[dir]; ok {
			return
		}
		if err := watcher.Add(dir); err != nil {
			reportError(fmt.Errorf("catalog: watch add %s: %w", dir, err))
			return
		}
		dirs[dir] = struct{}{}
	}

	targetFile := ""
	if fixtureFile != "" {
		resolved := fixtureFile
		if path, err := filepath.Abs(fixtureFile); err == nil {
			resolved = path
		}
		targetFile = filepath.Clean(resolved)
		addDir(filepath.Dir(targetFile))
	}
	if fixtureFolder != "" {
		addDir(fixtureFolder)
	}

	go func() {
		defer close(done)
		defer func() {
			if err := watcher.Close(); err != nil {
				reportError(fmt.Errorf("catalog: watch close: %w", err))
			}
		}()

		reload := func() {
			snap, err := LoadSnapshot(fixtureFile, fixtureFolder)
			if err != nil {
				reportError(err)
				return
			}
			onChange(snap)
		}

		const debounce = 25 * time.Millisecond
		var reloadTimer *time.Timer
		var reloadSignal <-chan time.Time
		scheduleReload := func() {
			if reloadTimer == nil {
				reloadTimer = time.NewTimer(debounce)
			} else {
				if !reloadTimer.Stop() {
					select {
					case <-reloadTimer.C:
					default:
					}
				}
				reloadTimer.Reset(debounce)
			}
			reloadSignal = reloadTimer.C
		}

		for {
			select {
			case <-watchCtx.Done():
				return
			case <-reloadSignal:
				reloadSignal = nil
				reload()
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				name := filepath.Clean(event.Name)
				if targetFile != "" && name == targetFile {
					if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) != 0 {
						scheduleReload()
					}
					continue
				}
				if event.Op&fsnotify.Create != 0 {
					if info, err := os.Stat(name); err == nil && info.IsDir() {
						addDir(name)
						continue
					}
				}
				if parserFor(name) == nil {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) != 0 {
					scheduleReload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				reportError(fmt.Errorf("catalog: watch error: %w", err))
			}
		}
	}()

	return w, nil
}
