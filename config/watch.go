package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"

	"github.com/vixen-gfx/vixen/event"
)

// Changed is published on the event bus whenever Watcher observes the
// configured file change on disk. Subscribers (typically the engine's
// top-level driver) decide whether and when to reload — the watcher itself
// never re-decodes or mutates a live Config.
type Changed struct {
	Path string
}

// Watcher observes a config file for external changes (an operator editing
// vixen.toml, a deployment tool rewriting it) and republishes them as
// Changed events.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	bus     *event.Bus
	done    chan struct{}
}

// NewWatcher starts watching path, publishing Changed on bus for every
// write or rename fsnotify reports against it.
func NewWatcher(path string, bus *event.Bus) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}

	w := &Watcher{watcher: fw, path: path, bus: bus, done: make(chan struct{})}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Rename|fsnotify.Create) != 0 {
				event.Publish(w.bus, Changed{Path: w.path})
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher goroutine and releases the underlying fsnotify
// handle.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
