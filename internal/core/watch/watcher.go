// Package watch triggers reindexing when session files change on
// disk. Events are debounced so a burst of appends causes one pass.
package watch

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/retsubhtym/agent-sessions-sub002/internal/logging"
)

var log = logging.ForComponent(logging.CompWatch)

const defaultDebounce = 300 * time.Millisecond

// Watcher observes a set of root directories recursively and calls
// onChange after file activity settles.
type Watcher struct {
	roots    []string
	watcher  *fsnotify.Watcher
	onChange func()
	debounce time.Duration
	stopCh   chan struct{}

	mu      sync.Mutex
	stopped bool
}

func NewWatcher(roots []string, onChange func()) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		roots:    roots,
		watcher:  fsWatcher,
		onChange: onChange,
		debounce: defaultDebounce,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start registers the roots and their subdirectories and begins
// dispatching. Missing roots are skipped; they may appear later if a
// parent is watched.
func (w *Watcher) Start() error {
	watched := 0
	for _, root := range w.roots {
		if err := w.addTree(root); err == nil {
			watched++
		}
	}
	log.Info("watching session directories", slog.Int("roots", watched))
	go w.watchLoop()
	return nil
}

func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	return w.watcher.Close()
}

func (w *Watcher) addTree(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // unreadable subtree, keep walking the rest
		}
		if info.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				log.Debug("watch add failed",
					slog.String("path", path), slog.String("error", err.Error()))
			}
		}
		return nil
	})
}

func (w *Watcher) watchLoop() {
	var debounceTimer *time.Timer

	for {
		select {
		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// New project directories must join the watch set.
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.addTree(event.Name)
				}
			}
			if !relevant(event) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, w.onChange)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

// relevant keeps only writes, creates, and removals of transcript
// files.
func relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	name := event.Name
	return strings.HasSuffix(name, ".jsonl") || strings.HasSuffix(name, ".json")
}
