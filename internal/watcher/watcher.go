// file: internal/watcher/watcher.go
// version: 3.0.0
// guid: b2c3d4e5-f6a7-8901-bcde-f23456789012

package watcher

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// PartialSuffix marks files still being written by a download.
const PartialSuffix = ".part"

// DefaultDebounce is the default debounce period.
const DefaultDebounce = 2 * time.Second

// Callback is invoked after the debounce period with the worktree root that
// saw changes.
type Callback func(root string)

// Watcher monitors repo worktrees and invokes a callback per worktree once
// changes settle for the debounce period.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	roots     []string
	debounce  time.Duration
	callback  Callback
	stop      chan struct{}
	stopped   chan struct{}
	mu        sync.Mutex
	timers    map[string]*time.Timer
	running   bool
}

// New creates a Watcher. Pass 0 for debounce to use DefaultDebounce.
func New(callback Callback, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		debounce: debounce,
		callback: callback,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
		timers:   make(map[string]*time.Timer),
	}
}

// Start begins watching every root recursively. Roots that do not exist are
// skipped with a warning. Calling Start twice does nothing.
func (w *Watcher) Start(roots ...string) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsWatcher = fsw

	for _, root := range roots {
		root = filepath.Clean(root)
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			log.Printf("[WARN] watcher: worktree %s is not a directory, skipping", root)
			continue
		}
		w.roots = append(w.roots, root)
		if err := w.addRecursive(root); err != nil {
			fsw.Close()
			return err
		}
	}

	go w.eventLoop()
	return nil
}

// Roots returns the worktrees actually being watched.
func (w *Watcher) Roots() []string {
	return append([]string(nil), w.roots...)
}

// Stop shuts down the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stop)
	if w.fsWatcher != nil {
		w.fsWatcher.Close()
	}
	<-w.stopped

	w.mu.Lock()
	for root, t := range w.timers {
		t.Stop()
		delete(w.timers, root)
	}
	w.mu.Unlock()
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible dirs
		}
		if d.IsDir() {
			if path != root && isHidden(d.Name()) {
				return filepath.SkipDir
			}
			if watchErr := w.fsWatcher.Add(path); watchErr != nil {
				log.Printf("[WARN] watcher: cannot watch %s: %v", path, watchErr)
			}
		}
		return nil
	})
}

func (w *Watcher) eventLoop() {
	defer close(w.stopped)

	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Printf("[ERROR] watcher: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !isHidden(info.Name()) {
			_ = w.addRecursive(event.Name)
		}
	}

	relevant := event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) != 0
	if !relevant || IsIgnored(event.Name) {
		return
	}

	root := w.rootFor(event.Name)
	if root == "" {
		return
	}
	w.schedule(root)
}

func (w *Watcher) rootFor(path string) string {
	for _, root := range w.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return root
		}
	}
	return ""
}

func (w *Watcher) schedule(root string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[root]; ok {
		t.Reset(w.debounce)
		return
	}

	w.timers[root] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, root)
		w.mu.Unlock()

		log.Printf("[DEBUG] watcher: changes settled in %s", root)
		if w.callback != nil {
			w.callback(root)
		}
	})
}

// IsIgnored reports whether a change to name should not trigger a refresh:
// partial downloads, hidden files and editor backups.
func IsIgnored(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, PartialSuffix) ||
		strings.HasSuffix(base, "~") ||
		isHidden(base)
}

func isHidden(base string) bool {
	return strings.HasPrefix(base, ".")
}
