package vfs

import (
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/franz/medialib/internal/util"
)

// Watcher observes entry-point directories and reports change activity so
// the discoverer can schedule reloads without polling. Events are collapsed
// to the watched root: the discoverer reloads a whole entry point anyway.
type Watcher struct {
	watcher *fsnotify.Watcher
	onDirty func(root string)

	mu    sync.Mutex
	roots []string
	done  chan struct{}
	wg    sync.WaitGroup
}

// NewWatcher starts a watcher delivering dirty-root callbacks. onDirty must
// be safe for concurrent use.
func NewWatcher(onDirty func(root string)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		watcher: fw,
		onDirty: onDirty,
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Watch adds a root directory to the watch set.
func (w *Watcher) Watch(root string) error {
	if err := w.watcher.Add(root); err != nil {
		return err
	}
	w.mu.Lock()
	w.roots = append(w.roots, root)
	w.mu.Unlock()
	return nil
}

// Unwatch removes a root directory from the watch set.
func (w *Watcher) Unwatch(root string) {
	w.watcher.Remove(root)
	w.mu.Lock()
	for i, r := range w.roots {
		if r == root {
			w.roots = append(w.roots[:i], w.roots[i+1:]...)
			break
		}
	}
	w.mu.Unlock()
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) == 0 {
				continue
			}
			if root := w.rootFor(ev.Name); root != "" {
				w.onDirty(root)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			util.WarnLog("fs watcher: %v", err)
		}
	}
}

func (w *Watcher) rootFor(path string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range w.roots {
		if path == r || len(path) > len(r) && path[:len(r)] == r && path[len(r)] == '/' {
			return r
		}
	}
	return ""
}

// Close stops the watcher and waits for its goroutine.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
