package assets

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/lumo/engine/containers"
	"github.com/spaghettifunk/lumo/engine/core"
)

// ShaderTracker watches a shader directory, sub-directories included, and
// queues the files written since the last drain. Paths are absolute.
type ShaderTracker struct {
	root string

	mutex sync.Mutex
	// Every file seen under root, used to recover from a queue overflow.
	known    map[string]struct{}
	changed  *containers.RingQueue[string]
	overflow bool

	fsnotify *fsnotify.Watcher
	done     chan struct{}
	stopped  chan struct{}
	isClosed bool
}

func NewShaderTracker(dir string, capacity int) (*ShaderTracker, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	t := &ShaderTracker{
		root:     root,
		known:    make(map[string]struct{}),
		changed:  containers.NewRingQueue[string](capacity),
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	if err := t.watchRecursive(root, false); err != nil {
		fsWatch.Close()
		return nil, err
	}
	go t.start()
	core.LogInfo("tracking shaders under %s", root)
	return t, nil
}

func (t *ShaderTracker) Root() string {
	return t.root
}

func (t *ShaderTracker) start() {
	defer close(t.stopped)
	for {
		select {
		case e, ok := <-t.fsnotify.Events:
			if !ok {
				return
			}
			t.handle(e)
		case err, ok := <-t.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("shader tracker: %s", err)
		case <-t.done:
			return
		}
	}
}

func (t *ShaderTracker) handle(e fsnotify.Event) {
	if s, err := os.Stat(e.Name); err == nil && s.IsDir() {
		if e.Op&fsnotify.Create != 0 {
			if err := t.watchRecursive(e.Name, false); err != nil {
				core.LogWarn("shader tracker: cannot watch %s: %s", e.Name, err)
			}
		}
		return
	}
	if ignored(e.Name) {
		return
	}
	switch {
	case e.Op&(fsnotify.Create|fsnotify.Write) != 0:
		t.markChanged(e.Name)
	case e.Op&fsnotify.Rename != 0:
		// Editors saving through a rename produce a Create for the new file.
		t.forget(e.Name)
	case e.Op&fsnotify.Remove != 0:
		t.forget(e.Name)
		// Can't stat a deleted directory; removing an unknown watch is harmless.
		_ = t.fsnotify.Remove(e.Name)
	}
}

func ignored(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp")
}

func (t *ShaderTracker) markChanged(path string) {
	path = filepath.Clean(path)
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.known[path] = struct{}{}
	if t.overflow {
		return
	}
	if err := t.changed.Enqueue(path); err != nil {
		core.LogWarn("shader tracker: change queue full, next drain reports every shader")
		t.overflow = true
	}
}

func (t *ShaderTracker) forget(path string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	delete(t.known, filepath.Clean(path))
}

// watchRecursive adds or removes every directory under path and indexes the
// files it finds.
func (t *ShaderTracker) watchRecursive(path string, unWatch bool) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if unWatch {
				return t.fsnotify.Remove(walkPath)
			}
			return t.fsnotify.Add(walkPath)
		}
		if !ignored(walkPath) {
			t.mutex.Lock()
			t.known[filepath.Clean(walkPath)] = struct{}{}
			t.mutex.Unlock()
		}
		return nil
	})
}

// DrainChanged returns the distinct files changed since the last call, sorted.
// After an overflow it returns every known file once.
func (t *ShaderTracker) DrainChanged() []string {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	var files []string
	if t.overflow {
		t.changed.Drain()
		t.overflow = false
		files = make([]string, 0, len(t.known))
		for f := range t.known {
			files = append(files, f)
		}
	} else {
		files = t.changed.Drain()
	}
	slices.Sort(files)
	return slices.Compact(files)
}

func (t *ShaderTracker) Close() error {
	t.mutex.Lock()
	if t.isClosed {
		t.mutex.Unlock()
		return core.ErrTrackerClosed
	}
	t.isClosed = true
	t.mutex.Unlock()

	close(t.done)
	<-t.stopped
	return t.fsnotify.Close()
}
