package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FSWatcher is the Watcher backed by fsnotify. fsnotify watches are not
// recursive, so FSWatcher tracks every directory it added and extends the
// set when new directories are created below a recursive root.
type FSWatcher struct {
	fsw    *fsnotify.Watcher
	ignore *Ignore
	logger *zap.Logger

	mu        sync.Mutex
	watched   map[string]struct{}
	recursive map[string]struct{}
	closed    bool

	events chan Event
	errors chan error
	done   chan struct{}
}

var _ Watcher = (*FSWatcher)(nil)

// New starts an FSWatcher with nothing watched yet.
func New(opts ...Option) (*FSWatcher, error) {
	cfg := config{buffer: 128, ignore: DefaultIgnorePatterns, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w := &FSWatcher{
		fsw:       fsw,
		ignore:    NewIgnore(cfg.ignore...),
		logger:    cfg.logger.Named("watcher"),
		watched:   make(map[string]struct{}),
		recursive: make(map[string]struct{}),
		events:    make(chan Event, cfg.buffer),
		errors:    make(chan error, cfg.buffer),
		done:      make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Watch adds path. Adding a path twice is a no-op.
func (w *FSWatcher) Watch(path string) error {
	abs, err := existing(path)
	if err != nil {
		return err
	}
	return w.add(abs)
}

func (w *FSWatcher) WatchRecursive(path string) error {
	abs, err := existing(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.recursive[abs] = struct{}{}
	w.mu.Unlock()
	return w.addTree(abs)
}

// Watching reports whether path itself has a watch.
func (w *FSWatcher) Watching(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.watched[abs]
	return ok
}

func (w *FSWatcher) Events() <-chan Event { return w.events }
func (w *FSWatcher) Errors() <-chan error { return w.errors }

// Close releases the fsnotify handle and waits for the event loop to
// drain. Closing twice is a no-op.
func (w *FSWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	err := w.fsw.Close()
	<-w.done
	return err
}

func (w *FSWatcher) add(abs string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if _, ok := w.watched[abs]; ok {
		return nil
	}
	if err := w.fsw.Add(abs); err != nil {
		return fmt.Errorf("watch %s: %w", abs, err)
	}
	w.watched[abs] = struct{}{}
	return nil
}

// addTree watches root and its non-ignored subdirectories. Failures below
// root are reported on the error channel so one unreadable folder does not
// hide the rest of the tree.
func (w *FSWatcher) addTree(root string) error {
	if !isDir(root) {
		return w.add(root)
	}
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			w.report(err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && w.ignore.Match(p, true) {
			return filepath.SkipDir
		}
		if err := w.add(p); err != nil {
			if p == root {
				return err
			}
			w.report(err)
		}
		return nil
	})
}

func (w *FSWatcher) loop() {
	defer close(w.done)
	defer close(w.errors)
	defer close(w.events)

	for {
		select {
		case raw, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(raw)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.report(err)
		}
	}
}

func (w *FSWatcher) handle(raw fsnotify.Event) {
	op := opOf(raw.Op)
	if op == 0 {
		return
	}
	dir := op.Has(OpCreate) && isDir(raw.Name)
	if w.ignore.Match(raw.Name, dir) {
		return
	}

	select {
	case w.events <- Event{Path: raw.Name, Op: op, Time: time.Now()}:
	default:
		w.logger.Warn("event dropped", zap.String("path", raw.Name), zap.Stringer("op", op))
	}

	if dir && w.underRecursiveRoot(raw.Name) {
		if err := w.addTree(raw.Name); err != nil {
			w.report(err)
		}
	}
	if op.Has(OpRemove) || op.Has(OpRename) {
		w.forget(raw.Name)
	}
}

func (w *FSWatcher) underRecursiveRoot(p string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for root := range w.recursive {
		if rel, err := filepath.Rel(root, p); err == nil && filepath.IsLocal(rel) {
			return true
		}
	}
	return false
}

// forget drops bookkeeping for a removed directory; fsnotify already
// removed the kernel watch.
func (w *FSWatcher) forget(p string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.watched, p)
}

func (w *FSWatcher) report(err error) {
	select {
	case w.errors <- err:
	default:
		w.logger.Warn("watch error dropped", zap.Error(err))
	}
}

func opOf(op fsnotify.Op) Op {
	var out Op
	if op.Has(fsnotify.Create) {
		out |= OpCreate
	}
	if op.Has(fsnotify.Write) {
		out |= OpWrite
	}
	if op.Has(fsnotify.Remove) {
		out |= OpRemove
	}
	if op.Has(fsnotify.Rename) {
		out |= OpRename
	}
	if op.Has(fsnotify.Chmod) {
		out |= OpChmod
	}
	return out
}

func existing(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrPathNotExist, abs)
		}
		return "", err
	}
	return abs, nil
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
