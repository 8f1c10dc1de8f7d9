package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/buildsync/internal/project/vfs"
	"github.com/dshills/buildsync/internal/project/watcher"
)

// Observer is called with the new preferences after every change.
type Observer func(prefs Preferences)

// Store holds the current preferences. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	prefs  Preferences
	path   string
	lookup LookupFunc
	logger *zap.Logger

	obsMu     sync.RWMutex
	observers map[uint64]Observer
	nextID    uint64
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithPath sets the file the store persists to and reloads from.
func WithPath(path string) StoreOption {
	return func(s *Store) {
		s.path = path
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLookup sets the environment lookup used on reload.
func WithLookup(lookup LookupFunc) StoreOption {
	return func(s *Store) {
		s.lookup = lookup
	}
}

// NewStore creates a store holding prefs.
func NewStore(prefs Preferences, opts ...StoreOption) *Store {
	s := &Store{
		prefs:     prefs.clone(),
		lookup:    os.LookupEnv,
		logger:    zap.NewNop(),
		observers: make(map[uint64]Observer),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("config")
	return s
}

// Open loads the file at path into a new store bound to it.
func Open(path string, opts ...StoreOption) (*Store, error) {
	s := NewStore(Default(), append(opts, WithPath(path))...)
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file, or "".
func (s *Store) Path() string {
	return s.path
}

// Preferences returns a copy of the current preferences.
func (s *Store) Preferences() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs.clone()
}

// UpdatePolicy returns the current update policy.
func (s *Store) UpdatePolicy() UpdatePolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs.Build.UpdateConfiguration
}

// SetUpdatePolicy changes the update policy and persists it.
func (s *Store) SetUpdatePolicy(p UpdatePolicy) error {
	return s.Update(func(prefs *Preferences) {
		prefs.Build.UpdateConfiguration = p
	})
}

// Update applies fn to the preferences, persists the result and notifies
// observers.
func (s *Store) Update(fn func(*Preferences)) error {
	s.mu.Lock()
	next := s.prefs.clone()
	fn(&next)
	s.prefs = next
	err := s.persistLocked()
	s.mu.Unlock()

	s.notify(next.clone())
	return err
}

// Persist writes the current preferences to the backing file.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}
	data, err := Marshal(s.prefs)
	if err != nil {
		return err
	}
	// Written through OSFS so a watcher never reloads a half-written file.
	fsys := vfs.NewOSFS()
	if err := fsys.MkdirAll(filepath.Dir(s.path)); err != nil {
		return err
	}
	return fsys.WriteFile(s.path, data)
}

// Reload re-reads the backing file. A store without a file only
// re-applies the environment.
func (s *Store) Reload() error {
	var (
		prefs Preferences
		err   error
	)
	if s.path == "" {
		s.mu.RLock()
		prefs = s.prefs.clone()
		s.mu.RUnlock()
		ApplyEnv(&prefs, s.lookup)
	} else {
		prefs, err = load(s.path, s.lookup)
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.prefs = prefs
	s.mu.Unlock()

	s.notify(prefs.clone())
	return nil
}

// Subscribe registers an observer and returns a function removing it.
func (s *Store) Subscribe(o Observer) func() {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()

	id := s.nextID
	s.nextID++
	s.observers[id] = o
	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		delete(s.observers, id)
	}
}

func (s *Store) notify(prefs Preferences) {
	s.obsMu.RLock()
	observers := make([]Observer, 0, len(s.observers))
	for _, o := range s.observers {
		observers = append(observers, o)
	}
	s.obsMu.RUnlock()

	for _, o := range observers {
		o(prefs)
	}
}

// Watch reloads the store whenever its file is written or created, until
// ctx is done. Parse errors are logged and the previous preferences kept.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return ErrNoPath
	}
	dir := filepath.Dir(s.path)
	if err := vfs.NewOSFS().MkdirAll(dir); err != nil {
		return err
	}

	fsw, err := watcher.New(watcher.WithIgnorePatterns(nil), watcher.WithLogger(s.logger))
	if err != nil {
		return err
	}
	w := watcher.Debounce(fsw, s.Preferences().Watch.Debounce.Duration)
	defer w.Close()

	// The directory is watched so that editors replacing the file are seen.
	if err := w.Watch(dir); err != nil {
		return err
	}

	target := filepath.Clean(s.path)
	watcher.Run(ctx, w, func(ev watcher.Event) {
		if filepath.Clean(ev.Path) != target || ev.Gone() {
			return
		}
		if err := s.Reload(); err != nil {
			s.logger.Warn("config reload failed", zap.String("path", s.path), zap.Error(err))
			return
		}
		s.logger.Info("config reloaded",
			zap.String("path", s.path),
			zap.String("update_configuration", string(s.UpdatePolicy())))
	}, func(err error) {
		s.logger.Warn("config watcher error", zap.Error(err))
	})
	return nil
}
