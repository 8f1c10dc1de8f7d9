// Package importer defines project importers and selects the one that
// best recognizes a root directory.
//
// Importers are registered under stable identifiers through a Factory so
// that every selection works on fresh instances. An importer binds a root
// directory in Initialize, scores it in Applies and materializes projects
// in ImportToWorkspace.
package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dshills/buildsync/internal/project/buildsupport"
	"github.com/dshills/buildsync/internal/project/progress"
)

// Registry errors.
var (
	// ErrDuplicateID is returned when an identifier is registered twice.
	ErrDuplicateID = errors.New("importer already registered")

	// ErrInvalidID is returned for an empty identifier or nil factory.
	ErrInvalidID = errors.New("invalid importer registration")

	// ErrNotInitialized is returned by importers used before Initialize.
	ErrNotInitialized = errors.New("importer not initialized")
)

// Importer recognizes a directory layout and materializes it as projects.
type Importer interface {
	// Initialize binds the importer to rootDir.
	Initialize(rootDir string) error

	// Applies returns the importer's relevance for the bound directory.
	// Higher wins; negative scores are never selected.
	Applies(ctx context.Context, t *progress.Tracker) (int, error)

	// ImportToWorkspace creates or updates the projects found under the
	// bound directory.
	ImportToWorkspace(ctx context.Context, t *progress.Tracker) error
}

// SupportProvider is implemented by importers whose projects are kept in
// sync by a build support.
type SupportProvider interface {
	BuildSupport() buildsupport.BuildSupport
}

// NotApplicable is the relevance of an importer that does not recognize
// the directory. It is below every valid relevance.
const NotApplicable = -1

// Factory constructs a fresh importer.
type Factory func() Importer

// Candidate is an importer instance paired with its registration ID.
type Candidate struct {
	ID       string
	Importer Importer
}

// Error records an importer failure.
type Error struct {
	ID  string // Importer ID
	Op  string // initialize, applies or import
	Err error  // Underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("importer %s: %s: %v", e.ID, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

type registration struct {
	id      string
	factory Factory
}

// Registry maps importer IDs to factories in registration order.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries []registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a factory under id.
func (r *Registry) Register(id string, factory Factory) error {
	if id == "" || factory == nil {
		return fmt.Errorf("importer %q: %w", id, ErrInvalidID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.id == id {
			return fmt.Errorf("importer %q: %w", id, ErrDuplicateID)
		}
	}
	r.entries = append(r.entries, registration{id: id, factory: factory})
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(id string, factory Factory) {
	if err := r.Register(id, factory); err != nil {
		panic(err)
	}
}

// IDs returns the registered identifiers in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, len(r.entries))
	for i, e := range r.entries {
		ids[i] = e.id
	}
	return ids
}

// Len returns the number of registered importers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Importers constructs a fresh instance of every registered importer, in
// registration order.
func (r *Registry) Importers() []Candidate {
	r.mu.RLock()
	entries := append([]registration(nil), r.entries...)
	r.mu.RUnlock()

	out := make([]Candidate, 0, len(entries))
	for _, e := range entries {
		out = append(out, Candidate{ID: e.id, Importer: e.factory()})
	}
	return out
}
