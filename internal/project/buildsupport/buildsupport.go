// Package buildsupport defines the build-system strategy that classifies
// build files and refreshes project configuration, and the holder for
// the strategy currently in effect.
package buildsupport

import (
	"context"
	"sync"

	"github.com/dshills/buildsync/internal/project/workspace"
)

// BuildSupport knows a build system's files and how to re-derive a
// project's configuration from them.
type BuildSupport interface {
	// ID identifies the build system.
	ID() string

	// IsBuildFile reports whether the resource is a file of this build system.
	IsBuildFile(r *workspace.Resource) bool

	// AppliesTo reports whether the project is managed by this build system.
	AppliesTo(p *workspace.Project) bool

	// Update re-derives the project's configuration from its build files.
	Update(ctx context.Context, p *workspace.Project) error
}

// Active holds the build support selected by the most recent project
// initialization. It is empty until an importer that provides a support
// finishes importing. The zero value is ready to use.
type Active struct {
	mu      sync.RWMutex
	support BuildSupport
}

// NewActive creates an empty holder.
func NewActive() *Active {
	return &Active{}
}

// Get returns the active support, or nil.
func (a *Active) Get() BuildSupport {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.support
}

// Set makes s the active support.
func (a *Active) Set(s BuildSupport) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.support = s
}

// Reset clears the active support.
func (a *Active) Reset() {
	a.Set(nil)
}

// MatchesName reports whether r is a file whose name is one of names.
func MatchesName(r *workspace.Resource, names ...string) bool {
	if r == nil || r.Kind() != workspace.KindFile {
		return false
	}
	base := r.Name()
	for _, name := range names {
		if base == name {
			return true
		}
	}
	return false
}
