// Package watcher reports file system changes below the imported roots.
//
// Raw fsnotify operations are normalized into Events, filtered through
// gitignore-style patterns and optionally coalesced per path by a Debouncer
// before they reach the project reactor or the configuration reloader.
package watcher

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	ErrClosed       = errors.New("watcher closed")
	ErrPathNotExist = errors.New("path does not exist")
)

// Op is a bit set of file system operations.
type Op uint32

const (
	OpCreate Op = 1 << iota
	OpWrite
	OpRemove
	OpRename // moved away; the new name arrives as a separate create
	OpChmod
)

var opNames = []struct {
	op   Op
	name string
}{
	{OpCreate, "create"},
	{OpWrite, "write"},
	{OpRemove, "remove"},
	{OpRename, "rename"},
	{OpChmod, "chmod"},
}

// String lists the set bits, e.g. "create|write".
func (op Op) String() string {
	var parts []string
	for _, n := range opNames {
		if op.Has(n.op) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Has reports whether every bit of o is set in op.
func (op Op) Has(o Op) bool {
	return o != 0 && op&o == o
}

// Event is a single, possibly coalesced, change to a path.
type Event struct {
	Path string
	Op   Op
	// Time is when the last merged operation was observed.
	Time time.Time
}

// Gone reports whether the path no longer exists after this event.
// A remove or rename wins over a create or write merged into the
// same event.
func (e Event) Gone() bool {
	return e.Op.Has(OpRemove) || e.Op.Has(OpRename)
}

// Watcher is a source of change events.
type Watcher interface {
	// Watch adds a single file or directory.
	Watch(path string) error

	// WatchRecursive adds a directory and every subdirectory not excluded
	// by the ignore patterns. Directories created later are added as they
	// appear.
	WatchRecursive(path string) error

	// Events and Errors are closed once the watcher is closed.
	Events() <-chan Event
	Errors() <-chan error

	Close() error
}

type config struct {
	buffer int
	ignore []string
	logger *zap.Logger
}

// Option configures an FSWatcher.
type Option func(*config)

// WithIgnorePatterns replaces DefaultIgnorePatterns. A nil slice disables
// filtering.
func WithIgnorePatterns(patterns []string) Option {
	return func(c *config) { c.ignore = patterns }
}

// WithBufferSize sets the capacity of the event and error channels.
func WithBufferSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.buffer = n
		}
	}
}

// WithLogger sets the logger used to report dropped events.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// Run delivers events and errors from w to the handlers on the calling
// goroutine until ctx is done or w is closed.
func Run(ctx context.Context, w Watcher, onEvent func(Event), onError func(error)) {
	events, errs := w.Events(), w.Errors()
	for events != nil || errs != nil {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if onEvent != nil {
				onEvent(ev)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if onError != nil {
				onError(err)
			}
		}
	}
}
