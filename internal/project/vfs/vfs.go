// Package vfs provides the file system abstraction used by the workspace.
//
// The workspace never touches the os package directly. Swapping the VFS lets
// tests run the whole project lifecycle against an in-memory tree.
package vfs

import (
	"errors"
	"io/fs"
	"time"
)

// Permissions applied to everything the workspace creates.
const (
	DirPerm  fs.FileMode = 0o755
	FilePerm fs.FileMode = 0o644
)

// VFS is the set of file system operations the workspace model needs.
type VFS interface {
	// Stat describes a single path.
	Stat(path string) (Entry, error)

	// ReadFile returns a copy of the file content.
	ReadFile(path string) ([]byte, error)

	// List returns the direct children of dir sorted by name.
	List(dir string) ([]Entry, error)

	// WriteFile replaces the content of path. The parent must exist.
	// Readers never observe a partially written file.
	WriteFile(path string, data []byte) error

	// MkdirAll creates dir and any missing parents.
	MkdirAll(dir string) error

	// RemoveAll deletes path and everything below it.
	// Removing a missing path is not an error.
	RemoveAll(path string) error

	Exists(path string) bool
	IsDir(path string) bool

	// Walk visits root and everything below it, parents before children
	// and siblings in lexical order.
	Walk(root string, fn WalkFunc) error
}

// Entry describes a file or directory.
type Entry struct {
	Path    string
	Name    string
	Dir     bool
	ModTime time.Time
}

// WalkFunc is called by Walk for every entry. Returning SkipDir from a
// directory prunes it. A non-nil err reports a failure to stat or list
// path; e is then the zero Entry.
type WalkFunc func(path string, e Entry, err error) error

// SkipDir prunes a directory during Walk.
var SkipDir = fs.SkipDir

// IsNotExist reports whether err says a path does not exist.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
