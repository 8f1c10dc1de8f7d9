package workspace

import (
	"errors"
	"fmt"
)

// Standard errors returned by the workspace package.
var (
	// ErrProjectExists indicates a project with the same name is already registered.
	ErrProjectExists = errors.New("project already exists")

	// ErrProjectNotFound indicates no project with the given name exists.
	ErrProjectNotFound = errors.New("project not found")

	// ErrProjectClosed indicates the operation needs an open project.
	ErrProjectClosed = errors.New("project is closed")

	// ErrInvalidName indicates an empty or malformed project name.
	ErrInvalidName = errors.New("invalid project name")

	// ErrInvalidPath indicates a path that escapes its project or is malformed.
	ErrInvalidPath = errors.New("invalid path")

	// ErrUnsupportedScheme indicates a URI whose scheme is not file://.
	ErrUnsupportedScheme = errors.New("unsupported uri scheme")

	// ErrNoDescriptor indicates a directory without a project descriptor.
	ErrNoDescriptor = errors.New("no project descriptor")
)

// PathError represents an error associated with a resource path.
type PathError struct {
	Op   string // Operation that failed (create, refresh, link, ...)
	Path string // Resource or disk path
	Err  error  // Underlying error
}

// Error implements the error interface.
func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *PathError) Unwrap() error {
	return e.Err
}

// ProjectError represents an error raised while mutating a project.
type ProjectError struct {
	Project string // Project name
	Op      string // Operation that failed
	Err     error  // Underlying error
}

// Error implements the error interface.
func (e *ProjectError) Error() string {
	return fmt.Sprintf("project %s: %s: %v", e.Project, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProjectError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error indicates a missing project.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProjectNotFound)
}
