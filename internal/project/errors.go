package project

import (
	"errors"
	"fmt"

	"github.com/dshills/buildsync/internal/project/progress"
)

// Standard errors returned by the project package.
var (
	// ErrCanceled indicates the operation was canceled. Errors wrapping it
	// also wrap the context error.
	ErrCanceled = progress.ErrCanceled

	// ErrNoDefaultProject indicates the default project has not been created.
	ErrNoDefaultProject = errors.New("default project does not exist")

	// ErrUnknownCommand indicates a command this package does not handle.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrInvalidArguments indicates malformed command arguments.
	ErrInvalidArguments = errors.New("invalid command arguments")

	// ErrUnresolved indicates a URI that maps to no workspace resource.
	ErrUnresolved = errors.New("resource not found in workspace")
)

// InitError reports the initialization step that failed.
type InitError struct {
	Step string // bootstrap, select or import
	Err  error  // Underlying error
}

// Error implements the error interface.
func (e *InitError) Error() string {
	return fmt.Sprintf("initialize projects: %s: %v", e.Step, e.Err)
}

// Unwrap returns the underlying error.
func (e *InitError) Unwrap() error {
	return e.Err
}

// IsCanceled returns true if the error indicates cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}
