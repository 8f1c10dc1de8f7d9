package app

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidLogLevel = errors.New("invalid log level")
	ErrNoRoot          = errors.New("no root directory")
)

// Stage names the part of startup or serving that failed.
type Stage string

const (
	StageConfig    Stage = "config"
	StageLogging   Stage = "logging"
	StageWorkspace Stage = "workspace"
	StageImporters Stage = "importers"
	StageWatcher   Stage = "watcher"
	StageMetrics   Stage = "metrics"
)

// StageError attributes err to a stage, with an optional detail such as
// the path being opened.
type StageError struct {
	Stage  Stage
	Detail string
	Err    error
}

func stageErr(stage Stage, detail string, err error) error {
	return &StageError{Stage: stage, Detail: detail, Err: err}
}

func (e *StageError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Stage, e.Detail, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
