package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/dshills/buildsync/internal/project"
	"github.com/dshills/buildsync/internal/project/watcher"
	"github.com/dshills/buildsync/internal/project/workspace"
)

// ChangeSink receives file changes.
type ChangeSink interface {
	FileChanged(ctx context.Context, uri string, kind project.ChangeKind)
}

var _ ChangeSink = (*project.Manager)(nil)

// ChangeKindFor maps watcher operations to a change kind. Removal wins
// over creation, creation over modification.
func ChangeKindFor(op watcher.Op) (project.ChangeKind, bool) {
	switch {
	case op.Has(watcher.OpRemove), op.Has(watcher.OpRename):
		return project.Deleted, true
	case op.Has(watcher.OpCreate):
		return project.Created, true
	case op.Has(watcher.OpWrite), op.Has(watcher.OpChmod):
		return project.Changed, true
	default:
		return 0, false
	}
}

// forwardEvents feeds watcher events to sink until ctx is done or w closes.
func forwardEvents(ctx context.Context, w watcher.Watcher, sink ChangeSink, logger *zap.Logger) {
	watcher.Run(ctx, w, func(ev watcher.Event) {
		kind, ok := ChangeKindFor(ev.Op)
		if !ok {
			return
		}
		sink.FileChanged(ctx, workspace.PathToURI(ev.Path), kind)
	}, func(err error) {
		logger.Warn("file watcher error", zap.Error(err))
	})
}
