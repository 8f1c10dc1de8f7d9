package project

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/buildsync/internal/config"
	"github.com/dshills/buildsync/internal/project/workspace"
)

// UpdateScheduler queues configuration updates.
type UpdateScheduler interface {
	Schedule(p *workspace.Project) string
}

// Reactor reacts to file changes: it refreshes the workspace and, when a
// build file changed, applies the update policy.
type Reactor struct {
	ws         *workspace.Workspace
	classifier *Classifier
	scheduler  UpdateScheduler
	prefs      Preferences
	logger     *zap.Logger

	mu       sync.RWMutex
	notifier Notifier
}

// NewReactor creates a reactor.
func NewReactor(ws *workspace.Workspace, classifier *Classifier, scheduler UpdateScheduler, prefs Preferences, logger *zap.Logger) *Reactor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reactor{
		ws:         ws,
		classifier: classifier,
		scheduler:  scheduler,
		prefs:      prefs,
		logger:     logger.Named("reactor"),
	}
}

// SetNotifier sets the channel for prompts. nil disconnects it.
func (r *Reactor) SetNotifier(n Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifier = n
}

func (r *Reactor) currentNotifier() Notifier {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.notifier
}

// FileChanged handles one change event. Failures are logged, never
// returned; unresolvable URIs are ignored.
func (r *Reactor) FileChanged(ctx context.Context, uri string, kind ChangeKind) {
	outcome := outcomeIgnored
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("file change handler panicked",
				zap.String("uri", uri), zap.Any("panic", p))
			outcome = outcomeError
		}
		fileEventsTotal.WithLabelValues(kind.String(), outcome).Inc()
	}()

	outcome = r.fileChanged(ctx, uri, kind)
}

func (r *Reactor) fileChanged(ctx context.Context, uri string, kind ChangeKind) string {
	if uri == "" {
		return outcomeIgnored
	}

	resource, err := r.ws.FindResource(uri)
	if err != nil {
		if !errors.Is(err, workspace.ErrUnsupportedScheme) {
			r.logger.Debug("cannot resolve uri", zap.String("uri", uri), zap.Error(err))
		}
		return outcomeIgnored
	}
	if resource == nil {
		return outcomeIgnored
	}

	subject := resource
	if kind == Deleted {
		subject = resource.Parent()
	}
	if subject != nil {
		if err := r.ws.Refresh(ctx, subject); err != nil {
			r.logger.Error("Problem refreshing workspace",
				zap.String("resource", subject.Path()), zap.Error(err))
			return outcomeError
		}
	}

	if !r.classifier.IsBuildFile(resource) {
		return outcomeRefreshed
	}

	switch policy := r.prefs.UpdatePolicy(); policy {
	case config.PolicyAutomatic:
		r.scheduler.Schedule(resource.Project())
		return outcomeUpdated
	case config.PolicyDisabled:
		return outcomeDisabled
	default:
		notifier := r.currentNotifier()
		if notifier == nil {
			return outcomeDropped
		}
		if err := notifier.SendActionableNotification(ctx, configurationPrompt(uri)); err != nil {
			r.logger.Warn("configuration prompt not sent",
				zap.String("uri", uri), zap.String("policy", string(policy)), zap.Error(err))
			return outcomeError
		}
		return outcomePrompted
	}
}
