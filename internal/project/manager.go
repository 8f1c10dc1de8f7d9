package project

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/dshills/buildsync/internal/config"
	"github.com/dshills/buildsync/internal/project/buildsupport"
	"github.com/dshills/buildsync/internal/project/importer"
	"github.com/dshills/buildsync/internal/project/update"
	"github.com/dshills/buildsync/internal/project/workspace"
)

// DefaultProjectName is the reserved name of the default project, which
// hosts files that belong to no imported project.
const DefaultProjectName = "buildsync-default-project"

// DefaultRuntimeContainer is the runtime classpath container of the
// default project.
const DefaultRuntimeContainer = "DEFAULT_RUNTIME"

// Manager coordinates project initialization, change reactions and
// configuration updates.
type Manager struct {
	ws        *workspace.Workspace
	registry  *importer.Registry
	active    *buildsupport.Active
	scheduler *update.Scheduler

	classifier *Classifier
	reactor    *Reactor
	prefs      Preferences
	logger     *zap.Logger

	defaultName     string
	defaultLocation string
	schedulerOpts   []update.Option
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithPreferences sets where the update policy is read and persisted.
func WithPreferences(p Preferences) Option {
	return func(m *Manager) {
		if p != nil {
			m.prefs = p
		}
	}
}

// WithDefaultProject overrides the default project's name and location.
// An empty location keeps <root>/.metadata/<name>.
func WithDefaultProject(name, location string) Option {
	return func(m *Manager) {
		if name != "" {
			m.defaultName = name
		}
		m.defaultLocation = location
	}
}

// WithSchedulerOptions passes options to the update scheduler.
func WithSchedulerOptions(opts ...update.Option) Option {
	return func(m *Manager) {
		m.schedulerOpts = append(m.schedulerOpts, opts...)
	}
}

// NewManager creates a manager for ws using the importers in reg.
func NewManager(ws *workspace.Workspace, reg *importer.Registry, opts ...Option) *Manager {
	m := &Manager{
		ws:          ws,
		registry:    reg,
		active:      buildsupport.NewActive(),
		prefs:       config.NewStore(config.Default()),
		logger:      zap.NewNop(),
		defaultName: DefaultProjectName,
	}
	for _, opt := range opts {
		opt(m)
	}

	schedOpts := append([]update.Option{update.WithLogger(m.logger)}, m.schedulerOpts...)
	m.scheduler = update.NewScheduler(m.active, schedOpts...)
	m.classifier = NewClassifier(m.active)
	m.reactor = NewReactor(ws, m.classifier, m.scheduler, m.prefs, m.logger)
	m.logger = m.logger.Named("projects")
	return m
}

// Workspace returns the managed workspace.
func (m *Manager) Workspace() *workspace.Workspace { return m.ws }

// ActiveSupport returns the holder of the active build support.
func (m *Manager) ActiveSupport() *buildsupport.Active { return m.active }

// Classifier returns the build file classifier.
func (m *Manager) Classifier() *Classifier { return m.classifier }

// Reactor returns the file change reactor.
func (m *Manager) Reactor() *Reactor { return m.reactor }

// Scheduler returns the update scheduler.
func (m *Manager) Scheduler() *update.Scheduler { return m.scheduler }

// SetNotifier connects or, with nil, disconnects the client channel.
func (m *Manager) SetNotifier(n Notifier) {
	m.reactor.SetNotifier(n)
}

// DefaultProject returns the handle of the default project.
func (m *Manager) DefaultProject() *workspace.Project {
	return m.ws.Project(m.defaultName)
}

// IsBuildFile reports whether r is a build file of the active support.
func (m *Manager) IsBuildFile(r *workspace.Resource) bool {
	return m.classifier.IsBuildFile(r)
}

// FileChanged forwards a change event to the reactor.
func (m *Manager) FileChanged(ctx context.Context, uri string, kind ChangeKind) {
	m.reactor.FileChanged(ctx, uri, kind)
}

// UpdateProject schedules a configuration update of p. See
// update.Scheduler.Schedule.
func (m *Manager) UpdateProject(p *workspace.Project) string {
	return m.scheduler.Schedule(p)
}

// Close waits for scheduled updates and stops accepting new ones.
func (m *Manager) Close() {
	m.scheduler.Close()
}

func (m *Manager) defaultProjectLocation() string {
	if m.defaultLocation != "" {
		return m.defaultLocation
	}
	return filepath.Join(m.ws.Root(), workspace.MetadataDir, m.defaultName)
}
