// Package descriptor imports directories that carry a project descriptor
// and keeps such projects in sync with it.
package descriptor

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/dshills/buildsync/internal/project/buildsupport"
	"github.com/dshills/buildsync/internal/project/importer"
	"github.com/dshills/buildsync/internal/project/progress"
	"github.com/dshills/buildsync/internal/project/workspace"
)

// ID identifies the descriptor importer and build support.
const ID = "descriptor"

// Relevance is the score reported for a directory with a descriptor.
const Relevance = 50

// Importer imports the project described by <root>/.project.yaml.
type Importer struct {
	ws     *workspace.Workspace
	logger *zap.Logger
	root   string
}

// Option configures an Importer.
type Option func(*Importer)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(i *Importer) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// New creates a descriptor importer for ws.
func New(ws *workspace.Workspace, opts ...Option) *Importer {
	i := &Importer{ws: ws, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = i.logger.Named(ID)
	return i
}

// Factory returns an importer.Factory producing descriptor importers.
func Factory(ws *workspace.Workspace, opts ...Option) importer.Factory {
	return func() importer.Importer { return New(ws, opts...) }
}

var (
	_ importer.Importer        = (*Importer)(nil)
	_ importer.SupportProvider = (*Importer)(nil)
)

// Initialize binds the importer to rootDir.
func (i *Importer) Initialize(rootDir string) error {
	i.root = workspace.NormalizeLocation(rootDir)
	return nil
}

// Applies reports Relevance when the root holds a descriptor.
func (i *Importer) Applies(ctx context.Context, t *progress.Tracker) (int, error) {
	defer t.Done()
	if i.root == "" {
		return importer.NotApplicable, importer.ErrNotInitialized
	}
	if i.ws.FS().Exists(filepath.Join(i.root, workspace.DescriptorFile)) {
		return Relevance, nil
	}
	return importer.NotApplicable, nil
}

// ImportToWorkspace registers the described project. A project of the
// same name at the same location is reopened and refreshed; one at a
// different location is replaced. Descriptors without the source nature
// are ignored.
func (i *Importer) ImportToWorkspace(ctx context.Context, t *progress.Tracker) error {
	defer t.Done()
	if i.root == "" {
		return importer.ErrNotInitialized
	}
	t.SetTotal(3)

	desc, err := workspace.ReadDescription(i.ws.FS(), i.root)
	if err != nil {
		return err
	}
	t.Worked(1)

	if !desc.HasNature(workspace.NatureSource) {
		i.logger.Info("descriptor has no source nature, skipping",
			zap.String("project", desc.Name), zap.String("root", i.root))
		return nil
	}

	p := i.ws.Project(desc.Name)
	if p.Exists() {
		if workspace.SameLocation(p.Location(), i.root) {
			i.logger.Debug("reusing project", zap.String("project", desc.Name))
			return i.ws.OpenProject(ctx, desc.Name)
		}
		i.logger.Info("replacing project at a different location",
			zap.String("project", desc.Name),
			zap.String("old", p.Location()),
			zap.String("new", i.root))
		if err := i.ws.DeleteProject(ctx, desc.Name, false); err != nil {
			return err
		}
	}
	t.Worked(1)

	if _, err := i.ws.CreateProject(ctx, desc); err != nil {
		return err
	}
	if err := i.ws.OpenProject(ctx, desc.Name); err != nil {
		return err
	}
	i.logger.Info("imported project", zap.String("project", desc.Name))
	return nil
}

// BuildSupport returns the descriptor build support.
func (i *Importer) BuildSupport() buildsupport.BuildSupport {
	return NewSupport(i.ws, i.logger)
}

// Support keeps source projects in sync with their descriptor.
type Support struct {
	ws     *workspace.Workspace
	logger *zap.Logger
}

var _ buildsupport.BuildSupport = (*Support)(nil)

// NewSupport creates the descriptor build support.
func NewSupport(ws *workspace.Workspace, logger *zap.Logger) *Support {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Support{ws: ws, logger: logger}
}

// ID implements buildsupport.BuildSupport.
func (s *Support) ID() string { return ID }

// IsBuildFile reports whether r is a project descriptor.
func (s *Support) IsBuildFile(r *workspace.Resource) bool {
	return buildsupport.MatchesName(r, workspace.DescriptorFile)
}

// AppliesTo reports whether p is a source project not managed by go.mod.
func (s *Support) AppliesTo(p *workspace.Project) bool {
	return p.HasNature(workspace.NatureSource) && !p.HasNature(workspace.NatureGo)
}

// Update re-reads the descriptor and applies its natures and classpath.
func (s *Support) Update(ctx context.Context, p *workspace.Project) error {
	desc, err := workspace.ReadDescription(s.ws.FS(), p.Location())
	if err != nil {
		return err
	}
	if err := p.SetDescription(ctx, desc); err != nil {
		return err
	}
	return s.ws.Refresh(ctx, p.Resource())
}
