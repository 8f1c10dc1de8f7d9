// Package gomod imports Go modules and workspaces and keeps their
// classpath in sync with go.mod.
package gomod

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/mod/modfile"

	"github.com/dshills/buildsync/internal/project/buildsupport"
	"github.com/dshills/buildsync/internal/project/importer"
	"github.com/dshills/buildsync/internal/project/progress"
	"github.com/dshills/buildsync/internal/project/vfs"
	"github.com/dshills/buildsync/internal/project/workspace"
)

// ID identifies the gomod importer and build support.
const ID = "gomod"

// Relevance is the score reported for a module or workspace root.
const Relevance = 100

// Build file names.
const (
	ModFile  = "go.mod"
	WorkFile = "go.work"
)

// RuntimeContainer is the classpath container of the Go toolchain.
const RuntimeContainer = "GOROOT"

// ErrNoModule is returned for a go.mod without a module directive.
var ErrNoModule = errors.New("go.mod has no module directive")

// Importer imports the module at the root, or every module a go.work uses.
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

// New creates a gomod importer for ws.
func New(ws *workspace.Workspace, opts ...Option) *Importer {
	i := &Importer{ws: ws, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = i.logger.Named(ID)
	return i
}

// Factory returns an importer.Factory producing gomod importers.
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

// Applies reports Relevance when the root holds go.work or go.mod.
func (i *Importer) Applies(ctx context.Context, t *progress.Tracker) (int, error) {
	defer t.Done()
	if i.root == "" {
		return importer.NotApplicable, importer.ErrNotInitialized
	}
	fsys := i.ws.FS()
	if fsys.Exists(filepath.Join(i.root, WorkFile)) || fsys.Exists(filepath.Join(i.root, ModFile)) {
		return Relevance, nil
	}
	return importer.NotApplicable, nil
}

// ImportToWorkspace creates one project per module.
func (i *Importer) ImportToWorkspace(ctx context.Context, t *progress.Tracker) error {
	defer t.Done()
	if i.root == "" {
		return importer.ErrNotInitialized
	}

	dirs, err := i.moduleDirs()
	if err != nil {
		return err
	}
	t.SetTotal(len(dirs))

	for _, dir := range dirs {
		if err := t.Err(); err != nil {
			return err
		}
		t.Subtask("Importing " + dir)
		if err := i.importModule(ctx, dir); err != nil {
			return err
		}
		t.Worked(1)
	}
	return nil
}

// moduleDirs returns the module directories under the root: the go.work
// use directives when present, otherwise the root itself.
func (i *Importer) moduleDirs() ([]string, error) {
	fsys := i.ws.FS()
	workPath := filepath.Join(i.root, WorkFile)
	data, err := fsys.ReadFile(workPath)
	if err != nil {
		if vfs.IsNotExist(err) {
			return []string{i.root}, nil
		}
		return nil, err
	}

	wf, err := modfile.ParseWork(workPath, data, nil)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", workPath, err)
	}
	dirs := make([]string, 0, len(wf.Use))
	for _, use := range wf.Use {
		dir := filepath.FromSlash(use.Path)
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(i.root, dir)
		}
		dirs = append(dirs, workspace.NormalizeLocation(dir))
	}
	return dirs, nil
}

func (i *Importer) importModule(ctx context.Context, dir string) error {
	desc, err := Describe(i.ws.FS(), dir)
	if err != nil {
		return err
	}

	p := i.ws.Project(desc.Name)
	if p.Exists() {
		if workspace.SameLocation(p.Location(), dir) {
			if err := p.SetDescription(ctx, desc); err != nil {
				return err
			}
			return i.ws.OpenProject(ctx, desc.Name)
		}
		i.logger.Info("replacing project at a different location",
			zap.String("project", desc.Name),
			zap.String("old", p.Location()),
			zap.String("new", dir))
		if err := i.ws.DeleteProject(ctx, desc.Name, false); err != nil {
			return err
		}
	}

	if _, err := i.ws.CreateProject(ctx, desc); err != nil {
		return err
	}
	if err := i.ws.OpenProject(ctx, desc.Name); err != nil {
		return err
	}
	i.logger.Info("imported module",
		zap.String("project", desc.Name),
		zap.Int("requires", len(desc.Classpath)-2))
	return nil
}

// BuildSupport returns the gomod build support.
func (i *Importer) BuildSupport() buildsupport.BuildSupport {
	return NewSupport(i.ws, i.logger)
}

// Describe parses dir/go.mod into a project description. The project is
// named after the last element of the module path.
func Describe(fsys vfs.VFS, dir string) (workspace.Description, error) {
	modPath := filepath.Join(dir, ModFile)
	data, err := fsys.ReadFile(modPath)
	if err != nil {
		return workspace.Description{}, err
	}

	f, err := modfile.Parse(modPath, data, nil)
	if err != nil {
		return workspace.Description{}, fmt.Errorf("parse %s: %w", modPath, err)
	}
	if f.Module == nil || f.Module.Mod.Path == "" {
		return workspace.Description{}, fmt.Errorf("%s: %w", modPath, ErrNoModule)
	}

	return workspace.Description{
		Name:      path.Base(f.Module.Mod.Path),
		Location:  workspace.NormalizeLocation(dir),
		Natures:   []string{workspace.NatureSource, workspace.NatureGo},
		Classpath: Classpath(f),
	}, nil
}

// Classpath derives the classpath of a parsed go.mod: the module root as
// source, the toolchain container, then one library per requirement with
// replacements applied.
func Classpath(f *modfile.File) []workspace.ClasspathEntry {
	replaced := make(map[string]string, len(f.Replace))
	for _, r := range f.Replace {
		target := r.New.Path
		if r.New.Version != "" {
			target += "@" + r.New.Version
		}
		replaced[r.Old.Path] = target
	}

	entries := []workspace.ClasspathEntry{
		{Kind: workspace.EntrySource, Path: "."},
		{Kind: workspace.EntryContainer, Path: RuntimeContainer},
	}
	for _, req := range f.Require {
		lib := req.Mod.Path + "@" + req.Mod.Version
		if target, ok := replaced[req.Mod.Path]; ok {
			lib = target
		}
		entries = append(entries, workspace.ClasspathEntry{Kind: workspace.EntryLibrary, Path: lib})
	}
	return entries
}

// Support keeps Go module projects in sync with go.mod.
type Support struct {
	ws     *workspace.Workspace
	logger *zap.Logger
}

var _ buildsupport.BuildSupport = (*Support)(nil)

// NewSupport creates the gomod build support.
func NewSupport(ws *workspace.Workspace, logger *zap.Logger) *Support {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Support{ws: ws, logger: logger}
}

// ID implements buildsupport.BuildSupport.
func (s *Support) ID() string { return ID }

// IsBuildFile reports whether r is go.mod or go.work.
func (s *Support) IsBuildFile(r *workspace.Resource) bool {
	return buildsupport.MatchesName(r, ModFile, WorkFile)
}

// AppliesTo reports whether p is a Go module project.
func (s *Support) AppliesTo(p *workspace.Project) bool {
	return p.HasNature(workspace.NatureGo)
}

// Update re-parses go.mod and rewrites the project classpath.
func (s *Support) Update(ctx context.Context, p *workspace.Project) error {
	desc, err := Describe(s.ws.FS(), p.Location())
	if err != nil {
		return err
	}
	if err := p.SetClasspath(ctx, desc.Classpath); err != nil {
		return err
	}
	s.logger.Debug("classpath updated",
		zap.String("project", p.Name()),
		zap.Int("entries", len(desc.Classpath)))
	return s.ws.Refresh(ctx, p.Resource())
}
