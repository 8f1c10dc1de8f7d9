// Package script runs project importers written in Lua.
//
// A script is a .lua file defining:
//
//	build_files = { "build.xml" }          -- names classified as build files
//	function applies(root) return 10 end  -- relevance, negative when not applicable
//	function import(root)                  -- project layout
//	  return { name = "app", natures = { "source" }, sources = { "src" },
//	           output = "bin", libraries = { "lib/a.jar" } }
//	end
//
// Scripts see a "buildsync" table with exists(rel) and log(msg), both
// confined to the bound root.
package script

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/dshills/buildsync/internal/project/buildsupport"
	"github.com/dshills/buildsync/internal/project/importer"
	"github.com/dshills/buildsync/internal/project/progress"
	"github.com/dshills/buildsync/internal/project/workspace"
)

// IDPrefix prefixes the IDs of script importers.
const IDPrefix = "script:"

// Ext is the script file extension.
const Ext = ".lua"

// ErrInvalidLayout is returned when import() yields an unusable layout.
var ErrInvalidLayout = errors.New("invalid project layout")

// Layout is the project layout returned by a script's import function.
type Layout struct {
	Name      string
	Natures   []string
	Sources   []string
	Output    string
	Libraries []string
}

// Importer runs one Lua script.
type Importer struct {
	ws      *workspace.Workspace
	logger  *zap.Logger
	path    string
	id      string
	timeout time.Duration

	source     string
	buildFiles []string
	root       string
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

// WithTimeout bounds each script call. Non-positive values select
// DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(i *Importer) { i.timeout = d }
}

// IDFor returns the importer ID of the script at path.
func IDFor(path string) string {
	return IDPrefix + strings.TrimSuffix(filepath.Base(path), Ext)
}

// New creates an importer for the script at path.
func New(ws *workspace.Workspace, path string, opts ...Option) *Importer {
	i := &Importer{ws: ws, path: path, id: IDFor(path), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = i.logger.Named("script").With(zap.String("script", i.id))
	return i
}

// Factory returns an importer.Factory for the script at path.
func Factory(ws *workspace.Workspace, path string, opts ...Option) importer.Factory {
	return func() importer.Importer { return New(ws, path, opts...) }
}

// Discover lists the scripts in dirs, sorted by file name within each dir.
// Missing directories are skipped.
func Discover(ws *workspace.Workspace, dirs []string) ([]string, error) {
	var out []string
	for _, dir := range dirs {
		if !ws.FS().IsDir(dir) {
			continue
		}
		entries, err := ws.FS().List(dir)
		if err != nil {
			return nil, err
		}
		var found []string
		for _, e := range entries {
			if !e.Dir && strings.HasSuffix(e.Name, Ext) {
				found = append(found, filepath.Join(dir, e.Name))
			}
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	return out, nil
}

var (
	_ importer.Importer        = (*Importer)(nil)
	_ importer.SupportProvider = (*Importer)(nil)
)

// ID returns the importer ID.
func (i *Importer) ID() string { return i.id }

// Initialize loads the script and binds it to rootDir.
func (i *Importer) Initialize(rootDir string) error {
	data, err := i.ws.FS().ReadFile(i.path)
	if err != nil {
		return err
	}
	i.source = string(data)
	i.root = workspace.NormalizeLocation(rootDir)

	s, err := i.load(context.Background(), i.root)
	if err != nil {
		return err
	}
	defer s.close()

	for _, fn := range []string{"applies", "import"} {
		if !s.defined(fn) {
			return fmt.Errorf("%s: %q is not defined", i.path, fn)
		}
	}
	i.buildFiles = stringList(s.global("build_files"))
	return nil
}

// Applies calls applies(root).
func (i *Importer) Applies(ctx context.Context, t *progress.Tracker) (int, error) {
	defer t.Done()
	if i.source == "" {
		return importer.NotApplicable, importer.ErrNotInitialized
	}

	s, err := i.load(ctx, i.root)
	if err != nil {
		return importer.NotApplicable, err
	}
	defer s.close()

	ret, err := s.call(ctx, "applies", lua.LString(i.root))
	if err != nil {
		return importer.NotApplicable, err
	}
	if ret == lua.LNil {
		return importer.NotApplicable, nil
	}
	n, ok := ret.(lua.LNumber)
	if !ok {
		return importer.NotApplicable, fmt.Errorf("applies returned %s, want number", ret.Type())
	}
	return int(n), nil
}

// ImportToWorkspace calls import(root) and materializes the layout.
func (i *Importer) ImportToWorkspace(ctx context.Context, t *progress.Tracker) error {
	defer t.Done()
	if i.source == "" {
		return importer.ErrNotInitialized
	}

	layout, err := i.layout(ctx, i.root)
	if err != nil {
		return err
	}
	t.Worked(50)
	return i.materialize(ctx, i.root, layout)
}

// BuildSupport returns the support that re-runs this script.
func (i *Importer) BuildSupport() buildsupport.BuildSupport {
	return &Support{imp: i}
}

func (i *Importer) load(ctx context.Context, root string) (*sandbox, error) {
	s := newSandbox(filepath.Base(i.path), i.timeout)
	s.expose("buildsync", map[string]lua.LGFunction{
		"exists": func(L *lua.LState) int {
			rel := filepath.Clean(filepath.FromSlash(L.CheckString(1)))
			if filepath.IsAbs(rel) || strings.HasPrefix(rel, "..") {
				L.Push(lua.LFalse)
				return 1
			}
			L.Push(lua.LBool(i.ws.FS().Exists(filepath.Join(root, rel))))
			return 1
		},
		"log": func(L *lua.LState) int {
			i.logger.Info(L.CheckString(1))
			return 0
		},
	})
	if err := s.exec(ctx, i.source); err != nil {
		s.close()
		return nil, fmt.Errorf("%s: %w", i.path, err)
	}
	return s, nil
}

func (i *Importer) layout(ctx context.Context, root string) (Layout, error) {
	s, err := i.load(ctx, root)
	if err != nil {
		return Layout{}, err
	}
	defer s.close()

	ret, err := s.call(ctx, "import", lua.LString(root))
	if err != nil {
		return Layout{}, err
	}
	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return Layout{}, fmt.Errorf("%w: import returned %s", ErrInvalidLayout, ret.Type())
	}

	layout := Layout{
		Name:      lua.LVAsString(tbl.RawGetString("name")),
		Natures:   stringList(tbl.RawGetString("natures")),
		Sources:   stringList(tbl.RawGetString("sources")),
		Output:    lua.LVAsString(tbl.RawGetString("output")),
		Libraries: stringList(tbl.RawGetString("libraries")),
	}
	if layout.Name == "" {
		return Layout{}, fmt.Errorf("%w: missing name", ErrInvalidLayout)
	}
	return layout, nil
}

// description converts a layout into a project description. The script's
// ID is added as a nature so its support can recognize the project.
func (i *Importer) description(root string, l Layout) workspace.Description {
	desc := workspace.Description{
		Name:     l.Name,
		Location: root,
		Natures:  append(append([]string(nil), l.Natures...), i.id),
		Output:   l.Output,
	}
	for _, src := range l.Sources {
		desc.Classpath = append(desc.Classpath, workspace.ClasspathEntry{Kind: workspace.EntrySource, Path: src})
	}
	for _, lib := range l.Libraries {
		desc.Classpath = append(desc.Classpath, workspace.ClasspathEntry{Kind: workspace.EntryLibrary, Path: lib})
	}
	return desc
}

func (i *Importer) materialize(ctx context.Context, root string, l Layout) error {
	desc := i.description(root, l)

	p := i.ws.Project(desc.Name)
	switch {
	case p.Exists() && workspace.SameLocation(p.Location(), root):
		if err := p.SetDescription(ctx, desc); err != nil {
			return err
		}
	case p.Exists():
		if err := i.ws.DeleteProject(ctx, desc.Name, false); err != nil {
			return err
		}
		fallthrough
	default:
		if _, err := i.ws.CreateProject(ctx, desc); err != nil {
			return err
		}
	}
	if err := i.ws.OpenProject(ctx, desc.Name); err != nil {
		return err
	}

	for _, src := range l.Sources {
		if _, err := p.CreateFolder(ctx, src); err != nil {
			return err
		}
	}
	i.logger.Info("imported project", zap.String("project", desc.Name))
	return nil
}

// stringList converts a Lua array of strings. Other values yield nil.
func stringList(v lua.LValue) []string {
	tbl, ok := v.(*lua.LTable)
	if !ok {
		return nil
	}
	var out []string
	tbl.ForEach(func(_, value lua.LValue) {
		if s, ok := value.(lua.LString); ok {
			out = append(out, string(s))
		}
	})
	return out
}

// Support re-runs the script's import function on update.
type Support struct {
	imp *Importer
}

var _ buildsupport.BuildSupport = (*Support)(nil)

// ID implements buildsupport.BuildSupport.
func (s *Support) ID() string { return s.imp.id }

// IsBuildFile reports whether r is named in the script's build_files.
func (s *Support) IsBuildFile(r *workspace.Resource) bool {
	return buildsupport.MatchesName(r, s.imp.buildFiles...)
}

// AppliesTo reports whether p was imported by this script.
func (s *Support) AppliesTo(p *workspace.Project) bool {
	return p.HasNature(s.imp.id)
}

// Update re-runs import for the project location and applies the result.
func (s *Support) Update(ctx context.Context, p *workspace.Project) error {
	root := p.Location()
	layout, err := s.imp.layout(ctx, root)
	if err != nil {
		return err
	}
	if layout.Name != p.Name() {
		return fmt.Errorf("%w: script renamed %s to %s", ErrInvalidLayout, p.Name(), layout.Name)
	}
	return s.imp.materialize(ctx, root, layout)
}
