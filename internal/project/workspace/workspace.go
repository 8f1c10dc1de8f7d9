// Package workspace models the set of projects known to the server and the
// resources inside them.
//
// Projects live at a location on disk and persist their metadata in a
// YAML descriptor next to their content. The workspace keeps an in-memory
// index of each open project's members which Refresh reconciles with disk.
package workspace

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/dshills/buildsync/internal/project/vfs"
)

// MetadataDir is the workspace-private directory under the root.
const MetadataDir = ".metadata"

const indexFile = "projects.yaml"

// Workspace is the registry of projects and their resources.
// It is safe for concurrent use.
type Workspace struct {
	mu       sync.RWMutex
	root     string
	fs       vfs.VFS
	logger   *zap.Logger
	projects map[string]*projectState
}

type projectState struct {
	desc    Description
	open    bool
	members map[string]Kind   // project-relative slash path -> kind
	links   map[string]string // project-relative slash path -> disk target
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithVFS sets the file system backing the workspace.
func WithVFS(fsys vfs.VFS) Option {
	return func(w *Workspace) {
		w.fs = fsys
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Workspace) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New creates an empty workspace rooted at root.
func New(root string, opts ...Option) *Workspace {
	w := &Workspace{
		root:     NormalizeLocation(root),
		fs:       vfs.NewOSFS(),
		logger:   zap.NewNop(),
		projects: make(map[string]*projectState),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named("workspace")
	return w
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string {
	return w.root
}

// FS returns the file system backing the workspace.
func (w *Workspace) FS() vfs.VFS {
	return w.fs
}

type indexEntry struct {
	Name     string `yaml:"name"`
	Location string `yaml:"location"`
	Open     bool   `yaml:"open"`
}

type indexDoc struct {
	Projects []indexEntry `yaml:"projects"`
}

// Load restores the projects recorded in the workspace index. Projects
// whose descriptor disappeared are dropped.
func (w *Workspace) Load(ctx context.Context) error {
	file := filepath.Join(w.root, MetadataDir, indexFile)
	data, err := w.fs.ReadFile(file)
	if err != nil {
		if vfs.IsNotExist(err) {
			return nil
		}
		return &PathError{Op: "load", Path: file, Err: err}
	}

	var doc indexDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return &PathError{Op: "load", Path: file, Err: err}
	}

	var reopen []string
	w.mu.Lock()
	for _, e := range doc.Projects {
		desc, err := ReadDescription(w.fs, e.Location)
		if err != nil {
			w.logger.Warn("dropping project without descriptor",
				zap.String("project", e.Name), zap.Error(err))
			continue
		}
		desc.Name = e.Name
		w.projects[e.Name] = newProjectState(desc)
		if e.Open {
			reopen = append(reopen, e.Name)
		}
	}
	w.mu.Unlock()

	for _, name := range reopen {
		if err := w.OpenProject(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func newProjectState(desc Description) *projectState {
	st := &projectState{
		desc:    desc,
		members: make(map[string]Kind),
		links:   make(map[string]string),
	}
	for _, l := range desc.Links {
		st.links[l.Path] = l.Target
	}
	return st
}

// saveIndexLocked persists the project index. Callers hold w.mu.
func (w *Workspace) saveIndexLocked() error {
	names := w.sortedNamesLocked()
	doc := indexDoc{Projects: make([]indexEntry, 0, len(names))}
	for _, name := range names {
		st := w.projects[name]
		doc.Projects = append(doc.Projects, indexEntry{
			Name:     name,
			Location: st.desc.Location,
			Open:     st.open,
		})
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	dir := filepath.Join(w.root, MetadataDir)
	if err := w.fs.MkdirAll(dir); err != nil {
		return &PathError{Op: "save index", Path: dir, Err: err}
	}
	file := filepath.Join(dir, indexFile)
	if err := w.fs.WriteFile(file, data); err != nil {
		return &PathError{Op: "save index", Path: file, Err: err}
	}
	return nil
}

func (w *Workspace) sortedNamesLocked() []string {
	names := make([]string, 0, len(w.projects))
	for name := range w.projects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Project returns a handle for the named project. The project need not exist.
func (w *Workspace) Project(name string) *Project {
	return &Project{ws: w, name: name}
}

// Projects returns handles for all registered projects, sorted by name.
func (w *Workspace) Projects() []*Project {
	w.mu.RLock()
	names := w.sortedNamesLocked()
	w.mu.RUnlock()

	out := make([]*Project, 0, len(names))
	for _, name := range names {
		out = append(out, w.Project(name))
	}
	return out
}

// CreateProject registers a new, closed project and writes its descriptor.
// An empty Location defaults to <root>/<name>.
func (w *Workspace) CreateProject(ctx context.Context, desc Description) (*Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if desc.Name == "" || strings.ContainsAny(desc.Name, `/\`) {
		return nil, &ProjectError{Project: desc.Name, Op: "create", Err: ErrInvalidName}
	}
	if desc.Location == "" {
		desc.Location = filepath.Join(w.root, desc.Name)
	}
	desc.Location = NormalizeLocation(desc.Location)
	desc = desc.clone()

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.projects[desc.Name]; ok {
		return nil, &ProjectError{Project: desc.Name, Op: "create", Err: ErrProjectExists}
	}
	if err := w.fs.MkdirAll(desc.Location); err != nil {
		return nil, &ProjectError{Project: desc.Name, Op: "create", Err: err}
	}
	if err := WriteDescription(w.fs, desc); err != nil {
		return nil, &ProjectError{Project: desc.Name, Op: "create", Err: err}
	}

	w.projects[desc.Name] = newProjectState(desc)
	if err := w.saveIndexLocked(); err != nil {
		return nil, &ProjectError{Project: desc.Name, Op: "create", Err: err}
	}

	w.logger.Debug("project created",
		zap.String("project", desc.Name), zap.String("location", desc.Location))
	return w.Project(desc.Name), nil
}

// OpenProject opens the project and refreshes its resources from disk.
// Opening an open project only refreshes it.
func (w *Workspace) OpenProject(ctx context.Context, name string) error {
	w.mu.Lock()
	st, ok := w.projects[name]
	if !ok {
		w.mu.Unlock()
		return &ProjectError{Project: name, Op: "open", Err: ErrProjectNotFound}
	}
	wasOpen := st.open
	st.open = true
	var err error
	if !wasOpen {
		err = w.saveIndexLocked()
	}
	w.mu.Unlock()
	if err != nil {
		return &ProjectError{Project: name, Op: "open", Err: err}
	}

	return w.Refresh(ctx, w.Project(name).Resource())
}

// CloseProject closes the project and forgets its member index.
func (w *Workspace) CloseProject(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	st, ok := w.projects[name]
	if !ok {
		return &ProjectError{Project: name, Op: "close", Err: ErrProjectNotFound}
	}
	st.open = false
	st.members = make(map[string]Kind)
	if err := w.saveIndexLocked(); err != nil {
		return &ProjectError{Project: name, Op: "close", Err: err}
	}
	return nil
}

// DeleteProject unregisters the project. With deleteContent the project
// location is removed from disk as well.
func (w *Workspace) DeleteProject(ctx context.Context, name string, deleteContent bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	st, ok := w.projects[name]
	if !ok {
		return &ProjectError{Project: name, Op: "delete", Err: ErrProjectNotFound}
	}
	delete(w.projects, name)

	if deleteContent {
		if err := w.fs.RemoveAll(st.desc.Location); err != nil {
			return &ProjectError{Project: name, Op: "delete", Err: err}
		}
	}
	if err := w.saveIndexLocked(); err != nil {
		return &ProjectError{Project: name, Op: "delete", Err: err}
	}

	w.logger.Debug("project deleted",
		zap.String("project", name), zap.Bool("content", deleteContent))
	return nil
}

// updateDescription applies fn to the project's description and persists it.
func (w *Workspace) updateDescription(ctx context.Context, name, op string, fn func(*Description) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	st, ok := w.projects[name]
	if !ok {
		return &ProjectError{Project: name, Op: op, Err: ErrProjectNotFound}
	}
	desc := st.desc.clone()
	if err := fn(&desc); err != nil {
		return &ProjectError{Project: name, Op: op, Err: err}
	}
	if err := WriteDescription(w.fs, desc); err != nil {
		return &ProjectError{Project: name, Op: op, Err: err}
	}
	st.desc = desc
	if st.open {
		st.members[DescriptorFile] = KindFile
	}
	return nil
}

// state returns a snapshot of the named project's state.
func (w *Workspace) state(name string) (Description, bool, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	st, ok := w.projects[name]
	if !ok {
		return Description{}, false, false
	}
	return st.desc.clone(), st.open, true
}
