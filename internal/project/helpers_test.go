package project

import (
	"context"
	"io/fs"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dshills/buildsync/internal/config"
	"github.com/dshills/buildsync/internal/project/buildsupport"
	"github.com/dshills/buildsync/internal/project/importer"
	"github.com/dshills/buildsync/internal/project/progress"
	"github.com/dshills/buildsync/internal/project/vfs"
	"github.com/dshills/buildsync/internal/project/workspace"
)

// fakeSupport treats files with one of names as build files.
type fakeSupport struct {
	names   []string
	updates atomic.Int32
	project string
}

func (s *fakeSupport) ID() string { return "fake" }

func (s *fakeSupport) IsBuildFile(r *workspace.Resource) bool {
	return buildsupport.MatchesName(r, s.names...)
}

func (s *fakeSupport) AppliesTo(p *workspace.Project) bool {
	return s.project == "" || p.Name() == s.project
}

func (s *fakeSupport) Update(context.Context, *workspace.Project) error {
	s.updates.Add(1)
	return nil
}

// fakeImporter scores a root and records the import.
type fakeImporter struct {
	score     int
	applyErr  error
	importErr error
	panics    bool
	support   buildsupport.BuildSupport
	onApply   func()

	root     string
	imported atomic.Bool
}

func (f *fakeImporter) Initialize(rootDir string) error {
	f.root = rootDir
	return nil
}

func (f *fakeImporter) Applies(context.Context, *progress.Tracker) (int, error) {
	if f.onApply != nil {
		f.onApply()
	}
	if f.panics {
		panic("broken importer")
	}
	return f.score, f.applyErr
}

func (f *fakeImporter) ImportToWorkspace(context.Context, *progress.Tracker) error {
	if f.importErr != nil {
		return f.importErr
	}
	f.imported.Store(true)
	return nil
}

func (f *fakeImporter) BuildSupport() buildsupport.BuildSupport {
	return f.support
}

func register(t *testing.T, reg *importer.Registry, id string, f *fakeImporter) {
	t.Helper()
	require.NoError(t, reg.Register(id, func() importer.Importer { return f }))
}

// failingFS fails MkdirAll for paths with the given suffix.
type failingFS struct {
	*vfs.MemFS
	suffix string
}

func (f *failingFS) MkdirAll(p string) error {
	if strings.HasSuffix(p, f.suffix) {
		return fs.ErrPermission
	}
	return f.MemFS.MkdirAll(p)
}

// cancelingFS runs cancel, when set, before every Walk.
type cancelingFS struct {
	*vfs.MemFS
	cancel func()
}

func (f *cancelingFS) Walk(root string, fn vfs.WalkFunc) error {
	if f.cancel != nil {
		f.cancel()
	}
	return f.MemFS.Walk(root, fn)
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []ActionableNotification
	err  error
}

func (n *fakeNotifier) SendActionableNotification(_ context.Context, a ActionableNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, a)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type fakeScheduler struct {
	mu        sync.Mutex
	scheduled []string
}

func (s *fakeScheduler) Schedule(p *workspace.Project) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = append(s.scheduled, p.Name())
	return "job"
}

func (s *fakeScheduler) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.scheduled...)
}

type testEnv struct {
	fs      *vfs.MemFS
	ws      *workspace.Workspace
	prefs   *config.Store
	reg     *importer.Registry
	manager *Manager
}

func newEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	fsys := vfs.NewMemFS()
	require.NoError(t, fsys.MkdirAll("/ws"))
	env := &testEnv{
		fs:    fsys,
		ws:    workspace.New("/ws", workspace.WithVFS(fsys)),
		prefs: config.NewStore(config.Default()),
		reg:   importer.NewRegistry(),
	}
	env.manager = NewManager(env.ws, env.reg, append([]Option{WithPreferences(env.prefs)}, opts...)...)
	t.Cleanup(env.manager.Close)
	return env
}

// openProject creates and opens a project at /ws/<name>.
func (e *testEnv) openProject(t *testing.T, name string) *workspace.Project {
	t.Helper()
	ctx := context.Background()
	p, err := e.ws.CreateProject(ctx, workspace.Description{Name: name, Natures: []string{workspace.NatureSource}})
	require.NoError(t, err)
	require.NoError(t, e.ws.OpenProject(ctx, name))
	return p
}
