package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dshills/buildsync/internal/config"
	"github.com/dshills/buildsync/internal/project"
	"github.com/dshills/buildsync/internal/project/importer/descriptor"
	"github.com/dshills/buildsync/internal/project/importer/gomod"
	"github.com/dshills/buildsync/internal/project/watcher"
	"github.com/dshills/buildsync/internal/project/workspace"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers and readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func newTestApp(t *testing.T, opts Options) *App {
	t.Helper()
	if opts.WorkspacePath == "" {
		opts.WorkspacePath = filepath.Join(t.TempDir(), "ws")
	}
	if opts.LogOutput == nil {
		opts.LogOutput = zapcore.AddSync(io.Discard)
	}
	a, err := New(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"INFO", zapcore.InfoLevel, false},
		{"", zapcore.InfoLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"Warn", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLogLevel(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidLogLevel)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf syncBuffer
	logger, err := NewLogger("warn", zapcore.AddSync(&buf))
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", zap.String("project", "demo"))
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"project":"demo"`)

	_, err = NewLogger("loud", zapcore.AddSync(&buf))
	assert.Error(t, err)
}

func TestChangeKindFor(t *testing.T) {
	tests := []struct {
		op   watcher.Op
		want project.ChangeKind
		ok   bool
	}{
		{watcher.OpCreate, project.Created, true},
		{watcher.OpWrite, project.Changed, true},
		{watcher.OpChmod, project.Changed, true},
		{watcher.OpRemove, project.Deleted, true},
		{watcher.OpRename, project.Deleted, true},
		{watcher.OpCreate | watcher.OpWrite, project.Created, true},
		{watcher.OpCreate | watcher.OpRemove, project.Deleted, true},
		{0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			got, ok := ChangeKindFor(tt.op)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

type chanWatcher struct {
	events chan watcher.Event
	errors chan error
}

func (w *chanWatcher) Watch(string) error           { return nil }
func (w *chanWatcher) WatchRecursive(string) error  { return nil }
func (w *chanWatcher) Events() <-chan watcher.Event { return w.events }
func (w *chanWatcher) Errors() <-chan error         { return w.errors }
func (w *chanWatcher) Close() error {
	close(w.events)
	return nil
}

type recordingSink struct {
	changes []project.ChangeEvent
}

func (s *recordingSink) FileChanged(_ context.Context, uri string, kind project.ChangeKind) {
	s.changes = append(s.changes, project.ChangeEvent{URI: uri, Kind: kind})
}

func TestForwardEvents(t *testing.T) {
	w := &chanWatcher{events: make(chan watcher.Event, 4), errors: make(chan error, 1)}
	w.events <- watcher.Event{Path: "/src/app/go.mod", Op: watcher.OpWrite}
	w.events <- watcher.Event{Path: "/src/app/old.go", Op: watcher.OpRemove}
	w.events <- watcher.Event{Path: "/src/app/x", Op: 0}
	w.Close()

	sink := &recordingSink{}
	forwardEvents(context.Background(), w, sink, zap.NewNop())

	assert.Equal(t, []project.ChangeEvent{
		{URI: workspace.PathToURI("/src/app/go.mod"), Kind: project.Changed},
		{URI: workspace.PathToURI("/src/app/old.go"), Kind: project.Deleted},
	}, sink.changes)
}

func TestBuildRegistry(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "scripts", "b.lua"), "function applies(root) return -1 end")
	writeFile(t, filepath.Join(dir, "scripts", "a.lua"), "function applies(root) return -1 end")
	writeFile(t, filepath.Join(dir, "scripts", "README"), "not a script")

	ws := workspace.New(filepath.Join(dir, "ws"))
	prefs := config.Default()
	prefs.Importers.Scripts = []string{filepath.Join(dir, "scripts"), filepath.Join(dir, "missing")}

	reg, err := buildRegistry(ws, prefs, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{gomod.ID, descriptor.ID, "script:a", "script:b"}, reg.IDs())

	prefs.Importers.Disabled = []string{descriptor.ID, "script:b"}
	reg, err = buildRegistry(ws, prefs, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{gomod.ID, "script:a"}, reg.IDs())
}

func TestNewUsesConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "buildsync.toml")
	writeFile(t, cfg, "[build]\nupdate_configuration = \"automatic\"\n[importers]\ndisabled = [\"descriptor\"]\n")

	a := newTestApp(t, Options{ConfigPath: cfg})
	assert.Equal(t, config.PolicyAutomatic, a.Preferences().UpdatePolicy())
	assert.Equal(t, cfg, a.Preferences().Path())
	assert.Equal(t, []string{gomod.ID}, a.Registry().IDs())
}

func TestNewRejectsBadLogLevel(t *testing.T) {
	_, err := New(context.Background(), Options{
		WorkspacePath: t.TempDir(),
		LogLevel:      "loud",
		LogOutput:     zapcore.AddSync(io.Discard),
	})
	require.ErrorIs(t, err, ErrInvalidLogLevel)

	var serr *StageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StageLogging, serr.Stage)
	assert.EqualError(t, err, `logging (loud): invalid log level: "loud"`)
}

func TestImportGoModule(t *testing.T) {
	root := filepath.Join(t.TempDir(), "hello")
	writeFile(t, filepath.Join(root, "go.mod"), "module example.com/hello\n\ngo 1.22\n\nrequire github.com/google/uuid v1.6.0\n")
	writeFile(t, filepath.Join(root, "main.go"), "package main\n")

	a := newTestApp(t, Options{})
	var out bytes.Buffer
	require.NoError(t, a.Import(context.Background(), root, &out))

	p := a.Workspace().Project("hello")
	require.True(t, p.Exists())
	assert.True(t, p.IsOpen())
	assert.True(t, p.HasNature(workspace.NatureGo))
	assert.True(t, p.File("main.go").Exists())
	assert.True(t, a.Workspace().Project(project.DefaultProjectName).Exists())

	text := out.String()
	assert.Contains(t, text, "hello")
	assert.Contains(t, text, project.DefaultProjectName)
	assert.Contains(t, text, "build support: gomod")
}

func TestImportNeedsRoot(t *testing.T) {
	a := newTestApp(t, Options{})
	assert.ErrorIs(t, a.Import(context.Background(), "", io.Discard), ErrNoRoot)
}

func TestImportRestoresWorkspace(t *testing.T) {
	root := filepath.Join(t.TempDir(), "hello")
	writeFile(t, filepath.Join(root, "go.mod"), "module example.com/hello\n")
	wsDir := filepath.Join(t.TempDir(), "ws")

	first := newTestApp(t, Options{WorkspacePath: wsDir})
	require.NoError(t, first.Import(context.Background(), root, io.Discard))

	second := newTestApp(t, Options{WorkspacePath: wsDir})
	p := second.Workspace().Project("hello")
	assert.True(t, p.Exists())
	assert.True(t, p.IsOpen())
}

func TestServeSession(t *testing.T) {
	root := filepath.Join(t.TempDir(), "hello")
	writeFile(t, filepath.Join(root, "go.mod"), "module example.com/hello\n")

	a := newTestApp(t, Options{Version: "test"})
	inR, inW := io.Pipe()
	var out syncBuffer

	done := make(chan error, 1)
	go func() { done <- a.Serve(context.Background(), root, inR, &out) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"type":"Started"`)
	}, 5*time.Second, 10*time.Millisecond)

	assert.Contains(t, out.String(), "language/progressReport")
	assert.True(t, a.Workspace().Project("hello").IsOpen())

	exit := `{"jsonrpc":"2.0","method":"exit"}`
	_, err := fmt.Fprintf(inW, "Content-Length: %d\r\n\r\n%s", len(exit), exit)
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	a := newTestApp(t, Options{})
	inR, _ := io.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, "", inR, io.Discard) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			assert.ErrorIs(t, err, context.Canceled)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}
