package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanWatcher struct {
	once   sync.Once
	events chan Event
	errors chan error
}

func newChanWatcher() *chanWatcher {
	return &chanWatcher{events: make(chan Event, 16), errors: make(chan error, 16)}
}

func (c *chanWatcher) Watch(string) error          { return nil }
func (c *chanWatcher) WatchRecursive(string) error { return nil }
func (c *chanWatcher) Events() <-chan Event        { return c.events }
func (c *chanWatcher) Errors() <-chan error        { return c.errors }

func (c *chanWatcher) Close() error {
	c.once.Do(func() {
		close(c.events)
		close(c.errors)
	})
	return nil
}

func TestOpString(t *testing.T) {
	cases := map[Op]string{
		0:                   "none",
		OpCreate:            "create",
		OpRename:            "rename",
		OpCreate | OpWrite:  "create|write",
		OpRemove | OpChmod:  "remove|chmod",
		OpRemove | OpRename: "remove|rename",
	}
	for op, want := range cases {
		assert.Equal(t, want, op.String())
	}
	assert.False(t, OpWrite.Has(0))
}

func TestEventGone(t *testing.T) {
	assert.False(t, Event{Op: OpCreate | OpWrite}.Gone())
	assert.True(t, Event{Op: OpCreate | OpRemove}.Gone())
	assert.True(t, Event{Op: OpRename}.Gone())
}

func TestRunStopsWhenEventsClose(t *testing.T) {
	w := newChanWatcher()
	w.events <- Event{Path: "/a/pom.xml", Op: OpWrite}
	w.errors <- errors.New("overflow")

	var paths []string
	var errs int
	done := make(chan struct{})
	go func() {
		defer close(done)
		Run(context.Background(), w,
			func(e Event) { paths = append(paths, e.Path) },
			func(error) { errs++ })
	}()

	require.Eventually(t, func() bool { return len(w.events) == 0 && len(w.errors) == 0 },
		time.Second, 5*time.Millisecond)
	w.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after close")
	}
	assert.Equal(t, []string{"/a/pom.xml"}, paths)
	assert.Equal(t, 1, errs)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		Run(ctx, newChanWatcher(), nil, nil)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run ignored cancellation")
	}
}

func TestDebouncerMergesBursts(t *testing.T) {
	w := newChanWatcher()
	d := Debounce(w, 30*time.Millisecond)
	defer d.Close()

	w.events <- Event{Path: "/p/go.mod", Op: OpCreate}
	w.events <- Event{Path: "/p/go.mod", Op: OpWrite}
	w.events <- Event{Path: "/p/go.mod", Op: OpRemove}

	select {
	case e := <-d.Events():
		assert.Equal(t, "/p/go.mod", e.Path)
		assert.Equal(t, OpCreate|OpWrite|OpRemove, e.Op)
		assert.True(t, e.Gone())
	case <-time.After(time.Second):
		t.Fatal("no debounced event")
	}

	select {
	case e := <-d.Events():
		t.Fatalf("unexpected second event %+v", e)
	case <-time.After(80 * time.Millisecond):
	}
	assert.Zero(t, d.Pending())
}

func TestDebouncerFlush(t *testing.T) {
	w := newChanWatcher()
	d := Debounce(w, time.Hour)
	defer d.Close()

	w.events <- Event{Path: "/b", Op: OpWrite}
	w.events <- Event{Path: "/a", Op: OpWrite}
	require.Eventually(t, func() bool { return d.Pending() == 2 }, time.Second, 5*time.Millisecond)

	d.Flush()
	assert.Zero(t, d.Pending())

	var got []string
	for range 2 {
		select {
		case e := <-d.Events():
			got = append(got, e.Path)
		case <-time.After(time.Second):
			t.Fatal("flushed events missing")
		}
	}
	assert.Equal(t, []string{"/a", "/b"}, got)
}

func TestDebouncerForwardsErrorsAndCloses(t *testing.T) {
	w := newChanWatcher()
	d := Debounce(w, 0)

	boom := errors.New("boom")
	w.errors <- boom
	select {
	case err := <-d.Errors():
		assert.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("error not forwarded")
	}

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	_, ok := <-d.Events()
	assert.False(t, ok)
	d.Flush()
}

func TestIgnore(t *testing.T) {
	ig := NewIgnore(".git/", "*.log", "!keep.log", "# comment", "", "/target/")
	assert.Equal(t, 4, ig.Len())

	cases := []struct {
		path string
		dir  bool
		want bool
	}{
		{"/repo/.git", true, true},
		{"/repo/.git/config", false, true},
		{"/repo/.git", false, false},
		{"/repo/out.log", false, true},
		{"/repo/keep.log", false, false},
		{"/repo/target/classes/A.class", false, true},
		{"/repo/pom.xml", false, false},
		{`C:\repo\src\Main.java`, false, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ig.Match(c.path, c.dir), c.path)
	}
	assert.False(t, NewIgnore().Match("/x/.git/y", false))
}

func TestDefaultIgnoreSkipsMetadata(t *testing.T) {
	ig := NewIgnore(DefaultIgnorePatterns...)
	assert.True(t, ig.Match("/ws/.metadata/projects.yaml", false))
	assert.False(t, ig.Match("/ws/app/build.gradle", false))
}

func TestFSWatcherMissingPath(t *testing.T) {
	w, err := New()
	require.NoError(t, err)
	defer w.Close()

	err = w.Watch(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrPathNotExist)
}

func TestFSWatcherRecursive(t *testing.T) {
	w, err := New()
	require.NoError(t, err)
	defer w.Close()

	root := t.TempDir()
	sub := filepath.Join(root, "src", "main")
	ignored := filepath.Join(root, ".git", "objects")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.MkdirAll(ignored, 0o755))

	require.NoError(t, w.WatchRecursive(root))
	assert.True(t, w.Watching(sub))
	assert.False(t, w.Watching(ignored))
	assert.NoError(t, w.Watch(root))
}

func TestFSWatcherReportsWritesAndNewDirs(t *testing.T) {
	w, err := New()
	require.NoError(t, err)
	defer w.Close()

	root := t.TempDir()
	require.NoError(t, w.WatchRecursive(root))

	nested := filepath.Join(root, "module")
	require.NoError(t, os.Mkdir(nested, 0o755))
	require.Eventually(t, func() bool { return w.Watching(nested) }, 2*time.Second, 10*time.Millisecond)

	target := filepath.Join(nested, "go.mod")
	require.NoError(t, os.WriteFile(target, []byte("module x\n"), 0o644))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-w.Events():
			if e.Path == target {
				return
			}
		case <-deadline:
			t.Fatal("no event for the nested build file")
		}
	}
}

func TestFSWatcherClose(t *testing.T) {
	w, err := New()
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	assert.ErrorIs(t, w.Watch(t.TempDir()), ErrClosed)
	_, ok := <-w.Events()
	assert.False(t, ok)
}
