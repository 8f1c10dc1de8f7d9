package update

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dshills/buildsync/internal/project/buildsupport"
	"github.com/dshills/buildsync/internal/project/vfs"
	"github.com/dshills/buildsync/internal/project/workspace"
)

// recordingSupport tracks concurrent Update calls per project.
type recordingSupport struct {
	applies bool
	err     error
	panics  bool
	gate    map[string]chan struct{}

	mu       sync.Mutex
	inflight map[string]int
	overlap  map[string]bool
	calls    map[string]int
	started  chan string
}

func newRecordingSupport() *recordingSupport {
	return &recordingSupport{
		applies:  true,
		gate:     make(map[string]chan struct{}),
		inflight: make(map[string]int),
		overlap:  make(map[string]bool),
		calls:    make(map[string]int),
		started:  make(chan string, 16),
	}
}

func (r *recordingSupport) ID() string                           { return "recording" }
func (r *recordingSupport) IsBuildFile(*workspace.Resource) bool { return true }
func (r *recordingSupport) AppliesTo(*workspace.Project) bool    { return r.applies }

func (r *recordingSupport) Update(_ context.Context, p *workspace.Project) error {
	name := p.Name()
	r.mu.Lock()
	r.inflight[name]++
	if r.inflight[name] > 1 {
		r.overlap[name] = true
	}
	r.calls[name]++
	gate := r.gate[name]
	r.mu.Unlock()

	r.started <- name
	if gate != nil {
		<-gate
	}

	r.mu.Lock()
	r.inflight[name]--
	r.mu.Unlock()

	if r.panics {
		panic("driver crashed")
	}
	return r.err
}

func (r *recordingSupport) callCount(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[name]
}

type statusRecorder struct {
	mu     sync.Mutex
	msgs   []string
	onSend func()
}

func (s *statusRecorder) SendStatus(_ context.Context, message string) error {
	s.mu.Lock()
	s.msgs = append(s.msgs, message)
	s.mu.Unlock()
	if s.onSend != nil {
		s.onSend()
	}
	return nil
}

func projects(t *testing.T, names ...string) []*workspace.Project {
	t.Helper()
	fsys := vfs.NewMemFS()
	require.NoError(t, fsys.MkdirAll("/ws"))
	ws := workspace.New("/ws", workspace.WithVFS(fsys))
	out := make([]*workspace.Project, 0, len(names))
	for _, name := range names {
		p, err := ws.CreateProject(context.Background(), workspace.Description{Name: name})
		require.NoError(t, err)
		out = append(out, p)
	}
	return out
}

func newScheduler(support buildsupport.BuildSupport, opts ...Option) *Scheduler {
	active := buildsupport.NewActive()
	if support != nil {
		active.Set(support)
	}
	return NewScheduler(active, append([]Option{WithLogger(zap.NewNop())}, opts...)...)
}

func TestScheduleWithoutActiveSupport(t *testing.T) {
	ps := projects(t, "p")
	s := newScheduler(nil)
	assert.Empty(t, s.Schedule(ps[0]))
	s.Close()
}

func TestScheduleSupportNotApplicable(t *testing.T) {
	ps := projects(t, "p")
	support := newRecordingSupport()
	support.applies = false
	sender := &statusRecorder{}
	s := newScheduler(support, WithStatusSender(sender))

	assert.Empty(t, s.Schedule(ps[0]))
	s.Close()
	assert.Zero(t, support.callCount("p"))
	assert.Empty(t, sender.msgs)
}

func TestScheduleRunsUpdate(t *testing.T) {
	ps := projects(t, "app")
	support := newRecordingSupport()
	sender := &statusRecorder{}
	s := newScheduler(support, WithStatusSender(sender))

	var got []Status
	var mu sync.Mutex
	unsubscribe := s.Subscribe(func(st Status) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, st)
	})
	defer unsubscribe()

	id := s.Schedule(ps[0])
	require.NotEmpty(t, id)
	s.Wait()

	assert.Equal(t, 1, support.callCount("app"))
	assert.Equal(t, []string{"Updating app configuration"}, sender.msgs)
	require.Len(t, got, 1)
	assert.True(t, got[0].OK())
	assert.Equal(t, id, got[0].JobID)
	assert.Equal(t, "app", got[0].Project)
	assert.Contains(t, got[0].Message, "Updated app in")
}

func TestScheduleReportsErrorStatus(t *testing.T) {
	ps := projects(t, "app")
	support := newRecordingSupport()
	support.err = errors.New("resolution failed")
	s := newScheduler(support)

	statuses := make(chan Status, 2)
	s.Subscribe(func(st Status) { statuses <- st })

	s.Schedule(ps[0])
	s.Schedule(ps[0])
	s.Wait()

	for i := 0; i < 2; i++ {
		st := <-statuses
		assert.Equal(t, SeverityError, st.Severity)
		assert.Equal(t, "Error updating app", st.Message)
		assert.ErrorIs(t, st.Err, support.err)
	}
	assert.Equal(t, 2, support.callCount("app"), "a failure must not block later updates")
}

func TestScheduleRecoversPanic(t *testing.T) {
	ps := projects(t, "app")
	support := newRecordingSupport()
	support.panics = true
	s := newScheduler(support)

	statuses := make(chan Status, 1)
	s.Subscribe(func(st Status) { statuses <- st })
	s.Schedule(ps[0])
	s.Wait()

	st := <-statuses
	assert.False(t, st.OK())
	assert.Contains(t, st.Err.Error(), "panicked")
}

func TestSameProjectSerializedOtherProjectIndependent(t *testing.T) {
	ps := projects(t, "P", "Q")
	support := newRecordingSupport()
	gateP := make(chan struct{})
	support.gate["P"] = gateP
	s := newScheduler(support)

	s.Schedule(ps[0])
	s.Schedule(ps[0])
	require.Equal(t, "P", <-support.started)

	// Q runs to completion while P's first update is still blocked.
	s.Schedule(ps[1])
	select {
	case name := <-support.started:
		assert.Equal(t, "Q", name)
	case <-time.After(2 * time.Second):
		t.Fatal("Q update did not start while P was in flight")
	}
	require.Eventually(t, func() bool { return support.callCount("Q") == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, support.callCount("P"), "second P update must wait for the first")
	assert.Equal(t, 1, s.Pending())

	close(gateP)
	s.Wait()

	assert.Equal(t, 2, support.callCount("P"))
	support.mu.Lock()
	defer support.mu.Unlock()
	assert.False(t, support.overlap["P"])
}

func TestMaxConcurrent(t *testing.T) {
	ps := projects(t, "a", "b", "c")
	var running, peak int32
	support := &funcSupport{update: func() {
		n := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
	}}
	s := newScheduler(support, WithMaxConcurrent(1))
	for _, p := range ps {
		s.Schedule(p)
	}
	s.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
}

func TestCloseRejectsNewUpdates(t *testing.T) {
	ps := projects(t, "app")
	support := newRecordingSupport()
	sender := &statusRecorder{}
	s := newScheduler(support, WithStatusSender(sender))
	s.Close()

	assert.Empty(t, s.Schedule(ps[0]))
	assert.Zero(t, support.callCount("app"))
	assert.Empty(t, sender.msgs)
}

func TestStatusOnlyForQueuedUpdates(t *testing.T) {
	ps := projects(t, "app")
	support := newRecordingSupport()
	sender := &statusRecorder{}
	s := newScheduler(support, WithStatusSender(sender))
	sender.onSend = s.Close

	id := s.Schedule(ps[0])
	require.NotEmpty(t, id)

	assert.Equal(t, []string{"Updating app configuration"}, sender.msgs)
	assert.Equal(t, 1, support.callCount("app"))
	assert.Empty(t, s.Schedule(ps[0]))
	assert.Len(t, sender.msgs, 1)
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "ok", SeverityOK.String())
	assert.Equal(t, "error", SeverityError.String())
	assert.Equal(t, "[error] boom: x", Status{Severity: SeverityError, Message: "boom", Err: errors.New("x")}.String())
}

type funcSupport struct{ update func() }

func (f *funcSupport) ID() string                           { return "func" }
func (f *funcSupport) IsBuildFile(*workspace.Resource) bool { return true }
func (f *funcSupport) AppliesTo(*workspace.Project) bool    { return true }
func (f *funcSupport) Update(context.Context, *workspace.Project) error {
	f.update()
	return nil
}
