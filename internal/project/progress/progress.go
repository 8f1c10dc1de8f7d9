// Package progress provides hierarchical progress tracking with
// cooperative cancellation.
//
// All Tracker methods accept a nil receiver and do nothing, so callees
// may be driven without progress reporting.
//
// A Tracker owns a budget of work. Split hands a share of it to a child
// tracker; when the next Split happens, or Done is called, any unreported
// part of the previous child is accounted for. Reports are normalized to the
// root task so a Reporter always sees a single 0-100 range.
package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrCanceled is returned once the tracker's context is done.
var ErrCanceled = errors.New("operation canceled")

// DefaultTotal is the number of work units of a tracker that did not set one.
const DefaultTotal = 100

// Report is a snapshot of the root task's progress.
type Report struct {
	Task    string
	Subtask string
	Worked  float64 // fraction of the root task completed, 0..1
	Done    bool
}

// PercentComplete returns the completion percentage.
func (r Report) PercentComplete() float64 {
	return r.Worked * 100
}

// Reporter receives progress reports.
type Reporter interface {
	Report(ctx context.Context, r Report)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, r Report)

// Report implements Reporter.
func (f ReporterFunc) Report(ctx context.Context, r Report) { f(ctx, r) }

type root struct {
	mu       sync.Mutex
	ctx      context.Context
	reporter Reporter
	task     string
	subtask  string
	worked   float64
	done     bool
}

func (r *root) advance(delta float64, subtask string, done bool) {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return
	}
	if delta > 0 {
		r.worked += delta
		if r.worked > 1 {
			r.worked = 1
		}
	}
	if subtask != "" {
		r.subtask = subtask
	}
	if done {
		r.done = true
		r.worked = 1
	}
	rep := Report{Task: r.task, Subtask: r.subtask, Worked: r.worked, Done: r.done}
	reporter := r.reporter
	r.mu.Unlock()

	if reporter != nil {
		reporter.Report(r.ctx, rep)
	}
}

// Tracker tracks the progress of one (sub)task.
type Tracker struct {
	mu     sync.Mutex
	root   *root
	budget float64 // share of the root task
	total  int
	used   int
	child  *Tracker
	top    bool
}

// New starts tracking task with total work units. reporter may be nil.
func New(ctx context.Context, task string, total int, reporter Reporter) *Tracker {
	if total <= 0 {
		total = DefaultTotal
	}
	r := &root{ctx: ctx, reporter: reporter, task: task}
	t := &Tracker{root: r, budget: 1, total: total, top: true}
	r.advance(0, "", false)
	return t
}

// Nop returns a tracker that reports nowhere.
func Nop(ctx context.Context) *Tracker {
	return &Tracker{
		root:   &root{ctx: ctx},
		budget: 1,
		total:  DefaultTotal,
		top:    true,
	}
}

// Context returns the context the tracker observes.
func (t *Tracker) Context() context.Context {
	if t == nil {
		return context.Background()
	}
	return t.root.ctx
}

// Err returns ErrCanceled, wrapping the context error, once the context
// is done.
func (t *Tracker) Err() error {
	if t == nil {
		return nil
	}
	if err := t.root.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCanceled, err)
	}
	return nil
}

// SetTotal redefines the number of work units of a tracker that has not
// done any work yet.
func (t *Tracker) SetTotal(total int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.used == 0 && total > 0 {
		t.total = total
	}
}

// Subtask names the current step.
func (t *Tracker) Subtask(name string) {
	if t == nil {
		return
	}
	t.root.advance(0, name, false)
}

// Worked records n units of work done.
func (t *Tracker) Worked(n int) {
	if t == nil || n <= 0 {
		return
	}
	t.mu.Lock()
	delta := t.consumeLocked(n)
	t.mu.Unlock()
	t.root.advance(delta, "", false)
}

// Split finishes the previous child, if any, and returns a child tracker
// owning work units of this tracker. It fails with ErrCanceled when the
// context is done.
func (t *Tracker) Split(work int) (*Tracker, error) {
	if t == nil {
		return nil, nil
	}
	if err := t.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	pending := t.finishChildLocked()
	share := t.shareLocked(work)
	t.used += clampWork(work, t.total-t.used)
	child := &Tracker{root: t.root, budget: share, total: DefaultTotal}
	t.child = child
	t.mu.Unlock()

	t.root.advance(pending, "", false)
	return child, nil
}

// Done marks this tracker's whole budget as complete. Done on the root
// tracker emits the final report.
func (t *Tracker) Done() {
	if t == nil {
		return
	}
	t.mu.Lock()
	pending := t.finishChildLocked()
	pending += t.consumeLocked(t.total - t.used)
	t.mu.Unlock()

	t.root.advance(pending, "", t.top)
}

// consumeLocked marks n local units as used and returns their root share.
func (t *Tracker) consumeLocked(n int) float64 {
	n = clampWork(n, t.total-t.used)
	if n == 0 {
		return 0
	}
	t.used += n
	return t.budget * float64(n) / float64(t.total)
}

func (t *Tracker) shareLocked(work int) float64 {
	work = clampWork(work, t.total-t.used)
	return t.budget * float64(work) / float64(t.total)
}

// finishChildLocked returns the unreported share of the previous child.
func (t *Tracker) finishChildLocked() float64 {
	c := t.child
	if c == nil {
		return 0
	}
	t.child = nil

	c.mu.Lock()
	defer c.mu.Unlock()
	pending := c.finishChildLocked()
	return pending + c.consumeLocked(c.total-c.used)
}

func clampWork(n, remaining int) int {
	if n < 0 {
		return 0
	}
	if n > remaining {
		return remaining
	}
	return n
}
