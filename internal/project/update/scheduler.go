// Package update runs project configuration updates in the background.
//
// Every project gets its own FIFO queue drained by a single goroutine, so
// two updates of the same project never overlap while different projects
// update concurrently.
package update

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dshills/buildsync/internal/project/buildsupport"
	"github.com/dshills/buildsync/internal/project/workspace"
)

// ErrClosed is reported for updates scheduled after Close.
var ErrClosed = errors.New("scheduler is closed")

// StatusSender publishes short status messages to the client.
type StatusSender interface {
	SendStatus(ctx context.Context, message string) error
}

// StatusHandler receives the outcome of every update. Handlers run on the
// update goroutine and must not block.
type StatusHandler func(Status)

// Scheduler serializes configuration updates per project.
type Scheduler struct {
	active *buildsupport.Active
	logger *zap.Logger
	sender StatusSender
	sem    chan struct{}

	mu       sync.Mutex
	queues   map[string]*queue
	handlers map[int]StatusHandler
	nextID   int
	closed   bool
	wg       sync.WaitGroup
}

type queue struct {
	jobs []job
}

type job struct {
	id       string
	project  *workspace.Project
	support  buildsupport.BuildSupport
	enqueued time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStatusSender sets where "Updating" status messages go.
func WithStatusSender(sender StatusSender) Option {
	return func(s *Scheduler) {
		s.sender = sender
	}
}

// WithMaxConcurrent bounds how many projects update at once. Zero means
// no bound.
func WithMaxConcurrent(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.sem = make(chan struct{}, n)
		} else {
			s.sem = nil
		}
	}
}

// NewScheduler creates a scheduler that updates through the support held
// by active.
func NewScheduler(active *buildsupport.Active, opts ...Option) *Scheduler {
	s := &Scheduler{
		active:   active,
		logger:   zap.NewNop(),
		queues:   make(map[string]*queue),
		handlers: make(map[int]StatusHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("scheduler")
	return s
}

// Schedule queues a configuration update of p and returns its job ID. It
// returns "" without doing anything when no build support is active, the
// active support does not apply to p, or the scheduler is closed. The
// support in effect now is the one that runs the update.
func (s *Scheduler) Schedule(p *workspace.Project) string {
	if p == nil {
		return ""
	}
	support := s.active.Get()
	if support == nil || !support.AppliesTo(p) {
		return ""
	}

	j := job{
		id:       uuid.NewString(),
		project:  p,
		support:  support,
		enqueued: time.Now(),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Debug("update dropped", zap.String("project", p.Name()), zap.Error(ErrClosed))
		return ""
	}
	q, ok := s.queues[p.Name()]
	if !ok {
		q = &queue{}
		s.queues[p.Name()] = q
		s.wg.Add(1)
		go s.drain(p.Name(), q)
	}
	q.jobs = append(q.jobs, j)
	queued := len(q.jobs)
	s.mu.Unlock()

	s.logger.Debug("update scheduled",
		zap.String("project", p.Name()),
		zap.String("job", j.id),
		zap.Int("queued", queued))

	// The job is queued, so a concurrent Close waits for it to run.
	if s.sender != nil {
		msg := fmt.Sprintf("Updating %s configuration", p.Name())
		if err := s.sender.SendStatus(context.Background(), msg); err != nil {
			s.logger.Debug("status not sent", zap.Error(err))
		}
	}
	return j.id
}

// drain runs the queue's jobs in order and removes the queue once empty.
func (s *Scheduler) drain(name string, q *queue) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		if len(q.jobs) == 0 {
			delete(s.queues, name)
			s.mu.Unlock()
			return
		}
		j := q.jobs[0]
		q.jobs = q.jobs[1:]
		s.mu.Unlock()

		s.publish(s.run(j))
	}
}

func (s *Scheduler) run(j job) Status {
	if s.sem != nil {
		s.sem <- struct{}{}
		defer func() { <-s.sem }()
	}

	name := j.project.Name()
	// Jobs outlive the request that scheduled them, so each starts a trace.
	ctx, span := tracer.Start(context.Background(), "update.Run",
		trace.WithNewRoot(),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("project", name),
			attribute.String("support", j.support.ID()),
			attribute.String("job", j.id)))
	defer span.End()

	updatesInflight.Inc()
	start := time.Now()
	err := safeUpdate(ctx, j.support, j.project)
	elapsed := time.Since(start)
	updatesInflight.Dec()
	updateDuration.Observe(elapsed.Seconds())

	st := Status{Project: name, JobID: j.id, Elapsed: elapsed}
	if err != nil {
		updatesTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		st.Severity = SeverityError
		st.Message = fmt.Sprintf("Error updating %s", name)
		st.Err = err
		s.logger.Error(st.Message,
			zap.String("job", j.id),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return st
	}

	updatesTotal.WithLabelValues("ok").Inc()
	st.Severity = SeverityOK
	st.Message = fmt.Sprintf("Updated %s in %d ms", name, elapsed.Milliseconds())
	s.logger.Info(st.Message,
		zap.String("job", j.id),
		zap.Duration("elapsed", elapsed),
		zap.Duration("queued", start.Sub(j.enqueued)))
	return st
}

func safeUpdate(ctx context.Context, support buildsupport.BuildSupport, p *workspace.Project) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("build support %s panicked: %v", support.ID(), r)
		}
	}()
	return support.Update(ctx, p)
}

// Subscribe registers h for every update outcome and returns a function
// that removes it.
func (s *Scheduler) Subscribe(h StatusHandler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.handlers[id] = h
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers, id)
	}
}

func (s *Scheduler) publish(st Status) {
	s.mu.Lock()
	handlers := make([]StatusHandler, 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("status handler panicked", zap.Any("panic", r))
				}
			}()
			h(st)
		}()
	}
}

// Pending returns the number of queued, not yet started, updates.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, q := range s.queues {
		n += len(q.jobs)
	}
	return n
}

// Wait blocks until every scheduled update finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Close stops accepting updates and waits for the queued ones.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Wait()
}
