package watcher

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultDebounce is used when a non-positive delay is requested.
const DefaultDebounce = 100 * time.Millisecond

// Debouncer wraps a Watcher and merges bursts of changes to the same path
// into one event, emitted once the path has been quiet for the delay.
// Editors typically write a build file as truncate, write, chmod; the
// reactor should see that as a single change.
type Debouncer struct {
	inner Watcher
	delay time.Duration

	events  chan Event
	errors  chan error
	flushes chan chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	pending atomic.Int64
}

var _ Watcher = (*Debouncer)(nil)

// Debounce starts a Debouncer reading from inner. Closing the Debouncer
// closes inner.
func Debounce(inner Watcher, delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	d := &Debouncer{
		inner:   inner,
		delay:   delay,
		events:  make(chan Event, 128),
		errors:  make(chan error, 16),
		flushes: make(chan chan struct{}),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Debouncer) Watch(path string) error          { return d.inner.Watch(path) }
func (d *Debouncer) WatchRecursive(path string) error { return d.inner.WatchRecursive(path) }
func (d *Debouncer) Events() <-chan Event             { return d.events }
func (d *Debouncer) Errors() <-chan error             { return d.errors }

// Pending returns the number of paths inside their quiet window.
func (d *Debouncer) Pending() int { return int(d.pending.Load()) }

// Flush emits every pending event now, in path order.
func (d *Debouncer) Flush() {
	ack := make(chan struct{})
	select {
	case d.flushes <- ack:
		<-ack
	case <-d.done:
	}
}

// Close discards pending events and closes the wrapped watcher.
func (d *Debouncer) Close() error {
	d.once.Do(func() { close(d.stop) })
	<-d.done
	return d.inner.Close()
}

type pendingEvent struct {
	ev  Event
	due time.Time
}

func (d *Debouncer) loop() {
	defer close(d.done)
	defer close(d.errors)
	defer close(d.events)

	pending := make(map[string]*pendingEvent)
	timer := time.NewTimer(d.delay)
	timer.Stop()
	defer timer.Stop()

	// emit sends every event due at or before cutoff. It returns false
	// when the Debouncer is stopping.
	emit := func(cutoff time.Time) bool {
		for _, p := range sortedDue(pending, cutoff) {
			delete(pending, p.ev.Path)
			select {
			case d.events <- p.ev:
			case <-d.stop:
				return false
			}
		}
		d.pending.Store(int64(len(pending)))
		if next, ok := earliest(pending); ok {
			timer.Reset(time.Until(next))
		}
		return true
	}

	innerEvents, innerErrors := d.inner.Events(), d.inner.Errors()
	for {
		select {
		case <-d.stop:
			return

		case ev, ok := <-innerEvents:
			if !ok {
				return
			}
			due := time.Now().Add(d.delay)
			if p, ok := pending[ev.Path]; ok {
				p.ev.Op |= ev.Op
				p.ev.Time = ev.Time
				p.due = due
			} else {
				pending[ev.Path] = &pendingEvent{ev: ev, due: due}
			}
			d.pending.Store(int64(len(pending)))
			if next, ok := earliest(pending); ok {
				timer.Reset(time.Until(next))
			}

		case err, ok := <-innerErrors:
			if !ok {
				innerErrors = nil
				continue
			}
			select {
			case d.errors <- err:
			default:
			}

		case <-timer.C:
			if !emit(time.Now()) {
				return
			}

		case ack := <-d.flushes:
			ok := emit(time.Now().Add(d.delay))
			close(ack)
			if !ok {
				return
			}
		}
	}
}

func earliest(pending map[string]*pendingEvent) (time.Time, bool) {
	var first time.Time
	for _, p := range pending {
		if first.IsZero() || p.due.Before(first) {
			first = p.due
		}
	}
	return first, !first.IsZero()
}

func sortedDue(pending map[string]*pendingEvent, cutoff time.Time) []*pendingEvent {
	var due []*pendingEvent
	for _, p := range pending {
		if !p.due.After(cutoff) {
			due = append(due, p)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ev.Path < due[j].ev.Path })
	return due
}
