// Package dispatch provides a single-threaded event queue. Producers on any
// goroutine Post events; Run delivers them one at a time, in arrival order,
// to the handler registered for the event's kind. Handlers therefore never
// run concurrently with each other and may own state without locks.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Kind identifies a class of events.
type Kind string

// Event is one queued item.
type Event struct {
	Kind Kind
	At   time.Time
	Data any
}

// Handler processes one event on the dispatch goroutine.
type Handler func(Event)

// ErrClosed is returned by Post once the dispatcher has stopped.
var ErrClosed = errors.New("dispatch: closed")

// ErrFull is returned by Post when the queue is at capacity.
var ErrFull = errors.New("dispatch: queue full")

// Dispatcher is a bounded FIFO with per-kind handlers.
type Dispatcher struct {
	queue chan Event
	done  chan struct{}
	once  sync.Once

	mu       sync.RWMutex
	handlers map[Kind]Handler
	now      func() time.Time
}

// New creates a Dispatcher with room for size pending events.
func New(size int) *Dispatcher {
	if size <= 0 {
		size = 64
	}
	return &Dispatcher{
		queue:    make(chan Event, size),
		done:     make(chan struct{}),
		handlers: make(map[Kind]Handler),
		now:      time.Now,
	}
}

// Register installs h for kind, replacing any previous handler.
func (d *Dispatcher) Register(kind Kind, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = h
}

// Post enqueues an event without blocking. At is stamped if zero.
func (d *Dispatcher) Post(ev Event) error {
	if ev.At.IsZero() {
		ev.At = d.now()
	}
	select {
	case <-d.done:
		return ErrClosed
	default:
	}
	select {
	case d.queue <- ev:
		return nil
	case <-d.done:
		return ErrClosed
	default:
		return ErrFull
	}
}

// Run delivers events until ctx is cancelled. It must be called from
// exactly one goroutine.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.once.Do(func() { close(d.done) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-d.queue:
			d.deliver(ev)
		}
	}
}

func (d *Dispatcher) deliver(ev Event) {
	d.mu.RLock()
	h, ok := d.handlers[ev.Kind]
	d.mu.RUnlock()
	if !ok {
		slog.Debug("[Dispatch] no handler", "kind", ev.Kind)
		return
	}
	h(ev)
}
