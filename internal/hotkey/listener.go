// Package hotkey turns raw global key transitions into Toggle and Cancel
// signals. Raw events are funnelled through a dispatch.Dispatcher so that
// debouncing and everything downstream of it run on one goroutine in
// arrival order.
package hotkey

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chaz8081/gostt-relay/internal/dispatch"
)

// KindKey is the dispatch kind carrying a RawEvent.
const KindKey dispatch.Kind = "hotkey.raw"

// Handlers receives debounced signals on the dispatch goroutine.
type Handlers struct {
	Toggle func(at time.Time)
	Cancel func(at time.Time)
	// Active reports whether a recording session currently exists.
	Active func() bool
}

// Listener wires a Source and a Debouncer to a dispatcher.
type Listener struct {
	src Source
	deb *Debouncer
	d   *dispatch.Dispatcher
	h   Handlers
}

// NewListener registers the raw-key handler on d. Nil handler funcs are
// treated as no-ops.
func NewListener(src Source, deb *Debouncer, d *dispatch.Dispatcher, h Handlers) *Listener {
	l := &Listener{src: src, deb: deb, d: d, h: h}
	d.Register(KindKey, l.handle)
	return l
}

// Run starts the source and forwards its events until ctx is cancelled or
// the source stops. It returns ErrHookUnavailable if the tap cannot be
// installed.
func (l *Listener) Run(ctx context.Context) error {
	events, err := l.src.Start(ctx)
	if err != nil {
		return fmt.Errorf("hotkey: start source: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				slog.Info("[Hotkey] source stopped")
				return nil
			}
			if ev.At.IsZero() {
				ev.At = time.Now()
			}
			if err := l.d.Post(dispatch.Event{Kind: KindKey, At: ev.At, Data: ev}); err != nil {
				slog.Warn("[Hotkey] dropping raw event", "error", err)
			}
		}
	}
}

func (l *Listener) handle(ev dispatch.Event) {
	raw, ok := ev.Data.(RawEvent)
	if !ok {
		return
	}
	if l.h.Active != nil {
		l.deb.SetActive(l.h.Active())
	}
	dec := l.deb.Handle(raw)
	switch dec.Signal {
	case SignalToggle:
		slog.Debug("[Hotkey] toggle")
		if l.h.Toggle != nil {
			l.h.Toggle(raw.At)
		}
	case SignalCancel:
		slog.Debug("[Hotkey] cancel")
		if l.h.Cancel != nil {
			l.h.Cancel(raw.At)
		}
	}
}
