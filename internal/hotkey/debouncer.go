package hotkey

import "time"

// Signal is the semantic output of the debouncer.
type Signal int

const (
	// SignalNone means the raw event produced nothing.
	SignalNone Signal = iota
	// SignalToggle starts recording when idle and stops it when recording.
	SignalToggle
	// SignalCancel discards the recording in progress.
	SignalCancel
)

func (s Signal) String() string {
	switch s {
	case SignalToggle:
		return "toggle"
	case SignalCancel:
		return "cancel"
	default:
		return "none"
	}
}

// RawEvent is one key transition from the OS input tap.
type RawEvent struct {
	Key     uint16 // keycode
	Pressed bool   // true on key down, false on key up
	Mask    uint16 // modifier mask at the time of the event
	At      time.Time
}

// Decision is the debouncer's verdict for one raw event. Consume asks the
// event source to swallow the event so the foreground app never sees it.
type Decision struct {
	Signal  Signal
	Consume bool
}

// Debouncer turns raw transitions of one designated modifier key into
// Toggle signals, and presses of the cancel key into Cancel signals.
//
// A Toggle fires on the release of the toggle key only when the transition
// immediately before it was the press of that same key, and only when more
// than the debounce window has passed since the last Toggle. Chords such as
// alt+tab therefore never toggle. Handle is not safe for concurrent use; it
// is meant to be driven from a single dispatch goroutine.
type Debouncer struct {
	toggleKey uint16
	cancelKey uint16
	window    time.Duration

	keyDown     bool
	prev        RawEvent
	havePrev    bool
	lastTrigger time.Time
	active      bool
}

// NewDebouncer creates a Debouncer. A zero window disables rate limiting
// but keeps the one-toggle-per-press rule.
func NewDebouncer(toggleKey, cancelKey uint16, window time.Duration) *Debouncer {
	return &Debouncer{
		toggleKey: toggleKey,
		cancelKey: cancelKey,
		window:    window,
	}
}

// SetActive tells the debouncer whether a recording session exists.
// Cancel is only emitted while active.
func (d *Debouncer) SetActive(active bool) {
	d.active = active
}

// KeyDown reports whether the toggle key is currently held.
func (d *Debouncer) KeyDown() bool {
	return d.keyDown
}

// LastTrigger returns the time of the last emitted Toggle.
func (d *Debouncer) LastTrigger() time.Time {
	return d.lastTrigger
}

// Handle consumes one raw event.
func (d *Debouncer) Handle(ev RawEvent) Decision {
	defer func() {
		d.prev = ev
		d.havePrev = true
	}()

	if ev.Key == d.cancelKey {
		if ev.Pressed && d.active {
			return Decision{Signal: SignalCancel, Consume: true}
		}
		return Decision{}
	}

	if ev.Key != d.toggleKey {
		return Decision{}
	}

	if ev.Pressed {
		d.keyDown = true
		return Decision{}
	}

	wasDown := d.keyDown
	d.keyDown = false
	if !wasDown || !d.havePrev || d.prev.Key != d.toggleKey || !d.prev.Pressed {
		return Decision{}
	}
	if !d.lastTrigger.IsZero() && ev.At.Sub(d.lastTrigger) <= d.window {
		return Decision{}
	}
	d.lastTrigger = ev.At
	return Decision{Signal: SignalToggle}
}
