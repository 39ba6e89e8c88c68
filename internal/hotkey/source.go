package hotkey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	hook "github.com/robotn/gohook"
)

// ErrHookUnavailable is returned when the system-wide key tap could not be
// installed, usually because the accessibility/input-monitoring permission
// has not been granted. It is reported once and never retried.
var ErrHookUnavailable = errors.New("hotkey: global key hook unavailable (check accessibility permissions)")

// Source produces raw key transitions.
type Source interface {
	// Start installs the tap. The returned channel is closed when ctx is
	// cancelled or the tap stops.
	Start(ctx context.Context) (<-chan RawEvent, error)
}

// KeyCode resolves a key name ("alt", "ralt", "esc", "cmd") to the keycode
// reported in raw events.
func KeyCode(name string) (uint16, error) {
	code, ok := hook.Keycode[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("hotkey: unknown key %q", name)
	}
	return code, nil
}

// HookSource is a Source backed by gohook. gohook keeps global state, so
// only one HookSource may be started per process.
type HookSource struct {
	timeout time.Duration
	once    sync.Once
}

// NewHookSource creates a HookSource that waits up to timeout for the OS
// hook to report itself enabled.
func NewHookSource(timeout time.Duration) *HookSource {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HookSource{timeout: timeout}
}

// Start begins listening. gohook cannot swallow events, so Decision.Consume
// is advisory with this source.
func (s *HookSource) Start(ctx context.Context) (<-chan RawEvent, error) {
	evChan := hook.Start()

	if err := s.waitEnabled(evChan); err != nil {
		s.end()
		return nil, err
	}
	slog.Debug("[Hotkey] hook enabled")

	out := make(chan RawEvent, 64)
	go func() {
		<-ctx.Done()
		s.end()
	}()
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-evChan:
				if !ok {
					return
				}
				raw, ok := translate(e)
				if !ok {
					continue
				}
				select {
				case out <- raw:
				default:
					slog.Warn("[Hotkey] raw event dropped, consumer is behind")
				}
			}
		}
	}()
	return out, nil
}

// Stop removes the tap. It is safe to call more than once and also happens
// automatically when the Start context is cancelled.
func (s *HookSource) Stop() {
	s.end()
}

func (s *HookSource) waitEnabled(evChan chan hook.Event) error {
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	for {
		select {
		case e, ok := <-evChan:
			if !ok {
				return ErrHookUnavailable
			}
			if e.Kind == hook.HookEnabled {
				return nil
			}
		case <-timer.C:
			return ErrHookUnavailable
		}
	}
}

func (s *HookSource) end() {
	s.once.Do(hook.End)
}

// translate maps gohook key events onto RawEvent. KeyHold is the physical
// press; KeyDown is the "typed" character event and is ignored.
func translate(e hook.Event) (RawEvent, bool) {
	switch e.Kind {
	case hook.KeyHold:
		return RawEvent{Key: e.Keycode, Pressed: true, Mask: e.Mask, At: e.When}, true
	case hook.KeyUp:
		return RawEvent{Key: e.Keycode, Pressed: false, Mask: e.Mask, At: e.When}, true
	default:
		return RawEvent{}, false
	}
}
