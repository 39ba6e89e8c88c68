package inject

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ClipboardInjector pastes text through the clipboard and restores the
// previous clipboard contents afterwards. Only one transaction runs at a
// time; concurrent calls queue.
type ClipboardInjector struct {
	cb           Clipboard
	paster       Paster
	restoreDelay time.Duration
	settleDelay  time.Duration
	sleep        func(time.Duration)
	fallback     Injector

	mu sync.Mutex
}

// NewClipboardInjector creates an injector. restoreDelay is how long the
// pasted text stays on the clipboard; settleDelay is the pause between
// setting the clipboard and sending the paste gesture.
func NewClipboardInjector(cb Clipboard, p Paster, restoreDelay, settleDelay time.Duration) *ClipboardInjector {
	if cb == nil || p == nil {
		panic("inject: NewClipboardInjector requires a clipboard and a paster")
	}
	return &ClipboardInjector{
		cb:           cb,
		paster:       p,
		restoreDelay: restoreDelay,
		settleDelay:  settleDelay,
		sleep:        time.Sleep,
	}
}

// WithFallback sets the injector used when the clipboard cannot be
// snapshotted. Without one, such an Inject fails with
// ErrClipboardUnavailable.
func (c *ClipboardInjector) WithFallback(f Injector) *ClipboardInjector {
	c.fallback = f
	return c
}

// Inject snapshots the clipboard, sets it to text, pastes, waits
// restoreDelay and restores the snapshot. The restore happens whether or
// not the paste succeeded. If the snapshot fails the clipboard is never
// touched and the fallback, if any, delivers the text. The returned error
// reports only whether text was delivered; a failed restore is logged.
// Empty text leaves the clipboard untouched.
func (c *ClipboardInjector) Inject(text string) error {
	if text == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.cb.Snapshot()
	if err != nil {
		if c.fallback == nil {
			return fmt.Errorf("%w: snapshot: %w", ErrClipboardUnavailable, err)
		}
		slog.Warn("[Inject] clipboard snapshot failed, typing instead", "error", err)
		return c.fallback.Inject(text)
	}

	defer func() {
		c.sleep(c.restoreDelay)
		if err := c.cb.Restore(snap); err != nil {
			slog.Warn("[Inject] restoring clipboard", "error", err)
			return
		}
		slog.Debug("[Inject] clipboard restored", "entries", len(snap.Entries))
	}()

	if err := c.cb.SetText(text); err != nil {
		return err
	}
	if c.settleDelay > 0 {
		c.sleep(c.settleDelay)
	}
	if err := c.paster.Paste(); err != nil {
		return err
	}
	slog.Debug("[Inject] pasted", "chars", len(text))
	return nil
}
