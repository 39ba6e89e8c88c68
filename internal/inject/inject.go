// Package inject delivers transcribed text to the focused application,
// either through a clipboard paste transaction that puts the user's
// clipboard back afterwards, or by synthesizing keystrokes.
package inject

import (
	"errors"
	"fmt"

	"github.com/go-vgo/robotgo"

	"github.com/chaz8081/gostt-relay/internal/config"
)

var (
	// ErrClipboardUnavailable means the clipboard could not be read or written.
	ErrClipboardUnavailable = errors.New("inject: clipboard unavailable")
	// ErrPasteFailed means the paste gesture could not be synthesized.
	ErrPasteFailed = errors.New("inject: paste gesture failed")
)

// Injector delivers text to the active application.
type Injector interface {
	Inject(text string) error
}

// New builds the injector selected by cfg.Method.
func New(cfg config.InjectConfig) (Injector, error) {
	switch cfg.Method {
	case "paste", "":
		keys := cfg.PasteKeys
		if len(keys) == 0 {
			keys = config.DefaultPasteKeys()
		}
		inj := NewClipboardInjector(NewSystemClipboard(), RobotPaster{Keys: keys},
			cfg.RestoreDelay.D(), cfg.SettleDelay.D())
		return inj.WithFallback(NewTypeInjector()), nil
	case "type":
		return NewTypeInjector(), nil
	default:
		return nil, fmt.Errorf("inject: unknown method %q", cfg.Method)
	}
}

// TypeInjector simulates individual keystrokes. It never touches the
// clipboard but is slower for long text.
type TypeInjector struct {
	typeFn func(string)
}

// NewTypeInjector creates a TypeInjector backed by robotgo.
func NewTypeInjector() *TypeInjector {
	return &TypeInjector{typeFn: func(s string) { robotgo.Type(s) }}
}

// Inject types text into the active application.
func (t *TypeInjector) Inject(text string) error {
	if text == "" {
		return nil
	}
	t.typeFn(text)
	return nil
}
