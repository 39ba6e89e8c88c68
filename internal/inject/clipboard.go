package inject

import (
	"fmt"
	"sync"

	"github.com/go-vgo/robotgo"
	"golang.design/x/clipboard"
)

const (
	// TypeText is the content type of plain UTF-8 text.
	TypeText = "text/plain;charset=utf-8"
	// TypeImage is the content type of an image, encoded as PNG.
	TypeImage = "image/png"
)

// Entry is one representation held by the clipboard.
type Entry struct {
	Type string
	Data []byte
}

// Snapshot is the clipboard's content at one instant, in the order the
// platform reported it. An empty snapshot means the clipboard was empty.
type Snapshot struct {
	Entries []Entry
}

// Text returns the plain-text entry, if any.
func (s Snapshot) Text() (string, bool) {
	e, ok := s.entry(TypeText)
	return string(e.Data), ok
}

func (s Snapshot) entry(typ string) (Entry, bool) {
	for _, e := range s.Entries {
		if e.Type == typ {
			return e, true
		}
	}
	return Entry{}, false
}

// Clipboard is the shared system clipboard.
type Clipboard interface {
	Snapshot() (Snapshot, error)
	Restore(Snapshot) error
	SetText(text string) error
}

// systemFormats maps the formats the native clipboard exposes to entry
// types, in snapshot order.
var systemFormats = []struct {
	format clipboard.Format
	typ    string
}{
	{clipboard.FmtText, TypeText},
	{clipboard.FmtImage, TypeImage},
}

// SystemClipboard is the native clipboard (NSPasteboard, X11 selections,
// the Win32 clipboard) through golang.design/x/clipboard. It sees plain
// text and PNG images. A write replaces every representation, so a
// snapshot holding both is restored as the image.
type SystemClipboard struct {
	init  func() error
	read  func(clipboard.Format) []byte
	write func(clipboard.Format, []byte) <-chan struct{}

	once    sync.Once
	initErr error
}

// NewSystemClipboard returns the native clipboard. The platform backend is
// initialized on first use.
func NewSystemClipboard() *SystemClipboard {
	return &SystemClipboard{init: clipboard.Init, read: clipboard.Read, write: clipboard.Write}
}

func (c *SystemClipboard) ready() error {
	c.once.Do(func() { c.initErr = c.init() })
	if c.initErr != nil {
		return fmt.Errorf("%w: %v", ErrClipboardUnavailable, c.initErr)
	}
	return nil
}

func (c *SystemClipboard) Snapshot() (Snapshot, error) {
	if err := c.ready(); err != nil {
		return Snapshot{}, err
	}
	var s Snapshot
	for _, f := range systemFormats {
		if data := c.read(f.format); len(data) > 0 {
			s.Entries = append(s.Entries, Entry{Type: f.typ, Data: data})
		}
	}
	return s, nil
}

// Restore puts s back. An image wins over text, and text is only written
// when the snapshot holds text or nothing at all.
func (c *SystemClipboard) Restore(s Snapshot) error {
	if err := c.ready(); err != nil {
		return err
	}
	if img, ok := s.entry(TypeImage); ok {
		c.write(clipboard.FmtImage, img.Data)
		return nil
	}
	text, _ := s.entry(TypeText)
	c.write(clipboard.FmtText, text.Data)
	return nil
}

func (c *SystemClipboard) SetText(text string) error {
	if err := c.ready(); err != nil {
		return err
	}
	c.write(clipboard.FmtText, []byte(text))
	return nil
}

// Paster synthesizes the platform paste gesture.
type Paster interface {
	Paste() error
}

// RobotPaster taps Keys[0] with the remaining keys held as modifiers, e.g.
// ["v", "cmd"].
type RobotPaster struct {
	Keys []string
}

func (p RobotPaster) Paste() error {
	if len(p.Keys) == 0 {
		return fmt.Errorf("%w: no paste keys configured", ErrPasteFailed)
	}
	mods := make([]interface{}, 0, len(p.Keys)-1)
	for _, k := range p.Keys[1:] {
		mods = append(mods, k)
	}
	if err := robotgo.KeyTap(p.Keys[0], mods...); err != nil {
		return fmt.Errorf("%w: key tap %v: %v", ErrPasteFailed, p.Keys, err)
	}
	return nil
}

// PasterFunc adapts a function to Paster.
type PasterFunc func() error

func (f PasterFunc) Paste() error { return f() }
