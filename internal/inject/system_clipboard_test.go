package inject

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.design/x/clipboard"
)

// fakePasteboard behaves like the native clipboard: one owner at a time,
// so every write drops the other formats.
type fakePasteboard struct {
	data   map[clipboard.Format][]byte
	writes []clipboard.Format
}

func (f *fakePasteboard) read(format clipboard.Format) []byte {
	return bytes.Clone(f.data[format])
}

func (f *fakePasteboard) write(format clipboard.Format, buf []byte) <-chan struct{} {
	f.writes = append(f.writes, format)
	f.data = map[clipboard.Format][]byte{format: bytes.Clone(buf)}
	return make(chan struct{})
}

func newFakeSystemClipboard(pb *fakePasteboard, initErr error) *SystemClipboard {
	return &SystemClipboard{
		init:  func() error { return initErr },
		read:  pb.read,
		write: pb.write,
	}
}

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0x00, 0xff}

func TestSystemClipboardImageSurvivesPaste(t *testing.T) {
	pb := &fakePasteboard{data: map[clipboard.Format][]byte{clipboard.FmtImage: pngBytes}}
	cb := newFakeSystemClipboard(pb, nil)

	var pasted []string
	inj := NewClipboardInjector(cb, PasterFunc(func() error {
		pasted = append(pasted, string(pb.data[clipboard.FmtText]))
		return nil
	}), 0, 0)

	require.NoError(t, inj.Inject("hello"))
	assert.Equal(t, []string{"hello"}, pasted)
	assert.Equal(t, pngBytes, pb.data[clipboard.FmtImage], "image restored byte for byte")
	assert.NotContains(t, pb.data, clipboard.FmtText, "no empty text written over the image")
	assert.Equal(t, []clipboard.Format{clipboard.FmtText, clipboard.FmtImage}, pb.writes)
}

func TestSystemClipboardSnapshot(t *testing.T) {
	tests := []struct {
		name string
		data map[clipboard.Format][]byte
		want []Entry
	}{
		{"empty", nil, nil},
		{"text", map[clipboard.Format][]byte{clipboard.FmtText: []byte("foo")},
			[]Entry{{Type: TypeText, Data: []byte("foo")}}},
		{"image", map[clipboard.Format][]byte{clipboard.FmtImage: pngBytes},
			[]Entry{{Type: TypeImage, Data: pngBytes}}},
		{"both", map[clipboard.Format][]byte{clipboard.FmtText: []byte("foo"), clipboard.FmtImage: pngBytes},
			[]Entry{{Type: TypeText, Data: []byte("foo")}, {Type: TypeImage, Data: pngBytes}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := newFakeSystemClipboard(&fakePasteboard{data: tt.data}, nil)
			snap, err := cb.Snapshot()
			require.NoError(t, err)
			assert.Equal(t, tt.want, snap.Entries)
		})
	}
}

func TestSystemClipboardRestore(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		pb := &fakePasteboard{}
		cb := newFakeSystemClipboard(pb, nil)
		require.NoError(t, cb.Restore(Snapshot{Entries: []Entry{{Type: TypeText, Data: []byte("foo")}}}))
		assert.Equal(t, []byte("foo"), pb.data[clipboard.FmtText])
	})

	t.Run("image wins over text", func(t *testing.T) {
		pb := &fakePasteboard{}
		cb := newFakeSystemClipboard(pb, nil)
		require.NoError(t, cb.Restore(Snapshot{Entries: []Entry{
			{Type: TypeText, Data: []byte("foo")},
			{Type: TypeImage, Data: pngBytes},
		}}))
		assert.Equal(t, []clipboard.Format{clipboard.FmtImage}, pb.writes)
		assert.Equal(t, pngBytes, pb.data[clipboard.FmtImage])
	})

	t.Run("empty clears text", func(t *testing.T) {
		pb := &fakePasteboard{data: map[clipboard.Format][]byte{clipboard.FmtText: []byte("hello")}}
		cb := newFakeSystemClipboard(pb, nil)
		require.NoError(t, cb.Restore(Snapshot{}))
		assert.Empty(t, pb.data[clipboard.FmtText])
	})
}

func TestSystemClipboardUnavailable(t *testing.T) {
	pb := &fakePasteboard{}
	calls := 0
	cb := &SystemClipboard{
		init:  func() error { calls++; return errors.New("no display") },
		read:  pb.read,
		write: pb.write,
	}

	_, err := cb.Snapshot()
	assert.ErrorIs(t, err, ErrClipboardUnavailable)
	assert.ErrorIs(t, cb.SetText("x"), ErrClipboardUnavailable)
	assert.ErrorIs(t, cb.Restore(Snapshot{}), ErrClipboardUnavailable)
	assert.Equal(t, 1, calls, "backend initialized once")
	assert.Empty(t, pb.writes)
}
