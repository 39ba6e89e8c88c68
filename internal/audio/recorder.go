package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrAlreadyRecording is returned by Start while a capture is in progress.
var ErrAlreadyRecording = errors.New("audio: already recording")

// DefaultMaxDuration bounds a recording unless SetMaxDuration says otherwise.
const DefaultMaxDuration = 10 * time.Minute

// Recorder captures audio into an s16le buffer. At most one capture is in
// flight; the device is held only between Start and Stop/Cancel.
type Recorder struct {
	mic    Microphone
	format Format
	now    func() time.Time

	mu        sync.Mutex
	maxBytes  int
	stream    Stream
	buf       []byte
	startedAt time.Time
	recording bool
	truncated bool
}

// NewRecorder creates a recorder that opens mic in the given format. Only
// 16-bit samples are supported.
func NewRecorder(mic Microphone, f Format) (*Recorder, error) {
	if f.BitDepth == 0 {
		f.BitDepth = 16
	}
	if f.BitDepth != 16 {
		return nil, fmt.Errorf("audio: unsupported bit depth %d", f.BitDepth)
	}
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return nil, fmt.Errorf("audio: invalid format %+v", f)
	}
	return &Recorder{mic: mic, format: f, now: time.Now, maxBytes: f.BytesFor(DefaultMaxDuration)}, nil
}

// SetMaxDuration caps how much audio one recording keeps. Samples past the
// cap are dropped and the buffer is marked Truncated; the device stays open
// until Stop or Cancel. A non-positive d restores the default.
func (r *Recorder) SetMaxDuration(d time.Duration) {
	if d <= 0 {
		d = DefaultMaxDuration
	}
	r.mu.Lock()
	r.maxBytes = r.format.BytesFor(d)
	r.mu.Unlock()
}

// Format returns the capture format.
func (r *Recorder) Format() Format {
	return r.format
}

// Start acquires the capture device and begins buffering samples. If the
// device cannot be opened nothing is held and the error wraps
// ErrDeviceUnavailable or ErrPermissionDenied where the cause is known.
func (r *Recorder) Start() error {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return ErrAlreadyRecording
	}
	r.buf = r.buf[:0] // reset buffer but keep capacity
	r.recording = true
	r.truncated = false
	r.startedAt = r.now()
	r.mu.Unlock()

	stream, err := r.mic.Open(r.format, r.onData)
	if err != nil {
		r.mu.Lock()
		r.recording = false
		r.mu.Unlock()
		return fmt.Errorf("audio: start capture: %w", err)
	}

	r.mu.Lock()
	if !r.recording {
		// stopped or cancelled while the device was opening
		r.mu.Unlock()
		closeStream(stream)
		return nil
	}
	r.stream = stream
	r.mu.Unlock()
	return nil
}

// Stop releases the device and returns everything captured since Start.
// It returns nil when no capture is in progress.
func (r *Recorder) Stop() *Buffer {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return nil
	}
	stream := r.detach()
	data := make([]byte, len(r.buf))
	copy(data, r.buf)
	buf := &Buffer{Format: r.format, Data: data, StartedAt: r.startedAt, Truncated: r.truncated}
	r.mu.Unlock()

	closeStream(stream)
	return buf
}

// Cancel releases the device and discards the samples.
func (r *Recorder) Cancel() {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return
	}
	stream := r.detach()
	r.buf = r.buf[:0]
	r.mu.Unlock()

	closeStream(stream)
}

// IsRecording returns whether the recorder is currently capturing audio.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Close stops any capture in progress. The Microphone is owned by the
// caller and is not closed.
func (r *Recorder) Close() error {
	r.mu.Lock()
	stream := r.detach()
	r.mu.Unlock()

	closeStream(stream)
	return nil
}

// detach marks the recorder idle and hands back the open stream. The stream
// must be closed without mu held: closing waits for the capture callback,
// which takes mu.
func (r *Recorder) detach() Stream {
	stream := r.stream
	r.stream = nil
	r.recording = false
	return stream
}

func closeStream(s Stream) {
	if s == nil {
		return
	}
	if err := s.Close(); err != nil {
		slog.Warn("[Audio] closing capture stream", "error", err)
	}
}

// onData is the capture callback.
func (r *Recorder) onData(pcm []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return
	}
	if room := r.maxBytes - len(r.buf); len(pcm) > room {
		room -= room % r.format.BytesPerFrame()
		pcm = pcm[:max(room, 0)]
		if !r.truncated {
			r.truncated = true
			slog.Warn("[Audio] maximum recording length reached, dropping further audio",
				"max", time.Duration(r.maxBytes/r.format.BytesPerFrame())*time.Second/time.Duration(r.format.SampleRate))
		}
	}
	r.buf = append(r.buf, pcm...)
}
