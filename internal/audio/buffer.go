// Package audio captures microphone input as 16-bit PCM and frames it as a
// self-describing WAV container.
package audio

import (
	"encoding/binary"
	"time"
)

// Format describes interleaved signed little-endian PCM.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// DefaultFormat is what the transcription backend expects.
var DefaultFormat = Format{SampleRate: 16000, Channels: 1, BitDepth: 16}

// BytesPerFrame returns the size of one frame (one sample per channel).
func (f Format) BytesPerFrame() int {
	return f.Channels * f.BitDepth / 8
}

// BytesFor returns the size of d worth of whole frames.
func (f Format) BytesFor(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	frames := int(d * time.Duration(f.SampleRate) / time.Second)
	return frames * f.BytesPerFrame()
}

// Buffer holds one recording's raw samples.
type Buffer struct {
	Format    Format
	Data      []byte // interleaved s16le
	StartedAt time.Time
	// Truncated is set when the recording ran past the recorder's maximum
	// duration; Data holds the beginning of it.
	Truncated bool
}

// Frames returns the number of complete frames in the buffer.
func (b *Buffer) Frames() int {
	bpf := b.Format.BytesPerFrame()
	if bpf == 0 {
		return 0
	}
	return len(b.Data) / bpf
}

// Duration returns the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.Format.SampleRate == 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.Format.SampleRate)
}

// Samples decodes the 16-bit data into ints, the representation go-audio uses.
func (b *Buffer) Samples() []int {
	n := len(b.Data) / 2
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = int(int16(binary.LittleEndian.Uint16(b.Data[i*2:])))
	}
	return out
}

// samplesToBytes is the inverse of Samples.
func samplesToBytes(samples []int) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s)))
	}
	return out
}
