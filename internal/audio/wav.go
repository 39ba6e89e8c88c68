package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
)

// ErrInvalidContainer is returned by DecodeWAV for input that is not a
// 16-bit PCM WAV file.
var ErrInvalidContainer = errors.New("audio: invalid wav container")

// wavFormatPCM is the WAVE_FORMAT_PCM tag.
const wavFormatPCM = 1

// EncodeWAV frames the buffer as a RIFF/WAVE container: a fixed-size
// little-endian header stating sample rate, channel count and bit depth,
// followed by the raw samples. An empty buffer yields a valid header with
// an empty data chunk.
func EncodeWAV(b *Buffer) ([]byte, error) {
	f := b.Format
	if f.BitDepth != 16 {
		return nil, fmt.Errorf("audio: encode wav: unsupported bit depth %d", f.BitDepth)
	}
	if f.Channels <= 0 || f.SampleRate <= 0 {
		return nil, fmt.Errorf("audio: encode wav: invalid format %+v", f)
	}

	// the encoder seeks back to patch chunk sizes on Close
	ws := &writerseeker.WriterSeeker{}
	enc := wav.NewEncoder(ws, f.SampleRate, f.BitDepth, f.Channels, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
		Data:           b.Samples(),
		SourceBitDepth: f.BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("audio: close wav encoder: %w", err)
	}
	out, err := io.ReadAll(ws.BytesReader())
	if err != nil {
		return nil, fmt.Errorf("audio: read wav: %w", err)
	}
	return out, nil
}

// DecodeWAV parses a container produced by EncodeWAV (or any 16-bit PCM
// WAV file) back into a Buffer.
func DecodeWAV(data []byte) (*Buffer, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContainer, err)
	}
	if dec.NumChans == 0 || dec.SampleRate == 0 {
		return nil, fmt.Errorf("%w: missing fmt chunk", ErrInvalidContainer)
	}
	if dec.WavAudioFormat != wavFormatPCM || dec.BitDepth != 16 {
		return nil, fmt.Errorf("%w: want 16-bit PCM, got format %d with %d bits",
			ErrInvalidContainer, dec.WavAudioFormat, dec.BitDepth)
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContainer, err)
	}

	return &Buffer{
		Format: Format{
			SampleRate: int(dec.SampleRate),
			Channels:   int(dec.NumChans),
			BitDepth:   int(dec.BitDepth),
		},
		Data: samplesToBytes(pcm.Data),
	}, nil
}
