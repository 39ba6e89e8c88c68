package audio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeWAVHeader(t *testing.T) {
	b := &Buffer{Format: DefaultFormat, Data: []byte{0x01, 0x00, 0x02, 0x00}}
	out, err := EncodeWAV(b)
	require.NoError(t, err)
	require.Len(t, out, 44+4)

	assert.Equal(t, "RIFF", string(out[0:4]))
	assert.Equal(t, "WAVE", string(out[8:12]))
	assert.Equal(t, "fmt ", string(out[12:16]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(out[20:22]), "PCM")
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(out[22:24]), "channels")
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(out[24:28]), "sample rate")
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(out[34:36]), "bit depth")
	assert.Equal(t, "data", string(out[36:40]))
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(out[40:44]), "data size")
	assert.Equal(t, []byte{0x01, 0x00, 0x02, 0x00}, out[44:])
}

func TestWAVRoundTrip(t *testing.T) {
	samples := []int{0, 1, -1, 32767, -32768, 1234, -4321}
	in := &Buffer{Format: DefaultFormat, Data: samplesToBytes(samples)}

	out, err := EncodeWAV(in)
	require.NoError(t, err)

	got, err := DecodeWAV(out)
	require.NoError(t, err)
	assert.Equal(t, DefaultFormat, got.Format)
	assert.Equal(t, in.Data, got.Data)
	assert.Equal(t, samples, got.Samples())
}

func TestWAVRoundTripStereo(t *testing.T) {
	f := Format{SampleRate: 44100, Channels: 2, BitDepth: 16}
	in := &Buffer{Format: f, Data: samplesToBytes([]int{10, -10, 20, -20})}

	out, err := EncodeWAV(in)
	require.NoError(t, err)
	got, err := DecodeWAV(out)
	require.NoError(t, err)
	assert.Equal(t, f, got.Format)
	assert.Equal(t, in.Data, got.Data)
	assert.Equal(t, 2, got.Frames())
}

func TestEncodeWAVEmpty(t *testing.T) {
	out, err := EncodeWAV(&Buffer{Format: DefaultFormat})
	require.NoError(t, err)
	assert.Len(t, out, 44)
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(out[40:44]))

	got, err := DecodeWAV(out)
	require.NoError(t, err)
	assert.Equal(t, DefaultFormat, got.Format)
	assert.Empty(t, got.Data)
}

func TestEncodeWAVRejectsBadFormat(t *testing.T) {
	_, err := EncodeWAV(&Buffer{Format: Format{SampleRate: 16000, Channels: 1, BitDepth: 8}})
	assert.Error(t, err)
	_, err = EncodeWAV(&Buffer{Format: Format{SampleRate: 16000, BitDepth: 16}})
	assert.Error(t, err)
}

func TestDecodeWAVInvalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte("definitely not a wav file")},
		{"riff without fmt", []byte("RIFF\x04\x00\x00\x00WAVE")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeWAV(tt.data)
			assert.ErrorIs(t, err, ErrInvalidContainer)
		})
	}
}
