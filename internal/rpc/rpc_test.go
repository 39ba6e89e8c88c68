package rpc

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sockPath returns a short socket path; t.TempDir can exceed sun_path limits
// on some platforms.
func sockPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "rpc")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "s")
}

// rawServer runs fn for each accepted connection.
func rawServer(t *testing.T, fn func(net.Conn)) string {
	t.Helper()
	path := sockPath(t)
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				fn(c)
			}()
		}
	}()
	return path
}

func serveHandler(t *testing.T, h HandlerFunc) string {
	t.Helper()
	path := sockPath(t)
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		Serve(ctx, ln, h)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return path
}

func TestFrameRoundTrip(t *testing.T) {
	for _, payload := range [][]byte{nil, {0x00}, bytes.Repeat([]byte("ab"), 70000)} {
		var buf bytes.Buffer
		require.NoError(t, WriteFrame(&buf, payload))
		assert.Equal(t, uint32(len(payload)), binary.BigEndian.Uint32(buf.Bytes()[:4]))

		got, err := ReadFrame(&buf)
		require.NoError(t, err)
		assert.Equal(t, len(payload), len(got))
		assert.True(t, bytes.Equal(payload, got))
	}
}

func TestReadFrameErrors(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want error
	}{
		{"empty stream", nil, io.EOF},
		{"short header", []byte{0, 0}, io.ErrUnexpectedEOF},
		{"short payload", []byte{0, 0, 0, 5, 'a', 'b'}, io.ErrUnexpectedEOF},
		{"oversized", []byte{0xff, 0xff, 0xff, 0xff}, ErrFrameTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFrame(bytes.NewReader(tt.in))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Response
		wantErr bool
	}{
		{"success", `{"success":true,"text":"hello world"}`, Response{Success: true, Text: "hello world"}, false},
		{"success empty text", `{"success":true,"text":""}`, Response{Success: true}, false},
		{"failure", `{"success":false,"error":"model not loaded"}`, Response{Error: "model not loaded"}, false},
		{"failure without message", `{"success":false}`, Response{}, false},
		{"unicode", `{"success":true,"text":"café ☕"}`, Response{Success: true, Text: "café ☕"}, false},
		{"missing success", `{"text":"hi"}`, Response{}, true},
		{"success missing text", `{"success":true}`, Response{}, true},
		{"wrong type", `{"success":"yes"}`, Response{}, true},
		{"not json", `hello`, Response{}, true},
		{"invalid utf-8 text", "{\"success\":true,\"text\":\"a\xffb\"}", Response{}, true},
		{"invalid utf-8 error", "{\"success\":false,\"error\":\"\xc3\"}", Response{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeResponse([]byte(tt.in))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeResponse(t *testing.T) {
	b, err := EncodeResponse(Response{Success: true, Text: ""})
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"text":""}`, string(b))

	b, err = EncodeResponse(Response{Error: "boom"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"error":"boom"}`, string(b))
}

func TestTranscribeSuccess(t *testing.T) {
	var got []byte
	path := serveHandler(t, func(req []byte) Response {
		got = req
		return Response{Success: true, Text: "hello"}
	})

	c := NewClient(StaticEndpoint(path), 2*time.Second)
	text, err := c.Transcribe(context.Background(), []byte("RIFF....WAVE"))
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Equal(t, []byte("RIFF....WAVE"), got)
}

func TestTranscribeEmptyAudio(t *testing.T) {
	path := serveHandler(t, func(req []byte) Response {
		if len(req) == 0 {
			return Response{Success: true, Text: ""}
		}
		return Response{Error: "unexpected"}
	})

	text, err := NewClient(StaticEndpoint(path), time.Second).Transcribe(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestTranscribeBackendFailure(t *testing.T) {
	path := serveHandler(t, func([]byte) Response {
		return Response{Error: "CUDA out of memory"}
	})

	_, err := NewClient(StaticEndpoint(path), time.Second).Transcribe(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindBackend))
	assert.Contains(t, err.Error(), "CUDA out of memory")
}

func TestTranscribeConnectFailure(t *testing.T) {
	path := sockPath(t) // nothing listening

	_, err := NewClient(StaticEndpoint(path), time.Second).Transcribe(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindConnect))
}

type failingEndpoint struct{ err error }

func (f failingEndpoint) Endpoint(context.Context) (string, error) { return "", f.err }

func TestTranscribeEndpointFailure(t *testing.T) {
	boom := errors.New("backend did not start")
	_, err := NewClient(failingEndpoint{boom}, time.Second).Transcribe(context.Background(), []byte("x"))
	assert.True(t, IsKind(err, KindConnect))
	assert.ErrorIs(t, err, boom)
}

func TestTranscribeMalformedFrame(t *testing.T) {
	path := rawServer(t, func(c net.Conn) {
		ReadFrame(c)
		// announce 10 bytes, send 3, hang up
		c.Write([]byte{0, 0, 0, 10, 'a', 'b', 'c'})
	})

	_, err := NewClient(StaticEndpoint(path), time.Second).Transcribe(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindFrame))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestTranscribeClosedWithoutReply(t *testing.T) {
	path := rawServer(t, func(c net.Conn) {
		ReadFrame(c)
	})

	_, err := NewClient(StaticEndpoint(path), time.Second).Transcribe(context.Background(), []byte("x"))
	assert.True(t, IsKind(err, KindFrame))
}

func TestTranscribeBadJSON(t *testing.T) {
	path := rawServer(t, func(c net.Conn) {
		ReadFrame(c)
		WriteFrame(c, []byte(`{"success":`))
	})

	_, err := NewClient(StaticEndpoint(path), time.Second).Transcribe(context.Background(), []byte("x"))
	assert.True(t, IsKind(err, KindDecode))
}

func TestTranscribeInvalidUTF8(t *testing.T) {
	path := rawServer(t, func(c net.Conn) {
		ReadFrame(c)
		WriteFrame(c, []byte("{\"success\":true,\"text\":\"a\xffb\"}"))
	})

	text, err := NewClient(StaticEndpoint(path), time.Second).Transcribe(context.Background(), []byte("x"))
	assert.True(t, IsKind(err, KindDecode))
	assert.Empty(t, text)
}

func TestTranscribeContextCancel(t *testing.T) {
	release := make(chan struct{})
	path := rawServer(t, func(c net.Conn) {
		ReadFrame(c)
		<-release
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err := NewClient(StaticEndpoint(path), 0).Transcribe(ctx, []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "connect", KindConnect.String())
	assert.Equal(t, "malformed frame", KindFrame.String())
	assert.Equal(t, "Kind(99)", Kind(99).String())
}
