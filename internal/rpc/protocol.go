// Package rpc implements the transcription request/response exchange with
// the backend over a stream socket.
//
// Every message in either direction is a 4-byte unsigned big-endian length
// followed by exactly that many payload bytes. The request payload is a WAV
// container; the response payload is a UTF-8 JSON object:
//
//	{"success": true,  "text": "..."}
//	{"success": false, "error": "..."}
package rpc

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// MaxFrameSize bounds a single frame. Thirty minutes of 16 kHz mono audio,
// the longest recording the relay allows, is about 55 MiB.
const MaxFrameSize = 64 << 20

// ErrFrameTooLarge is returned when a frame header exceeds MaxFrameSize.
var ErrFrameTooLarge = errors.New("rpc: frame too large")

// WriteFrame writes one length-prefixed frame.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed frame. A stream that ends inside the
// header or the payload yields io.ErrUnexpectedEOF; one that ends before any
// header byte yields io.EOF.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// Response is the decoded backend reply.
type Response struct {
	Success bool   `json:"success"`
	Text    string `json:"text,omitempty"`
	Error   string `json:"error,omitempty"`
}

type wireResponse struct {
	Success *bool   `json:"success"`
	Text    *string `json:"text"`
	Error   *string `json:"error"`
}

// DecodeResponse parses a response payload. The success key is required;
// a successful reply must carry text (possibly empty).
func DecodeResponse(payload []byte) (Response, error) {
	// json.Unmarshal would quietly turn bad bytes into U+FFFD.
	if !utf8.Valid(payload) {
		return Response{}, errors.New("rpc: decode response: payload is not valid UTF-8")
	}
	var w wireResponse
	if err := json.Unmarshal(payload, &w); err != nil {
		return Response{}, fmt.Errorf("rpc: decode response: %w", err)
	}
	if w.Success == nil {
		return Response{}, errors.New("rpc: decode response: missing \"success\"")
	}
	resp := Response{Success: *w.Success}
	if resp.Success {
		if w.Text == nil {
			return Response{}, errors.New("rpc: decode response: success without \"text\"")
		}
		resp.Text = *w.Text
		return resp, nil
	}
	if w.Error != nil {
		resp.Error = *w.Error
	}
	return resp, nil
}

// EncodeResponse is the inverse of DecodeResponse.
func EncodeResponse(resp Response) ([]byte, error) {
	if resp.Success {
		return json.Marshal(struct {
			Success bool   `json:"success"`
			Text    string `json:"text"`
		}{true, resp.Text})
	}
	return json.Marshal(struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}{false, resp.Error})
}
