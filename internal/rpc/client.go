package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// Kind classifies a transcription failure.
type Kind int

const (
	KindConnect Kind = iota + 1
	KindWrite
	KindFrame
	KindDecode
	KindBackend
)

func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindWrite:
		return "write"
	case KindFrame:
		return "malformed frame"
	case KindDecode:
		return "decode"
	case KindBackend:
		return "backend"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is returned by Client.Transcribe for every failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// Endpointer resolves the socket path to dial, starting the backend if it
// is not already serving.
type Endpointer interface {
	Endpoint(ctx context.Context) (string, error)
}

// StaticEndpoint is an Endpointer for an already running backend.
type StaticEndpoint string

func (s StaticEndpoint) Endpoint(context.Context) (string, error) { return string(s), nil }

// Client sends one request per connection.
type Client struct {
	ep      Endpointer
	timeout time.Duration
	dialer  net.Dialer
}

// NewClient creates a client. timeout bounds the whole exchange; zero means
// the caller's context is the only limit.
func NewClient(ep Endpointer, timeout time.Duration) *Client {
	return &Client{ep: ep, timeout: timeout}
}

// Transcribe sends wav to the backend and returns the recognized text. An
// empty string with a nil error means the backend heard nothing.
func (c *Client) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	path, err := c.ep.Endpoint(ctx)
	if err != nil {
		return "", &Error{Kind: KindConnect, Err: err}
	}

	conn, err := c.dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return "", &Error{Kind: KindConnect, Err: err}
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	// unblock I/O if ctx is cancelled without a deadline
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	start := time.Now()
	if err := WriteFrame(conn, wav); err != nil {
		return "", &Error{Kind: KindWrite, Err: ctxErr(ctx, err)}
	}

	payload, err := ReadFrame(conn)
	if err != nil {
		return "", &Error{Kind: KindFrame, Err: ctxErr(ctx, err)}
	}

	resp, err := DecodeResponse(payload)
	if err != nil {
		return "", &Error{Kind: KindDecode, Err: err}
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "unspecified failure"
		}
		return "", &Error{Kind: KindBackend, Err: errors.New(msg)}
	}

	slog.Debug("[RPC] transcribed", "bytes", len(wav), "chars", len(resp.Text), "elapsed", time.Since(start))
	return resp.Text, nil
}

// ctxErr prefers the context's error over the I/O error it caused.
func ctxErr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return fmt.Errorf("%w (%v)", cerr, err)
	}
	return err
}
