package rpc

import (
	"context"
	"errors"
	"log/slog"
	"net"
)

// HandlerFunc answers one request payload.
type HandlerFunc func(req []byte) Response

// Serve accepts connections on ln and answers one framed request per
// connection, mirroring the backend's side of the exchange. It returns when
// ctx is cancelled or ln is closed.
func Serve(ctx context.Context, ln net.Listener, h HandlerFunc) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go serveConn(conn, h)
	}
}

func serveConn(conn net.Conn, h HandlerFunc) {
	defer conn.Close()

	req, err := ReadFrame(conn)
	if err != nil {
		// bare connect, used as a liveness probe
		return
	}
	payload, err := EncodeResponse(h(req))
	if err != nil {
		slog.Warn("[RPC] encoding response", "error", err)
		return
	}
	if err := WriteFrame(conn, payload); err != nil {
		slog.Debug("[RPC] writing response", "error", err)
	}
}
