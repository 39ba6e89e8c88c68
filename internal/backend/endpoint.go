package backend

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"time"
)

// EndpointState describes what is at the endpoint path.
type EndpointState int

const (
	EndpointMissing EndpointState = iota
	// EndpointStale is a socket file nobody is accepting on, usually left
	// behind by a crashed backend.
	EndpointStale
	EndpointReachable
)

func (s EndpointState) String() string {
	switch s {
	case EndpointMissing:
		return "missing"
	case EndpointStale:
		return "stale"
	case EndpointReachable:
		return "reachable"
	default:
		return fmt.Sprintf("EndpointState(%d)", int(s))
	}
}

// Probe test-connects to the endpoint and immediately hangs up.
func Probe(ctx context.Context, path string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Inspect classifies the endpoint path.
func Inspect(ctx context.Context, path string, timeout time.Duration) (EndpointState, error) {
	if _, err := os.Lstat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return EndpointMissing, nil
		}
		return EndpointMissing, err
	}
	if err := Probe(ctx, path, timeout); err != nil {
		return EndpointStale, nil
	}
	return EndpointReachable, nil
}

// CleanStaleEndpoint removes a socket file that exists but does not accept
// connections. It reports whether something was removed. A reachable
// endpoint is left alone, and a path that is not a socket is an error.
func CleanStaleEndpoint(ctx context.Context, path string, timeout time.Duration) (bool, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("backend: stat endpoint: %w", err)
	}
	if info.Mode().Type() != fs.ModeSocket {
		return false, fmt.Errorf("backend: endpoint %s exists and is not a socket", path)
	}
	if err := Probe(ctx, path, timeout); err == nil {
		return false, nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("backend: remove stale endpoint: %w", err)
	}
	slog.Info("[Backend] removed stale endpoint", "path", path)
	return true, nil
}

// removeEndpoint deletes the endpoint artifact if it is a socket.
func removeEndpoint(path string) {
	info, err := os.Lstat(path)
	if err != nil || info.Mode().Type() != fs.ModeSocket {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("[Backend] removing endpoint", "path", path, "error", err)
	}
}
