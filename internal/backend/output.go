package backend

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
)

// lineLogger is an io.Writer that emits each complete line written to it as
// a log record. Used for the backend's stdout and stderr.
type lineLogger struct {
	stream string
	level  slog.Level

	mu   sync.Mutex
	part []byte
}

const maxLogLine = 4096

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.part = append(l.part, p...)
	for {
		i := bytes.IndexByte(l.part, '\n')
		if i < 0 {
			break
		}
		l.emit(l.part[:i])
		l.part = l.part[i+1:]
	}
	if len(l.part) > maxLogLine {
		l.emit(l.part)
		l.part = nil
	}
	return len(p), nil
}

// Flush logs any trailing partial line.
func (l *lineLogger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.part) > 0 {
		l.emit(l.part)
		l.part = nil
	}
}

func (l *lineLogger) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 {
		return
	}
	slog.Log(context.Background(), l.level, "[Backend] "+l.stream, "line", string(line))
}
