package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
)

// Writer forwards subprocess output to slog, one log record per line.
// Writes rarely align with line boundaries, so partial lines are buffered
// until their newline arrives; Flush emits any trailing unterminated line.
// Safe for use as both stdout and stderr of the same command.
type Writer struct {
	logger *slog.Logger
	msg    string

	mu  sync.Mutex
	buf bytes.Buffer
}

// NewWriter constructs a Writer that logs each line under msg at info level.
func NewWriter(logger *slog.Logger, msg string) *Writer {
	return &Writer{logger: logger, msg: msg}
}

// Write buffers p and logs every completed line in it.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := string(w.buf.Next(i + 1))
		w.emit(line)
	}
	return len(p), nil
}

// Flush logs whatever is left in the buffer as a final line.
func (w *Writer) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.emit(w.buf.String())
	w.buf.Reset()
}

func (w *Writer) emit(line string) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" || w.logger == nil {
		return
	}
	w.logger.Info(w.msg, "line", line)
}
