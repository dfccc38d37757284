package log

import (
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// FileLogger writes trace events to a file in CBOR format.
// It is safe for concurrent use from multiple goroutines.
type FileLogger struct {
	file    *os.File
	writer  *countingWriter
	encoder *cbor.Encoder
	maxSize int64
	dropped uint64
	mu      sync.Mutex
	closed  bool
}

// countingWriter tracks how many bytes have gone to the file so the
// size cap can be enforced without a Stat per event.
type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// NewFileLogger creates a new FileLogger that writes to the specified
// path with no size cap. If the file exists, new events are appended.
// The file is created with permissions 0644 if it doesn't exist.
func NewFileLogger(path string) (*FileLogger, error) {
	return NewFileLoggerWithLimit(path, 0)
}

// NewFileLoggerWithLimit is NewFileLogger with a size cap in bytes.
// Once the file reaches maxSize, further events are counted as dropped
// instead of written. A long-running client on a storage-constrained
// device should always set a cap. maxSize 0 means unlimited.
func NewFileLoggerWithLimit(path string, maxSize int64) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	// Appending to an existing trace counts toward the cap.
	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	cw := &countingWriter{w: f, n: size}
	return &FileLogger{
		file:    f,
		writer:  cw,
		encoder: NewEncoder(cw),
		maxSize: maxSize,
	}, nil
}

// Log writes an event to the trace file.
// This method is safe for concurrent use.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	if l.maxSize > 0 && l.writer.n >= l.maxSize {
		l.dropped++
		return
	}

	// Ignore encoding errors - tracing must not disrupt the feed
	_ = l.encoder.Encode(event)
}

// Dropped returns the number of events discarded because the size cap
// was reached.
func (l *FileLogger) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Close closes the trace file.
// It is safe to call Close multiple times.
// After Close is called, subsequent Log calls are silently ignored.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	l.closed = true
	return l.file.Close()
}

// Compile-time interface satisfaction check.
var _ Logger = (*FileLogger)(nil)
