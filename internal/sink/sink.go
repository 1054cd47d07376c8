// Package sink persists telemetry records to an append-only flat file.
package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"botcheck/internal/data"
)

// ErrClosed is returned by Append once the sink has been closed.
var ErrClosed = errors.New("sink: closed")

// Sink accepts records for persistence.
type Sink interface {
	Append(ctx context.Context, rec data.Record) error
}

// FileSink appends one CSV line per record to a file. The file is created if
// absent and is never truncated. Appends from concurrent requests are
// serialized so lines never interleave.
type FileSink struct {
	path string

	mu     sync.Mutex
	f      *os.File
	closed bool
}

// OpenFile opens (or creates) the sink file at path.
func OpenFile(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open sink %s: %w", path, err)
	}
	return &FileSink{path: path, f: f}, nil
}

// Append writes rec as a single line. The write is not interrupted by ctx
// cancellation.
func (s *FileSink) Append(_ context.Context, rec data.Record) error {
	line := rec.CSVLine()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, err := s.f.WriteString(line); err != nil {
		return fmt.Errorf("append to %s: %w", s.path, err)
	}
	return nil
}

// Close releases the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.f.Close()
}
