package logging

import (
	"os"
	"sync"
)

// FileSink appends events to a file as a CBOR stream, one event per
// call. Safe for concurrent use.
type FileSink struct {
	file    *os.File
	encoder cborEncoder
	mu      sync.Mutex
	closed  bool
}

type cborEncoder interface {
	Encode(v any) error
}

// NewFileSink opens (creating if necessary) path for append and returns
// a FileSink writing to it.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileSink{file: f, encoder: NewEventEncoder(f)}, nil
}

// Log writes event to the file. Encoding errors are swallowed: a
// logging failure must never disrupt the supervisor.
func (s *FileSink) Log(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	_ = s.encoder.Encode(event)
}

// Close closes the underlying file. Safe to call more than once;
// subsequent Log calls after Close are silently ignored.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}

var _ Logger = (*FileSink)(nil)
