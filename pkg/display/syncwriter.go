package display

import (
	"io"
	"sync"
)

// SyncWriter lets several router handlers share one output. Each handler
// emits a notice in a single Write, so serializing writes keeps notices
// whole.
type SyncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewSyncWriter(w io.Writer) *SyncWriter {
	return &SyncWriter{w: w}
}

func (s *SyncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
