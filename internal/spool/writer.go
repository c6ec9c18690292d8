package spool

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/wiffzack/printspool/internal/core"
)

// WriterSink copies artifact bytes to w, one artifact at a time.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Write(_ context.Context, a *core.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.w.Write(a.Data); err != nil {
		return fmt.Errorf("write preview: %w: %w", core.ErrIO, err)
	}
	return nil
}
