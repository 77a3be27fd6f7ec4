package stream

import (
	"context"
	"io"
	"sync"
)

// Writer adapts a blocking io.Writer to a chunk-oriented consumer: a
// producer goroutine calls Write (typically io.Copy from an SDK download
// body) while the consumer pulls chunks with Next. The unbuffered hand-off
// gives natural backpressure; the producer blocks until the consumer has
// taken the previous chunk.
//
// Write and CloseWrite belong to the producer goroutine, Next to the
// consumer; Abort may be called from any goroutine.
type Writer struct {
	ch   chan []byte
	done chan struct{}

	mu      sync.Mutex
	aborted bool
	closed  bool
}

// NewWriter creates a Writer.
func NewWriter() *Writer {
	return &Writer{
		ch:   make(chan []byte),
		done: make(chan struct{}),
	}
}

// Write implements io.Writer. It blocks until the consumer picks up the
// chunk, and fails with ErrAborted once Abort has been called.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	if w.aborted {
		w.mu.Unlock()
		return 0, ErrAborted
	}
	if w.closed {
		w.mu.Unlock()
		return 0, ErrClosed
	}
	w.mu.Unlock()

	// The chunk outlives this call; the caller is free to reuse p.
	chunk := make([]byte, len(p))
	copy(chunk, p)

	select {
	case w.ch <- chunk:
		return len(p), nil
	case <-w.done:
		return 0, ErrAborted
	}
}

// Next returns the next chunk written by the producer. It returns io.EOF
// after CloseWrite, and ErrAborted after Abort.
func (w *Writer) Next(ctx context.Context) ([]byte, error) {
	select {
	case <-w.done:
		return nil, ErrAborted
	default:
	}

	select {
	case chunk, ok := <-w.ch:
		if !ok {
			return nil, io.EOF
		}
		return chunk, nil
	case <-w.done:
		return nil, ErrAborted
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CloseWrite signals end-of-stream to the consumer. Idempotent.
func (w *Writer) CloseWrite() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.aborted {
		return nil
	}
	w.closed = true
	close(w.ch)
	return nil
}

// Close implements io.Closer as an alias for CloseWrite.
func (w *Writer) Close() error {
	return w.CloseWrite()
}

// Abort unblocks both sides with ErrAborted. Safe to call multiple times
// and from any goroutine.
func (w *Writer) Abort() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.aborted {
		return
	}
	w.aborted = true
	close(w.done)
}
