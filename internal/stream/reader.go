// Package stream bridges chunk-oriented producers and consumers with the
// blocking io interfaces the object-store SDKs expect.
package stream

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
)

var (
	// ErrAborted is returned by Read, Write and Next after Abort has been
	// called. It distinguishes a cancelled transfer from a naturally
	// finished one.
	ErrAborted = errors.New("stream aborted")

	// ErrClosed is returned when a stream is used after Close.
	ErrClosed = errors.New("stream closed")
)

// NextFunc produces the next chunk of a byte stream. It returns io.EOF once
// the stream is exhausted.
type NextFunc func(ctx context.Context) ([]byte, error)

// Reader adapts a chunk producer to a blocking io.Reader so that it can be
// handed to an SDK upload call. Chunks larger than the caller's buffer are
// retained across Read calls with an explicit position.
//
// Read and Close are driven by a single consumer goroutine; Abort may be
// called from any goroutine at any time.
type Reader struct {
	next   NextFunc
	ctx    context.Context
	cancel context.CancelFunc

	aborted atomic.Bool

	// Consumer-goroutine state.
	buf    []byte
	pos    int
	eof    bool
	closed bool
}

// NewReader creates a Reader pulling chunks from next. The given context
// bounds every chunk retrieval.
func NewReader(ctx context.Context, next NextFunc) *Reader {
	rctx, cancel := context.WithCancel(ctx)
	return &Reader{
		next:   next,
		ctx:    rctx,
		cancel: cancel,
	}
}

// Read implements io.Reader. It returns 0, io.EOF once the producer is
// exhausted, and ErrAborted if Abort was called before or during the read.
func (r *Reader) Read(p []byte) (int, error) {
	if r.aborted.Load() {
		return 0, ErrAborted
	}
	if r.pos < len(r.buf) {
		n := copy(p, r.buf[r.pos:])
		r.pos += n
		return n, nil
	}
	if r.eof {
		return 0, io.EOF
	}
	if r.closed {
		return 0, ErrClosed
	}

	for {
		chunk, err := r.next(r.ctx)
		if r.aborted.Load() {
			return 0, ErrAborted
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.eof = true
				return 0, io.EOF
			}
			return 0, err
		}
		if len(chunk) == 0 {
			continue
		}

		r.buf = chunk
		n := copy(p, chunk)
		r.pos = n
		return n, nil
	}
}

// Abort cancels any in-flight chunk retrieval and causes current and future
// reads to fail with ErrAborted. Safe to call multiple times and from any
// goroutine, before or after the read starts.
func (r *Reader) Abort() {
	r.aborted.Store(true)
	r.cancel()
}

// Close releases resources. It is idempotent and does not mark the stream
// aborted; a transfer that ended naturally closes silently.
func (r *Reader) Close() error {
	r.closed = true
	r.cancel()
	return nil
}
