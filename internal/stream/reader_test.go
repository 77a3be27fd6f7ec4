package stream

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

// chunksNext returns a NextFunc serving the given chunks in order, then io.EOF.
func chunksNext(chunks ...[]byte) NextFunc {
	i := 0
	return func(ctx context.Context) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if i >= len(chunks) {
			return nil, io.EOF
		}
		c := chunks[i]
		i++
		return c, nil
	}
}

func TestReader_ReadAll(t *testing.T) {
	tests := []struct {
		name   string
		chunks [][]byte
		want   string
	}{
		{
			name:   "single chunk",
			chunks: [][]byte{[]byte("hello")},
			want:   "hello",
		},
		{
			name:   "multiple chunks",
			chunks: [][]byte{[]byte("hello "), []byte("world")},
			want:   "hello world",
		},
		{
			name:   "empty chunks are skipped",
			chunks: [][]byte{[]byte("a"), {}, []byte("b")},
			want:   "ab",
		},
		{
			name:   "no chunks",
			chunks: nil,
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(context.Background(), chunksNext(tt.chunks...))
			defer r.Close()

			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("ReadAll() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("ReadAll() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReader_SmallBuffer(t *testing.T) {
	// A chunk larger than the read buffer must be served across several
	// Read calls without loss.
	r := NewReader(context.Background(), chunksNext([]byte("abcdefgh")))
	defer r.Close()

	buf := make([]byte, 3)
	var got []byte
	for {
		n, err := r.Read(buf)
		got = append(got, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
	}
	if string(got) != "abcdefgh" {
		t.Errorf("read %q, want %q", got, "abcdefgh")
	}
}

func TestReader_EOFIsSticky(t *testing.T) {
	r := NewReader(context.Background(), chunksNext([]byte("x")))
	defer r.Close()

	if _, err := io.ReadAll(r); err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if _, err := r.Read(make([]byte, 1)); err != io.EOF {
		t.Errorf("Read() after EOF error = %v, want io.EOF", err)
	}
}

func TestReader_AbortBeforeRead(t *testing.T) {
	r := NewReader(context.Background(), chunksNext([]byte("x")))
	defer r.Close()

	r.Abort()

	if _, err := r.Read(make([]byte, 8)); !errors.Is(err, ErrAborted) {
		t.Errorf("Read() after Abort error = %v, want ErrAborted", err)
	}
}

func TestReader_AbortDuringBlockedRead(t *testing.T) {
	// The producer never yields a chunk; Abort must unblock the read.
	blocked := func(ctx context.Context) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	r := NewReader(context.Background(), blocked)
	defer r.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := r.Read(make([]byte, 8))
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	r.Abort()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrAborted) {
			t.Errorf("Read() error = %v, want ErrAborted", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Read() did not return after Abort")
	}
}

func TestReader_CloseIsIdempotent(t *testing.T) {
	r := NewReader(context.Background(), chunksNext())
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if _, err := r.Read(make([]byte, 1)); !errors.Is(err, ErrClosed) {
		t.Errorf("Read() after Close error = %v, want ErrClosed", err)
	}
}

func TestReader_ProducerError(t *testing.T) {
	wantErr := errors.New("upstream failure")
	r := NewReader(context.Background(), func(ctx context.Context) ([]byte, error) {
		return nil, wantErr
	})
	defer r.Close()

	if _, err := r.Read(make([]byte, 8)); !errors.Is(err, wantErr) {
		t.Errorf("Read() error = %v, want %v", err, wantErr)
	}
}
