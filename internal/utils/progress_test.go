package utils

import (
	"bytes"
	"io"
	"testing"
)

func TestProgressReader(t *testing.T) {
	data := bytes.Repeat([]byte{0x1}, 1000)
	pr := NewProgressReader(bytes.NewReader(data), nil)

	got, err := io.ReadAll(pr)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(got) != 1000 {
		t.Errorf("read %d bytes, want 1000", len(got))
	}
	if pr.BytesRead() != 1000 {
		t.Errorf("BytesRead() = %d, want 1000", pr.BytesRead())
	}
}

func TestProgressWriter(t *testing.T) {
	var sink bytes.Buffer
	pw := NewProgressWriter(&sink, nil)

	data := bytes.Repeat([]byte{0x2}, 1000)
	n, err := pw.Write(data)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != 1000 {
		t.Errorf("Write() = %d, want 1000", n)
	}
	if pw.BytesWritten() != 1000 {
		t.Errorf("BytesWritten() = %d, want 1000", pw.BytesWritten())
	}
	if sink.Len() != 1000 {
		t.Errorf("sink holds %d bytes, want 1000", sink.Len())
	}
}

func TestFormatRate(t *testing.T) {
	if got := FormatRate(2048); got != "2.0 KB/s" {
		t.Errorf("FormatRate(2048) = %q, want %q", got, "2.0 KB/s")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{name: "bytes", bytes: 512, want: "512 B"},
		{name: "kilobytes", bytes: 2048, want: "2.0 KB"},
		{name: "megabytes", bytes: 5 * 1024 * 1024, want: "5.0 MB"},
		{name: "terabytes", bytes: 10 * 1024 * 1024 * 1024 * 1024, want: "10.0 TB"},
		{name: "zero", bytes: 0, want: "0 B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatBytes(tt.bytes); got != tt.want {
				t.Errorf("FormatBytes(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}

func TestBufferPool(t *testing.T) {
	pool := NewBufferPool(1024)

	buf := pool.Get()
	if len(buf) != 1024 {
		t.Fatalf("Get() returned %d bytes, want 1024", len(buf))
	}
	pool.Put(buf)

	// A buffer of the wrong size is silently dropped.
	pool.Put(make([]byte, 16))
	buf = pool.Get()
	if len(buf) != 1024 {
		t.Errorf("Get() after foreign Put returned %d bytes, want 1024", len(buf))
	}
}
