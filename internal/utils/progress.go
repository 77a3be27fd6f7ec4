// Package utils provides small helpers shared by the agent's transfer paths.
package utils

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// progressInterval is how many bytes pass between progress callbacks.
const progressInterval = 10 * 1024 * 1024

// ProgressReader counts bytes pulled through a reader and invokes a callback
// roughly every progressInterval bytes. Used on the upload path to log
// transfer progress without touching the stream's contents.
type ProgressReader struct {
	reader    io.Reader
	bytesRead atomic.Int64
	started   time.Time
	report    func(bytesRead int64, elapsed time.Duration)
}

// NewProgressReader wraps reader. report may be nil to count silently.
func NewProgressReader(reader io.Reader, report func(bytesRead int64, elapsed time.Duration)) *ProgressReader {
	return &ProgressReader{
		reader:  reader,
		started: time.Now(),
		report:  report,
	}
}

// Read implements io.Reader.
func (pr *ProgressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		total := pr.bytesRead.Add(int64(n))
		if pr.report != nil && total%progressInterval < int64(n) {
			pr.report(total, time.Since(pr.started))
		}
	}
	return n, err
}

// BytesRead returns the total number of bytes read so far.
func (pr *ProgressReader) BytesRead() int64 {
	return pr.bytesRead.Load()
}

// ProgressWriter is the write-side counterpart, used on the download pump.
type ProgressWriter struct {
	writer       io.Writer
	bytesWritten atomic.Int64
	started      time.Time
	report       func(bytesWritten int64, elapsed time.Duration)
}

// NewProgressWriter wraps writer. report may be nil to count silently.
func NewProgressWriter(writer io.Writer, report func(bytesWritten int64, elapsed time.Duration)) *ProgressWriter {
	return &ProgressWriter{
		writer:  writer,
		started: time.Now(),
		report:  report,
	}
}

// Write implements io.Writer.
func (pw *ProgressWriter) Write(p []byte) (int, error) {
	n, err := pw.writer.Write(p)
	if n > 0 {
		total := pw.bytesWritten.Add(int64(n))
		if pw.report != nil && total%progressInterval < int64(n) {
			pw.report(total, time.Since(pw.started))
		}
	}
	return n, err
}

// BytesWritten returns the total number of bytes written so far.
func (pw *ProgressWriter) BytesWritten() int64 {
	return pw.bytesWritten.Load()
}

// FormatBytes renders a byte count in human readable units.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatRate renders a transfer rate in human readable units.
func FormatRate(bytesPerSecond float64) string {
	return FormatBytes(int64(bytesPerSecond)) + "/s"
}
