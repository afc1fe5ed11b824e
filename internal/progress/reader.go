// Package progress provides utilities for tracking I/O progress.
package progress

import "io"

// Callback is called to report progress during I/O operations.
// bytesTransferred is cumulative and includes any starting offset.
type Callback func(bytesTransferred, totalBytes int64)

// Reader wraps an io.Reader to track bytes read and report progress.
type Reader struct {
	reader   io.Reader
	callback Callback
	total    int64
	read     int64
}

// NewReader creates a progress-tracking reader.
// The total parameter should be the expected size (-1 if unknown).
// The callback is called after each Read with cumulative bytes and total.
func NewReader(r io.Reader, total int64, callback Callback) *Reader {
	return &Reader{
		reader:   r,
		callback: callback,
		total:    total,
	}
}

// Read implements io.Reader and reports progress after each read.
func (r *Reader) Read(p []byte) (n int, err error) {
	n, err = r.reader.Read(p)
	if n > 0 {
		r.read += int64(n)
		if r.callback != nil {
			r.callback(r.read, r.total)
		}
	}
	return n, err
}

// Transferred returns the cumulative byte count.
func (r *Reader) Transferred() int64 {
	return r.read
}

// Writer counts bytes written through it and reports progress.
type Writer struct {
	writer   io.Writer
	callback Callback
	total    int64
	written  int64
}

// NewWriterAt creates a progress-tracking writer starting at offset.
func NewWriterAt(w io.Writer, offset, total int64, callback Callback) *Writer {
	return &Writer{
		writer:   w,
		callback: callback,
		total:    total,
		written:  offset,
	}
}

// Write implements io.Writer. Progress is reported only for bytes that
// reached the underlying writer.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.writer.Write(p)
	if n > 0 {
		w.written += int64(n)
		if w.callback != nil {
			w.callback(w.written, w.total)
		}
	}
	return n, err
}

// Written returns the cumulative byte count, offset included.
func (w *Writer) Written() int64 {
	return w.written
}
