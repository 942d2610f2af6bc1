// Package testlogger implements the redirection of logging output to
// test-specific logs.
package testlogger

import (
	"bytes"
	"io"
	"sync"
	"testing"

	"github.com/nikosalonen/macrod/log"
)

// Buffer is a bytes.Buffer that is thread-safe for most operations.
type Buffer struct {
	bytes.Buffer
	mu sync.Mutex
}

// WriteString writes out s into the buffer.
func (b *Buffer) WriteString(s string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Buffer.WriteString(s)
}

// Write writes the bytes from p into the buffer.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Buffer.Write(p)
}

// Bytes returns a slice of length b.Len() that holds the unread portion of the
// buffer.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Buffer.Bytes()
}

// String returns a string of the unread portion of the buffer.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Buffer.String()
}

// Len returns the number of bytes in the unread portion of the buffer.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Buffer.Len()
}

// Read reads up to len(p) bytes from the buffer.
func (b *Buffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Buffer.Read(p)
}

// testWriter writes to the io.Writer and logs to the testing.TB.
type testWriter struct {
	tb testing.TB
	w  io.Writer
}

// Write writes p into the testWriter.
func (tw *testWriter) Write(p []byte) (n int, err error) {
	tw.tb.Helper()

	written, err := tw.w.Write(p)
	if err != nil {
		return written, err
	}

	tw.tb.Log(string(p))

	return written, nil
}

// NewTestLogger creates a logger that stores log output in a buffer and outputs
// to the test/benchmark log output.
func NewTestLogger(tb testing.TB, level log.Level) (log.Logger, *Buffer) {
	buf := &Buffer{}

	tw := &testWriter{
		tb: tb,
		w:  buf,
	}

	return log.NewLogger(tw, level), buf
}
