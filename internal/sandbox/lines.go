package sandbox

import (
	"bytes"
	"strings"
	"sync"
)

// LineWriter is an io.Writer that splits output into lines.
//
// Remote output arrives in chunks that do not respect line boundaries: one
// chunk may hold three lines, or half of one. LineWriter buffers the partial
// tail, records every complete line in order, and hands each one to the
// observer as soon as it is complete. Flush emits whatever is left once the
// stream ends.
//
// A trailing "\r" is dropped so CRLF output reads the same as LF output.
type LineWriter struct {
	mu      sync.Mutex
	pending bytes.Buffer
	lines   []string
	observe func(string)
}

// NewLineWriter returns a LineWriter calling observe (may be nil) per line.
func NewLineWriter(observe func(string)) *LineWriter {
	return &LineWriter{observe: observe}
}

// Write never fails; it returns len(p) to satisfy io.Writer.
func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending.Write(p)
	for {
		idx := bytes.IndexByte(w.pending.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := string(w.pending.Next(idx + 1))
		w.emit(strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r"))
	}
	return len(p), nil
}

// Flush emits a final unterminated line, if any.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending.Len() == 0 {
		return
	}
	line := w.pending.String()
	w.pending.Reset()
	w.emit(strings.TrimSuffix(line, "\r"))
}

// Lines returns a copy of the complete lines seen so far.
func (w *LineWriter) Lines() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]string, len(w.lines))
	copy(out, w.lines)
	return out
}

// emit must be called with mu held.
func (w *LineWriter) emit(line string) {
	w.lines = append(w.lines, line)
	if w.observe != nil {
		w.observe(line)
	}
}
