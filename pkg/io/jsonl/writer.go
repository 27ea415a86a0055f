// Package jsonl writes drift reports as JSON lines.
package jsonl

import (
	"encoding/json"
	"io"
	"os"

	"github.com/marginwatch/driftmd/pkg/drift"
)

// Writer appends one JSON document per drift report to an output stream.
type Writer struct {
	out     io.Writer
	closer  io.Closer
	encoder *json.Encoder
}

// New creates a writer over an arbitrary output stream.
func New(out io.Writer) *Writer {
	return &Writer{out: out, encoder: json.NewEncoder(out)}
}

// Create opens (or truncates) a file and writes reports to it.
func Create(path string) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := New(file)
	w.closer = file
	return w, nil
}

// Write outputs a single report followed by a newline.
func (w *Writer) Write(result drift.Result) error {
	return w.encoder.Encode(result)
}

// Close releases the underlying file, if any.
func (w *Writer) Close() error {
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}
