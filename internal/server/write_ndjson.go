package server

import (
	"io"
	"net/http"
	"sync"

	"example.com/tlegate/internal/gate"
)

// NDJSONWriter streams newline-delimited JSON objects to the underlying writer.
type NDJSONWriter struct {
	mu      sync.Mutex
	writer  io.Writer
	flusher http.Flusher
}

// NewNDJSONWriter wraps w. When w is an http.Flusher every object is
// flushed as soon as it is written.
func NewNDJSONWriter(w http.ResponseWriter) *NDJSONWriter {
	var flusher http.Flusher
	if f, ok := w.(http.Flusher); ok {
		flusher = f
	}
	return &NDJSONWriter{writer: w, flusher: flusher}
}

// WriteDiagnostic writes d as one NDJSON line tagged "diagnostic".
func (w *NDJSONWriter) WriteDiagnostic(d gate.Diagnostic) error {
	return w.WriteObject(struct {
		Type string `json:"type"`
		gate.Diagnostic
	}{"diagnostic", d})
}

// WriteObject writes v followed by a newline.
func (w *NDJSONWriter) WriteObject(v any) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.writer.Write(append(data, '\n')); err != nil {
		return err
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}
