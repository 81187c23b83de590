package httpx

import (
	"net/http"
)

// ResponseWriter wraps http.ResponseWriter and records whether a response has
// been written, so middleware can avoid writing a second response body.
type ResponseWriter struct {
	http.ResponseWriter
	written bool
}

// NewResponseWriter wraps the given writer. If it is already a *ResponseWriter
// it is returned unchanged.
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	if rw, ok := w.(*ResponseWriter); ok {
		return rw
	}
	return &ResponseWriter{ResponseWriter: w}
}

// WriteHeader records that the response has started and forwards the call.
func (rw *ResponseWriter) WriteHeader(statusCode int) {
	rw.written = true
	rw.ResponseWriter.WriteHeader(statusCode)
}

// Write records that the response has started and forwards the call.
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	rw.written = true
	return rw.ResponseWriter.Write(b)
}

// Written reports whether any part of the response has been sent.
func (rw *ResponseWriter) Written() bool {
	return rw.written
}

// Flush forwards to the underlying writer when it supports flushing.
func (rw *ResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
