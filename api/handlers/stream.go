package handlers

import "net/http"

// flushWriter adapts an http.ResponseWriter to api.ChunkWriter, writing the
// 200 status and SSE headers on the first chunk and flushing after every
// write so clients see bytes as they arrive.
type flushWriter struct {
	w             http.ResponseWriter
	flusher       http.Flusher
	headerWritten bool
}

func newFlushWriter(w http.ResponseWriter) *flushWriter {
	flusher, _ := w.(http.Flusher)
	return &flushWriter{w: w, flusher: flusher}
}

func (f *flushWriter) WriteChunk(b []byte) error {
	if !f.headerWritten {
		f.w.WriteHeader(http.StatusOK)
		f.headerWritten = true
	}
	_, err := f.w.Write(b)
	return err
}

func (f *flushWriter) Flush() {
	if f.flusher != nil {
		f.flusher.Flush()
	}
}
