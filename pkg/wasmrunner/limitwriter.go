// Copyright 2025 Ditto Network

package wasmrunner

import "bytes"

// capWriter accumulates up to limit bytes and reports overflow instead of
// growing without bound, so a runaway guest cannot exhaust host memory.
type capWriter struct {
	buf      bytes.Buffer
	limit    int
	overflow bool
}

func newCapWriter(limit int) *capWriter {
	return &capWriter{limit: limit}
}

func (w *capWriter) Write(p []byte) (int, error) {
	if w.overflow {
		return len(p), nil
	}
	if w.buf.Len()+len(p) > w.limit {
		w.overflow = true
		remaining := w.limit - w.buf.Len()
		if remaining > 0 {
			w.buf.Write(p[:remaining])
		}
		return len(p), nil
	}
	return w.buf.Write(p)
}
