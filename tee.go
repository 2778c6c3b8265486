package gatecache

import (
	"bytes"
	"io"
)

// storingReadCloser wraps a single-pass response body so the caller and the
// store both see every byte. onEOF fires exactly once, with the complete
// body, after the caller has consumed it; closing early abandons the store
// without firing.
type storingReadCloser struct {
	body  io.ReadCloser
	onEOF func(data []byte)

	buf   bytes.Buffer
	fired bool
}

func (r *storingReadCloser) Read(p []byte) (int, error) {
	n, err := r.body.Read(p)
	if n > 0 {
		r.buf.Write(p[:n])
	}
	if err == io.EOF && !r.fired {
		r.fired = true
		r.onEOF(r.buf.Bytes())
	}
	return n, err
}

func (r *storingReadCloser) Close() error {
	return r.body.Close()
}
