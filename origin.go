package gatecache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// Origin is the collaborator the gateway forwards uncached requests to. It
// receives the normalized request and returns the origin's response.
// Implementations must honor ctx for cancellation.
type Origin func(ctx context.Context, req *http.Request) (*http.Response, error)

// TransportOrigin adapts an http.RoundTripper into an Origin. Responses
// stream straight from the transport, so stored bodies are teed rather
// than buffered up front.
func TransportOrigin(rt http.RoundTripper) Origin {
	if rt == nil {
		rt = http.DefaultTransport
	}
	return func(ctx context.Context, req *http.Request) (*http.Response, error) {
		return rt.RoundTrip(req.WithContext(ctx))
	}
}

// HandlerOrigin adapts an http.Handler into an Origin, for use as server
// middleware in front of an in-process application. The handler's output is
// buffered into the returned response.
func HandlerOrigin(h http.Handler) Origin {
	return func(ctx context.Context, req *http.Request) (*http.Response, error) {
		rec := &originRecorder{header: make(http.Header), status: http.StatusOK}
		h.ServeHTTP(rec, req.WithContext(ctx))
		return rec.response(req), nil
	}
}

// originRecorder captures an http.Handler's write as a response.
type originRecorder struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *originRecorder) Header() http.Header {
	return r.header
}

func (r *originRecorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = status
}

func (r *originRecorder) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.body.Write(p)
}

func (r *originRecorder) response(req *http.Request) *http.Response {
	body := r.body.Bytes()
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", r.status, http.StatusText(r.status)),
		StatusCode:    r.status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        r.header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
