package gatecache

import (
	"net/http"
	"strings"
	"time"
)

const (
	// XContentDigest identifies the stored body in the entity store. It is
	// present on responses served or revalidated from cache and in the
	// persisted response headers, never on a freshly fetched response.
	XContentDigest = "X-Content-Digest"

	headerAge             = "Age"
	headerDate            = "Date"
	headerExpires         = "Expires"
	headerETag            = "Etag"
	headerLastModified    = "Last-Modified"
	headerVary            = "Vary"
	headerWarning         = "Warning"
	headerIfModifiedSince = "If-Modified-Since"
	headerIfNoneMatch     = "If-None-Match"
	headerPragma          = "Pragma"
	headerCacheControl    = "Cache-Control"
	headerAuthorization   = "Authorization"
	headerCookie          = "Cookie"
	headerContentLength   = "Content-Length"

	pragmaNoCache = "no-cache"
)

// hop-by-hop headers are connection-level and never persisted or merged.
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailers":            {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// headerAllCommaSepValues returns all comma-separated values (each with
// whitespace trimmed) for header name in headers. Values from multiple
// occurrences of the header are concatenated.
func headerAllCommaSepValues(headers http.Header, name string) []string {
	var vals []string
	for _, val := range headers[http.CanonicalHeaderKey(name)] {
		fields := strings.Split(val, ",")
		for i, f := range fields {
			fields[i] = strings.TrimSpace(f)
		}
		vals = append(vals, fields...)
	}
	return vals
}

// endToEndHeaders returns the canonical names of the end-to-end headers in
// h: everything except the hop-by-hop set and any header named by the
// Connection header.
func endToEndHeaders(h http.Header) []string {
	hopByHop := make(map[string]struct{}, len(hopByHopHeaders))
	for k := range hopByHopHeaders {
		hopByHop[k] = struct{}{}
	}
	for _, extra := range headerAllCommaSepValues(h, "Connection") {
		if extra != "" {
			hopByHop[http.CanonicalHeaderKey(extra)] = struct{}{}
		}
	}
	names := make([]string, 0, len(h))
	for name := range h {
		if _, ok := hopByHop[name]; !ok {
			names = append(names, name)
		}
	}
	return names
}

// cloneHeader returns a deep copy of h.
func cloneHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, vv := range h {
		out[k] = append([]string(nil), vv...)
	}
	return out
}

// copyHeader copies every value of src into dst.
func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// cloneRequest returns a shallow copy of r with a deep copy of its Header.
func cloneRequest(r *http.Request) *http.Request {
	r2 := new(http.Request)
	*r2 = *r
	r2.Header = cloneHeader(r.Header)
	return r2
}

// httpDate formats t as an HTTP-date (RFC 1123, GMT).
func httpDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}

// parseHTTPDate parses an HTTP-date header value.
func parseHTTPDate(s string) (time.Time, error) {
	return http.ParseTime(s)
}
