package gatecache

import (
	"net/http"
	"strings"
)

const (
	ccNoCache = "no-cache"
	ccNoStore = "no-store"
	ccMaxAge  = "max-age"
	ccPrivate = "private"
)

// cacheControl is a map of Cache-Control directive names to their values.
type cacheControl map[string]string

// parseCacheControl parses the Cache-Control header of headers into a
// directive map. Value-less directives map to the empty string.
func parseCacheControl(headers http.Header) cacheControl {
	cc := cacheControl{}
	ccHeader := headers.Get(headerCacheControl)
	for _, part := range strings.Split(ccHeader, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.ContainsRune(part, '=') {
			keyval := strings.SplitN(part, "=", 2)
			cc[strings.TrimSpace(keyval[0])] = strings.Trim(strings.TrimSpace(keyval[1]), `"`)
		} else {
			cc[part] = ""
		}
	}
	return cc
}

func (cc cacheControl) has(directive string) bool {
	_, ok := cc[directive]
	return ok
}

// cacheableByDefault is the set of status codes a cache may store without
// explicit freshness information.
var cacheableByDefault = map[int]bool{
	http.StatusOK:                   true, // 200
	http.StatusNonAuthoritativeInfo: true, // 203
	http.StatusMultipleChoices:      true, // 300
	http.StatusMovedPermanently:     true, // 301
	http.StatusFound:                true, // 302
	http.StatusNotFound:             true, // 404
	http.StatusGone:                 true, // 410
}

// isCacheableMethod reports whether responses to the method may be served
// from or written to the cache.
func isCacheableMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// requestForbidsCache reports whether the request asked for an end-to-end
// reload via Cache-Control: no-cache or the HTTP/1.0 Pragma equivalent.
func requestForbidsCache(h http.Header) bool {
	if parseCacheControl(h).has(ccNoCache) {
		return true
	}
	if h.Get(headerCacheControl) == "" && strings.EqualFold(h.Get(headerPragma), pragmaNoCache) {
		return true
	}
	return false
}
