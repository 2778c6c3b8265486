package gatecache

import "net/http"

// CacheKey returns the key under which the metadata store indexes entries
// for req. GET requests key on the URL alone so that HEAD and GET variants
// of the same resource stay distinct without inflating the common case.
func CacheKey(req *http.Request) string {
	if req.Method == http.MethodGet {
		return req.URL.String()
	}
	return req.Method + " " + req.URL.String()
}
