package gatecache

import (
	"context"
	"net/http"
)

// Invalidate purges the stored metadata for the resource req addresses,
// covering both the GET and HEAD entry classes. Bodies stay in the entity
// store until swept; only their references are dropped. The transaction
// path never calls this: requests with unsafe methods pass straight
// through. It exists for applications that mutate origin state out of
// band.
func (g *Gateway) Invalidate(ctx context.Context, req *http.Request) error {
	get := cloneRequest(req)
	get.Method = http.MethodGet
	head := cloneRequest(req)
	head.Method = http.MethodHead

	var firstErr error
	for _, key := range []string{CacheKey(get), CacheKey(head)} {
		if err := g.meta.Purge(ctx, key); err != nil {
			g.logger.Warn("invalidation purge failed for %p: %p", key, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		g.logger.Trace("invalidated %p", key)
	}
	return firstErr
}
