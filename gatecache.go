// Package gatecache implements an HTTP gateway cache: middleware that sits
// between HTTP clients and an origin application, serving responses from a
// local store when RFC 7234 cache semantics permit and delegating to the
// origin otherwise.
//
// Response metadata and response bodies live in separate, pluggable stores:
// a MetaStore maps cache keys to ordered header records, and a
// content-addressed EntityStore holds the bodies. Every request runs
// through a Transaction, the per-request state machine that decides among
// pass, hit, miss/fetch/store and stale/validate/refresh.
package gatecache

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/sandrolain/gatecache/metrics"
)

// Gateway holds the configuration shared by transactions: the origin
// collaborator, the two stores and the delivery policies. A Gateway is safe
// for concurrent use; per-request state lives in Transactions.
type Gateway struct {
	origin Origin
	meta   MetaStore
	entity EntityStore

	logger    *Logger
	collector metrics.Collector

	resilience *ResilienceConfig

	privateHeaders       []string
	defaultTTL           time.Duration
	passOnNoCacheRequest bool
	staleOnError         bool

	clock clockwork
}

// New returns a Gateway forwarding uncached requests to origin. With no
// options it caches in process memory, logs to stderr without trace output
// and treats Authorization and Cookie requests as private.
func New(origin Origin, opts ...Option) (*Gateway, error) {
	if origin == nil {
		return nil, errors.New("gatecache: origin is required")
	}
	g := &Gateway{
		origin:         origin,
		meta:           NewMemoryMetaStore(),
		entity:         NewMemoryEntityStore(),
		logger:         NewLogger(os.Stderr, false),
		collector:      metrics.DefaultCollector,
		privateHeaders: []string{headerAuthorization, headerCookie},
		clock:          realClock{},
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Handler returns an http.Handler that serves every inbound request
// through a fresh Transaction. Origin failures surface as 502.
func (g *Gateway) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tx := g.NewTransaction()
		resp, err := tx.Call(r.Context(), r)
		if err != nil {
			g.logger.Error("gateway error: %s %s: %p", r.Method, r.URL.RequestURI(), err)
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
			return
		}
		defer func() {
			if cerr := resp.Body.Close(); cerr != nil {
				g.logger.Warn("response close failed: %p", cerr)
			}
		}()
		copyHeader(w.Header(), resp.Header)
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			g.logger.Warn("response copy interrupted: %p", err)
		}
	})
}

// callOrigin sends one request to the origin through the configured
// resilience policies, if any.
func (g *Gateway) callOrigin(ctx context.Context, req *http.Request) (*http.Response, error) {
	fn := func() (*http.Response, error) {
		return g.origin(ctx, req)
	}
	return g.executeWithResilience(fn)
}
