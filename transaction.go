package gatecache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// errMalformedRecord marks a stored record that cannot be restored (no
// digest, no status). The entry is purged and the request handled as a
// miss.
var errMalformedRecord = errors.New("malformed stored record")

// A Transaction runs one request/response exchange through the caching
// state machine. It is owned by a single request handler and must not be
// shared; the metadata and entity stores are the only cross-request state.
type Transaction struct {
	g      *Gateway
	events eventSet
	key    string
}

// NewTransaction returns a Transaction bound to the gateway's stores and
// origin.
func (g *Gateway) NewTransaction() *Transaction {
	return &Transaction{g: g}
}

// Performed reports whether the given transition fired during Call.
func (t *Transaction) Performed(e Event) bool {
	return t.events.performed(e)
}

// Events returns the transitions fired so far, in declaration order.
func (t *Transaction) Events() []Event {
	return t.events.slice()
}

func (t *Transaction) record(e Event) {
	t.events.record(e)
}

// Call processes req and returns the response to deliver, served from the
// store when HTTP cache semantics permit and fetched from the origin
// otherwise. It is the sole entry point of a Transaction and must be
// called once.
func (t *Transaction) Call(ctx context.Context, req *http.Request) (*http.Response, error) {
	start := t.g.clock.now()
	resp, err := t.process(ctx, req)

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	t.g.collector.RecordTransaction(req.Method, t.cacheStatus(), status, t.g.clock.now().Sub(start))

	if err != nil {
		return nil, err
	}
	t.record(EventDeliver)
	t.g.logger.Trace("cache: [%s %s] %p", req.Method, req.URL.RequestURI(), t.events.String())
	return resp, nil
}

func (t *Transaction) process(ctx context.Context, req *http.Request) (*http.Response, error) {
	if !isCacheableMethod(req.Method) {
		return t.pass(ctx, req)
	}
	for _, name := range t.g.privateHeaders {
		if req.Header.Get(name) != "" {
			return t.pass(ctx, req)
		}
	}
	if t.g.passOnNoCacheRequest && requestForbidsCache(req.Header) {
		return t.pass(ctx, req)
	}
	return t.lookup(ctx, req)
}

// pass forwards the request verbatim and returns the origin response
// untouched. The stores are never consulted.
func (t *Transaction) pass(ctx context.Context, req *http.Request) (*http.Response, error) {
	t.record(EventPass)
	return t.forward(ctx, req)
}

// forward sends one request to the origin, applying any configured
// resilience policies.
func (t *Transaction) forward(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := t.g.callOrigin(ctx, req)
	if err != nil {
		t.record(EventError)
		t.g.logger.Warn("origin request failed: %s %s: %p", req.Method, req.URL.RequestURI(), err)
		return nil, err
	}
	return resp, nil
}

// fetch is a forward that counts as a cache-motivated origin exchange.
func (t *Transaction) fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	t.record(EventFetch)
	return t.forward(ctx, req)
}

func (t *Transaction) lookup(ctx context.Context, req *http.Request) (*http.Response, error) {
	t.record(EventLookup)
	t.key = CacheKey(req)

	lookupStart := t.g.clock.now()
	records, err := t.g.meta.Lookup(ctx, t.key)
	if err != nil {
		t.g.collector.RecordStoreOperation("lookup", "meta", "error", t.g.clock.now().Sub(lookupStart))
		t.g.logger.Warn("metadata lookup failed for %p: %p", t.key, err)
		if perr := t.g.meta.Purge(ctx, t.key); perr != nil {
			t.g.logger.Warn("metadata purge failed for %p: %p", t.key, perr)
		}
		records = nil
	} else {
		t.g.collector.RecordStoreOperation("lookup", "meta", lookupResult(records), t.g.clock.now().Sub(lookupStart))
	}

	rec, ok := matchRecord(records, req)
	if !ok {
		return t.miss(ctx, req)
	}
	entry := CacheEntry{rec}
	if entry.Status == 0 || entry.Digest() == "" {
		t.g.logger.Warn("purging malformed record for %p", t.key)
		t.purgeEntry(ctx, entry)
		return t.miss(ctx, req)
	}

	now := t.g.clock.now()
	if entry.Fresh(now, t.g.defaultTTL) && !entry.RequiresRevalidation() {
		resp, err := t.restore(ctx, req, entry, now)
		if err != nil {
			t.g.logger.Info("cached body unavailable for %p, refetching: %p", t.key, err)
			t.purgeEntry(ctx, entry)
			return t.miss(ctx, req)
		}
		t.record(EventHit)
		return resp, nil
	}
	return t.validate(ctx, req, entry)
}

// miss fetches from the origin with conditional headers stripped, then
// classifies and possibly stores the response.
func (t *Transaction) miss(ctx context.Context, req *http.Request) (*http.Response, error) {
	t.record(EventMiss)
	fetchReq := cloneRequest(req)
	fetchReq.Header.Del(headerIfModifiedSince)
	fetchReq.Header.Del(headerIfNoneMatch)
	resp, err := t.fetch(ctx, fetchReq)
	if err != nil {
		return nil, err
	}
	return t.finish(ctx, req, resp), nil
}

// validate revalidates a stale entry with a conditional request. A 304
// refreshes the stored headers and serves the stored body; anything else is
// handled like a fresh fetch.
func (t *Transaction) validate(ctx context.Context, req *http.Request, entry CacheEntry) (*http.Response, error) {
	t.record(EventValidate)

	vreq := cloneRequest(req)
	if lm := entry.LastModified(); lm != "" && vreq.Header.Get(headerIfModifiedSince) == "" {
		vreq.Header.Set(headerIfModifiedSince, lm)
	}
	if etag := entry.ETag(); etag != "" && vreq.Header.Get(headerIfNoneMatch) == "" {
		vreq.Header.Set(headerIfNoneMatch, etag)
	}

	resp, err := t.fetch(ctx, vreq)
	if err != nil {
		if stale, ok := t.staleFallback(ctx, req, entry, "transport"); ok {
			return stale, nil
		}
		return nil, err
	}

	if resp.StatusCode == http.StatusNotModified {
		t.drain(resp.Body)
		now := t.g.clock.now()
		refreshed := entry.refresh(resp.Header, now)
		if serr := t.g.meta.Store(ctx, t.key, refreshed.Record); serr != nil {
			t.g.logger.Warn("metadata refresh failed for %p: %p", t.key, serr)
		} else {
			t.record(EventStore)
		}
		out, rerr := t.restore(ctx, req, refreshed, now)
		if rerr != nil {
			t.g.logger.Info("cached body unavailable after revalidation for %p: %p", t.key, rerr)
			t.purgeEntry(ctx, refreshed)
			return t.miss(ctx, req)
		}
		return out, nil
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		if stale, ok := t.staleFallback(ctx, req, entry, "server_error"); ok {
			t.drain(resp.Body)
			return stale, nil
		}
	}
	return t.finish(ctx, req, resp), nil
}

// staleFallback serves the stale entry when the gateway is configured to
// prefer it over a failed revalidation.
func (t *Transaction) staleFallback(ctx context.Context, req *http.Request, entry CacheEntry, errorType string) (*http.Response, bool) {
	if !t.g.staleOnError {
		return nil, false
	}
	stale, err := t.restore(ctx, req, entry, t.g.clock.now())
	if err != nil {
		return nil, false
	}
	stale.Header.Add(headerWarning, warningRevalidationFailed)
	t.g.collector.RecordStaleResponse(errorType)
	t.g.logger.Warn("origin unavailable, serving stale entry for %p", t.key)
	return stale, true
}

// finish classifies a fetched response and arranges storage for cacheable
// ones. The response is returned unchanged either way.
func (t *Transaction) finish(ctx context.Context, req *http.Request, resp *http.Response) *http.Response {
	if !t.responseCacheable(req, resp) {
		return resp
	}
	t.storeResponse(ctx, req, resp)
	return resp
}

// responseCacheable applies the default cacheability rules: a GET or HEAD
// exchange, a status in the cacheable-by-default set, no no-store on either
// side, and a Vary the store can match against. A response-side no-cache
// does not prevent storage; it only forces revalidation on later lookups.
func (t *Transaction) responseCacheable(req *http.Request, resp *http.Response) bool {
	if !isCacheableMethod(req.Method) {
		return false
	}
	if !cacheableByDefault[resp.StatusCode] {
		return false
	}
	for _, field := range varyFields(resp.Header) {
		if field == "*" {
			return false
		}
	}
	if parseCacheControl(resp.Header).has(ccNoStore) {
		return false
	}
	if parseCacheControl(req.Header).has(ccNoStore) {
		return false
	}
	return true
}

// storeResponse tees the response body so every byte reaches both the
// caller and the entity store. Metadata commits only after the body has
// been fully consumed; an early close abandons the store.
func (t *Transaction) storeResponse(ctx context.Context, req *http.Request, resp *http.Response) {
	if resp.Header.Get(headerDate) == "" {
		resp.Header.Set(headerDate, httpDate(t.g.clock.now()))
	}

	subset := varySubset(req.Header, varyFields(resp.Header))
	stored := cloneHeader(resp.Header)
	stored.Del(headerAge)
	status := resp.StatusCode

	resp.Body = &storingReadCloser{
		body: resp.Body,
		onEOF: func(data []byte) {
			writeStart := t.g.clock.now()
			digest, size, err := t.g.entity.Write(ctx, bytes.NewReader(data))
			if err != nil {
				t.g.collector.RecordStoreOperation("write", "entity", "error", t.g.clock.now().Sub(writeStart))
				t.g.logger.Warn("entity write failed for %p: %p", t.key, err)
				return
			}
			t.g.collector.RecordStoreOperation("write", "entity", "ok", t.g.clock.now().Sub(writeStart))

			stored.Set(XContentDigest, digest)
			stored.Set(headerContentLength, strconv.FormatInt(size, 10))
			rec := Record{Status: status, RequestHeaders: subset, ResponseHeaders: stored}
			if err := t.g.meta.Store(ctx, t.key, rec); err != nil {
				t.g.logger.Warn("metadata store failed for %p: %p", t.key, err)
				return
			}
			t.record(EventStore)
			t.g.collector.RecordResponseSize("miss", size)
			t.g.logger.Trace("stored %p under %p", digest, t.key)
		},
	}
}

// restore builds a deliverable response from a stored entry: the body is
// read back from the entity store, verified against its digest, and the
// headers get a freshly computed Age.
func (t *Transaction) restore(ctx context.Context, req *http.Request, entry CacheEntry, now time.Time) (*http.Response, error) {
	digest := entry.Digest()
	if digest == "" || entry.Status == 0 {
		return nil, errMalformedRecord
	}

	readStart := t.g.clock.now()
	rc, err := t.g.entity.Read(ctx, digest)
	if err != nil {
		t.g.collector.RecordStoreOperation("read", "entity", "error", t.g.clock.now().Sub(readStart))
		return nil, err
	}
	data, err := io.ReadAll(rc)
	closeErr := rc.Close()
	if err != nil {
		t.g.collector.RecordStoreOperation("read", "entity", "error", t.g.clock.now().Sub(readStart))
		return nil, err
	}
	if closeErr != nil {
		t.g.logger.Warn("entity close failed for %p: %p", digest, closeErr)
	}
	if EntityDigest(data) != digest {
		t.g.collector.RecordStoreOperation("read", "entity", "error", t.g.clock.now().Sub(readStart))
		if perr := t.g.entity.Purge(ctx, digest); perr != nil {
			t.g.logger.Warn("entity purge failed for %p: %p", digest, perr)
		}
		return nil, ErrDigestMismatch
	}
	t.g.collector.RecordStoreOperation("read", "entity", "ok", t.g.clock.now().Sub(readStart))

	h := cloneHeader(entry.ResponseHeaders)
	h.Set(headerAge, formatAge(entry.Age(now)))
	h.Set(XContentDigest, digest)

	t.g.collector.RecordResponseSize("hit", int64(len(data)))
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", entry.Status, http.StatusText(entry.Status)),
		StatusCode:    entry.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: int64(len(data)),
		Request:       req,
	}, nil
}

// purgeEntry drops a corrupt or unreadable entry and its body reference.
func (t *Transaction) purgeEntry(ctx context.Context, entry CacheEntry) {
	if err := t.g.meta.Purge(ctx, t.key); err != nil {
		t.g.logger.Warn("metadata purge failed for %p: %p", t.key, err)
	}
	if digest := entry.Digest(); digest != "" {
		if err := t.g.entity.Purge(ctx, digest); err != nil {
			t.g.logger.Warn("entity purge failed for %p: %p", digest, err)
		}
	}
}

// drain consumes and closes a response body that will not be delivered, so
// the underlying connection can be reused.
func (t *Transaction) drain(body io.ReadCloser) {
	if body == nil {
		return
	}
	if _, err := io.Copy(io.Discard, io.LimitReader(body, bodyDrainSize)); err != nil {
		t.g.logger.Warn("failed to drain response body: %p", err)
	}
	if err := body.Close(); err != nil {
		t.g.logger.Warn("failed to close response body: %p", err)
	}
}

const bodyDrainSize = 1 << 15 // 32KB

func (t *Transaction) cacheStatus() string {
	switch {
	case t.events.performed(EventHit):
		return "hit"
	case t.events.performed(EventPass):
		return "pass"
	case t.events.performed(EventMiss):
		return "miss"
	case t.events.performed(EventValidate):
		return "revalidated"
	case t.events.performed(EventError):
		return "error"
	}
	return "bypass"
}

// matchRecord walks the candidate records newest-first and returns the
// first whose stored request-header subset matches req under its Vary
// rules.
func matchRecord(records []Record, req *http.Request) (Record, bool) {
	for _, rec := range records {
		if varyMatches(rec, req) {
			return rec, true
		}
	}
	return Record{}, false
}

func lookupResult(records []Record) string {
	if len(records) == 0 {
		return "miss"
	}
	return "ok"
}
