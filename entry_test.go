package gatecache

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryWithHeaders(h map[string]string) CacheEntry {
	headers := make(http.Header, len(h))
	for k, v := range h {
		headers.Set(k, v)
	}
	return CacheEntry{Record{Status: 200, RequestHeaders: http.Header{}, ResponseHeaders: headers}}
}

func TestFreshnessLifetimeMaxAge(t *testing.T) {
	e := entryWithHeaders(map[string]string{headerCacheControl: "max-age=60"})
	assert.Equal(t, time.Minute, e.FreshnessLifetime(0))
}

func TestFreshnessLifetimeMaxAgeOverridesExpires(t *testing.T) {
	now := time.Now()
	e := entryWithHeaders(map[string]string{
		headerCacheControl: "max-age=10",
		headerDate:         httpDate(now),
		headerExpires:      httpDate(now.Add(time.Hour)),
	})
	assert.Equal(t, 10*time.Second, e.FreshnessLifetime(0))
}

func TestFreshnessLifetimeExpires(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	e := entryWithHeaders(map[string]string{
		headerDate:    httpDate(now),
		headerExpires: httpDate(now.Add(30 * time.Second)),
	})
	assert.Equal(t, 30*time.Second, e.FreshnessLifetime(0))
}

func TestFreshnessLifetimeDefaultsToZero(t *testing.T) {
	e := entryWithHeaders(map[string]string{headerDate: httpDate(time.Now())})
	assert.Equal(t, time.Duration(0), e.FreshnessLifetime(0))
}

func TestFreshnessLifetimeDefaultTTL(t *testing.T) {
	e := entryWithHeaders(map[string]string{headerDate: httpDate(time.Now())})
	assert.Equal(t, time.Minute, e.FreshnessLifetime(time.Minute))
}

func TestFreshnessLifetimeInvalidMaxAge(t *testing.T) {
	e := entryWithHeaders(map[string]string{headerCacheControl: "max-age=banana"})
	assert.Equal(t, time.Duration(0), e.FreshnessLifetime(time.Minute))
}

func TestAgeClampedToZero(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	e := entryWithHeaders(map[string]string{headerDate: httpDate(now.Add(time.Hour))})
	assert.Equal(t, time.Duration(0), e.Age(now))
}

func TestAgeIncludesPriorAgeHeader(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	e := entryWithHeaders(map[string]string{
		headerDate: httpDate(now.Add(-10 * time.Second)),
		headerAge:  "5",
	})
	assert.Equal(t, 15*time.Second, e.Age(now))
}

func TestFresh(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	e := entryWithHeaders(map[string]string{
		headerDate:         httpDate(now.Add(-5 * time.Second)),
		headerCacheControl: "max-age=10",
	})
	assert.True(t, e.Fresh(now, 0))
	assert.False(t, e.Fresh(now.Add(10*time.Second), 0))
}

func TestRequiresRevalidation(t *testing.T) {
	assert.True(t, entryWithHeaders(map[string]string{headerCacheControl: "no-cache"}).RequiresRevalidation())
	assert.False(t, entryWithHeaders(map[string]string{headerCacheControl: "max-age=10"}).RequiresRevalidation())
}

func TestValidators(t *testing.T) {
	e := entryWithHeaders(map[string]string{
		headerETag:         `"abc"`,
		headerLastModified: "Fri, 14 Dec 2010 01:01:50 GMT",
	})
	assert.Equal(t, `"abc"`, e.ETag())
	assert.Equal(t, "Fri, 14 Dec 2010 01:01:50 GMT", e.LastModified())
}

func TestRefreshMergesEndToEndHeaders(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	e := entryWithHeaders(map[string]string{
		headerDate:         httpDate(now.Add(-time.Hour)),
		headerCacheControl: "max-age=10",
		XContentDigest:     "abc123",
		"Content-Type":     "text/plain",
	})

	notModified := http.Header{}
	notModified.Set(headerDate, httpDate(now))
	notModified.Set(headerCacheControl, "max-age=60")
	notModified.Set(headerETag, `"v2"`)
	notModified.Set("Connection", "X-Internal")
	notModified.Set("X-Internal", "do not merge")

	refreshed := e.refresh(notModified, now)

	assert.Equal(t, httpDate(now), refreshed.ResponseHeaders.Get(headerDate))
	assert.Equal(t, "max-age=60", refreshed.ResponseHeaders.Get(headerCacheControl))
	assert.Equal(t, `"v2"`, refreshed.ResponseHeaders.Get(headerETag))
	assert.Equal(t, "abc123", refreshed.ResponseHeaders.Get(XContentDigest))
	assert.Equal(t, "text/plain", refreshed.ResponseHeaders.Get("Content-Type"))
	assert.Empty(t, refreshed.ResponseHeaders.Get("X-Internal"))
}

func TestRefreshFillsMissingDate(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	e := entryWithHeaders(map[string]string{XContentDigest: "abc"})
	refreshed := e.refresh(http.Header{}, now)
	assert.Equal(t, httpDate(now), refreshed.ResponseHeaders.Get(headerDate))
}

func TestRecordRoundTrip(t *testing.T) {
	records := []Record{
		{
			Status:          200,
			RequestHeaders:  http.Header{"Accept": {"text/plain"}},
			ResponseHeaders: http.Header{XContentDigest: {"abc"}, "Vary": {"Accept"}},
		},
	}
	data, err := EncodeRecords(records)
	require.NoError(t, err)
	decoded, err := DecodeRecords(data)
	require.NoError(t, err)
	require.Equal(t, records, decoded)
}

func TestDecodeRecordsRejectsGarbage(t *testing.T) {
	_, err := DecodeRecords([]byte("{not json"))
	require.Error(t, err)
}

func TestCacheKey(t *testing.T) {
	get := newRequest(t, http.MethodGet, "http://example.org/a?b=c", nil)
	head := newRequest(t, http.MethodHead, "http://example.org/a?b=c", nil)
	assert.Equal(t, "http://example.org/a?b=c", CacheKey(get))
	assert.Equal(t, "HEAD http://example.org/a?b=c", CacheKey(head))
	assert.NotEqual(t, CacheKey(get), CacheKey(head))
}

func TestParseCacheControl(t *testing.T) {
	h := http.Header{}
	h.Set(headerCacheControl, `no-cache, max-age=60, private="Set-Cookie"`)
	cc := parseCacheControl(h)
	assert.True(t, cc.has(ccNoCache))
	assert.Equal(t, "60", cc[ccMaxAge])
	assert.Equal(t, "Set-Cookie", cc[ccPrivate])
	assert.False(t, cc.has(ccNoStore))
}

func TestEntityDigestStable(t *testing.T) {
	// SHA-1 of "Hello World"
	assert.Equal(t, "0a4d55a8d778e5022fab701977c5d840bbc486d0", EntityDigest([]byte("Hello World")))
}
