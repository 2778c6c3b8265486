package gatecache

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"
)

// ErrNoDateHeader indicates that stored response headers contain no Date.
var ErrNoDateHeader = errors.New("no Date header")

// Record is one persisted entry under a cache key: the subset of request
// headers named by the response's Vary header, and the full stored response
// headers including X-Content-Digest. Records marshal to JSON for the
// persistent metadata backends.
type Record struct {
	Status          int         `json:"status"`
	RequestHeaders  http.Header `json:"request_headers"`
	ResponseHeaders http.Header `json:"response_headers"`
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	return Record{
		Status:          r.Status,
		RequestHeaders:  cloneHeader(r.RequestHeaders),
		ResponseHeaders: cloneHeader(r.ResponseHeaders),
	}
}

// EncodeRecords marshals an ordered record list for persistence.
func EncodeRecords(records []Record) ([]byte, error) {
	return json.Marshal(records)
}

// DecodeRecords unmarshals a record list previously written by
// EncodeRecords.
func DecodeRecords(data []byte) ([]Record, error) {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// CacheEntry wraps a stored record with the freshness, age and validator
// logic the state machine needs.
type CacheEntry struct {
	Record
}

// Date returns the stored response's Date header.
func (e CacheEntry) Date() (time.Time, error) {
	v := e.ResponseHeaders.Get(headerDate)
	if v == "" {
		return time.Time{}, ErrNoDateHeader
	}
	return parseHTTPDate(v)
}

// Age returns the entry's current age at now: the time elapsed since the
// stored Date, clamped to zero, plus any Age the stored response already
// carried.
func (e CacheEntry) Age(now time.Time) time.Duration {
	age := time.Duration(0)
	if date, err := e.Date(); err == nil && now.After(date) {
		age = now.Sub(date)
	}
	if prior := e.ResponseHeaders.Get(headerAge); prior != "" {
		if secs, err := strconv.ParseInt(prior, 10, 64); err == nil && secs > 0 {
			age += time.Duration(secs) * time.Second
		}
	}
	return age
}

// FreshnessLifetime returns how long the entry stays fresh: max-age when
// present, otherwise Expires minus Date, otherwise defaultTTL.
func (e CacheEntry) FreshnessLifetime(defaultTTL time.Duration) time.Duration {
	cc := parseCacheControl(e.ResponseHeaders)
	if maxAge, ok := cc[ccMaxAge]; ok {
		if secs, err := strconv.ParseInt(maxAge, 10, 64); err == nil {
			return time.Duration(secs) * time.Second
		}
		return 0
	}
	if expires := e.ResponseHeaders.Get(headerExpires); expires != "" {
		exp, err := parseHTTPDate(expires)
		if err != nil {
			return 0
		}
		date, derr := e.Date()
		if derr != nil {
			return 0
		}
		return exp.Sub(date)
	}
	return defaultTTL
}

// Fresh reports whether the entry's age is still below its freshness
// lifetime at now.
func (e CacheEntry) Fresh(now time.Time, defaultTTL time.Duration) bool {
	return e.Age(now) < e.FreshnessLifetime(defaultTTL)
}

// RequiresRevalidation reports whether the stored response forbids serving
// a hit without contacting the origin (Cache-Control: no-cache).
func (e CacheEntry) RequiresRevalidation() bool {
	return parseCacheControl(e.ResponseHeaders).has(ccNoCache)
}

// ETag returns the stored entity tag, if any.
func (e CacheEntry) ETag() string {
	return e.ResponseHeaders.Get(headerETag)
}

// LastModified returns the stored Last-Modified validator, if any.
func (e CacheEntry) LastModified() string {
	return e.ResponseHeaders.Get(headerLastModified)
}

// Digest returns the entity store address of the stored body.
func (e CacheEntry) Digest() string {
	return e.ResponseHeaders.Get(XContentDigest)
}

// refresh merges the end-to-end headers of a 304 Not Modified response into
// the entry, leaving the body digest untouched. The 304's validators and
// freshness headers replace the stored ones; a missing Date is filled with
// now so the refreshed entry ages from this revalidation.
func (e CacheEntry) refresh(notModified http.Header, now time.Time) CacheEntry {
	merged := cloneHeader(e.ResponseHeaders)
	for _, name := range endToEndHeaders(notModified) {
		if name == headerContentLength {
			continue
		}
		merged[name] = append([]string(nil), notModified[name]...)
	}
	merged.Del(headerAge)
	if notModified.Get(headerDate) == "" {
		merged.Set(headerDate, httpDate(now))
	}
	return CacheEntry{Record{
		Status:          e.Status,
		RequestHeaders:  cloneHeader(e.RequestHeaders),
		ResponseHeaders: merged,
	}}
}

// formatAge renders an age as an Age header value in whole seconds.
func formatAge(age time.Duration) string {
	secs := int64(age.Seconds())
	if secs < 0 {
		secs = 0
	}
	return strconv.FormatInt(secs, 10)
}
