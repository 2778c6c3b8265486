package gatecache

// Warning header values per RFC 7234 Section 5.5. Only attached when the
// gateway knowingly serves degraded freshness.
const (
	warningResponseIsStale    = `110 - "Response is Stale"`
	warningRevalidationFailed = `111 - "Revalidation Failed"`
)
