package gatecache

import (
	"net/http"
	"strings"
)

// varyFields returns the canonicalized header names listed in the Vary
// header of h. A literal "*" is preserved so callers can detect it.
func varyFields(h http.Header) []string {
	var fields []string
	for _, name := range headerAllCommaSepValues(h, headerVary) {
		if name == "" {
			continue
		}
		if name == "*" {
			fields = append(fields, "*")
			continue
		}
		fields = append(fields, http.CanonicalHeaderKey(name))
	}
	return fields
}

// varySubset extracts from reqHeaders the values of the named vary fields.
// The subset is what gets persisted alongside a stored response so future
// requests can be matched against it.
func varySubset(reqHeaders http.Header, fields []string) http.Header {
	subset := make(http.Header, len(fields))
	for _, name := range fields {
		if name == "*" {
			continue
		}
		if vals, ok := reqHeaders[name]; ok {
			subset[name] = append([]string(nil), vals...)
		}
	}
	return subset
}

// varyMatches reports whether req matches the stored request-header subset
// of rec under the Vary header of the stored response. A stored "Vary: *"
// never matches. A header absent from both sides matches.
func varyMatches(rec Record, req *http.Request) bool {
	fields := varyFields(rec.ResponseHeaders)
	for _, name := range fields {
		if name == "*" {
			return false
		}
		if !headerValuesEquivalent(req.Header.Get(name), rec.RequestHeaders.Get(name)) {
			return false
		}
	}
	return true
}

// headerValuesEquivalent reports whether two header values can be made
// identical by trimming and collapsing whitespace around list separators.
func headerValuesEquivalent(a, b string) bool {
	if a == b {
		return true
	}
	return normalizeHeaderValue(a) == normalizeHeaderValue(b)
}

// normalizeHeaderValue collapses runs of whitespace to a single space,
// trims the ends, and removes the space after list commas.
func normalizeHeaderValue(value string) string {
	value = strings.TrimSpace(value)

	var normalized strings.Builder
	prevSpace := false
	for _, r := range value {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			if !prevSpace {
				normalized.WriteRune(' ')
				prevSpace = true
			}
		} else {
			normalized.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.ReplaceAll(normalized.String(), ", ", ",")
}
