package diskstore

import (
	"net/http"

	"github.com/sandrolain/gatecache"
)

func sampleRecord(digest string) gatecache.Record {
	return gatecache.Record{
		Status:         200,
		RequestHeaders: http.Header{},
		ResponseHeaders: http.Header{
			"Content-Type":     {"text/plain"},
			"X-Content-Digest": {digest},
		},
	}
}
