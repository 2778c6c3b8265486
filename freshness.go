package gatecache

import "time"

// clockwork supplies the current time, allowing tests to pin it.
type clockwork interface {
	now() time.Time
}

type realClock struct{}

func (realClock) now() time.Time {
	return time.Now()
}
