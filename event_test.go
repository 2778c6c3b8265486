package gatecache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventSet(t *testing.T) {
	var s eventSet
	assert.False(t, s.performed(EventPass))

	s.record(EventLookup)
	s.record(EventMiss)
	s.record(EventFetch)
	s.record(EventStore)
	s.record(EventDeliver)

	assert.True(t, s.performed(EventLookup))
	assert.True(t, s.performed(EventMiss))
	assert.False(t, s.performed(EventHit))
	assert.False(t, s.performed(EventPass))

	assert.Equal(t, []Event{EventLookup, EventMiss, EventFetch, EventStore, EventDeliver}, s.slice())
	assert.Equal(t, "lookup, miss, fetch, store, deliver", s.String())
}

func TestEventRecordIsIdempotent(t *testing.T) {
	var s eventSet
	s.record(EventHit)
	s.record(EventHit)
	assert.Equal(t, []Event{EventHit}, s.slice())
}

func TestEventString(t *testing.T) {
	assert.Equal(t, "pass", EventPass.String())
	assert.Equal(t, "validate", EventValidate.String())
	assert.Equal(t, "error", EventError.String())
	assert.Equal(t, "unknown", Event(200).String())
}
