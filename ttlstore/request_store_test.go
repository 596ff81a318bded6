package ttlstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkRequestInFlightTracksRequesters(t *testing.T) {
	clock := &fakeClock{}
	s := NewRequestStore[string, int](clock, 10, 0)

	s.MarkRequestInFlightFor("chunk", 1, true)
	s.MarkRequestInFlightFor("chunk", 2, true)

	requesters := s.GetRequesters("chunk")
	assert.Len(t, requesters, 2)
	_, ok1 := requesters[1]
	_, ok2 := requesters[2]
	assert.True(t, ok1)
	assert.True(t, ok2)
}

func TestMarkRequestNotInFlightRemovesRequester(t *testing.T) {
	clock := &fakeClock{}
	s := NewRequestStore[string, int](clock, 10, 0)

	s.MarkRequestInFlightFor("chunk", 1, true)
	s.MarkRequestInFlightFor("chunk", 1, false)

	assert.False(t, s.IsRequestInFlightForAnybody("chunk"))
}

func TestIsRequestInFlightForAnybodyExpires(t *testing.T) {
	clock := &fakeClock{}
	s := NewRequestStore[string, int](clock, 5, 0)

	s.MarkRequestInFlightFor("chunk", 1, true)
	require.True(t, s.IsRequestInFlightForAnybody("chunk"))

	clock.now = 6
	assert.False(t, s.IsRequestInFlightForAnybody("chunk"))
}

func TestGetRequestersReturnsIndependentCopy(t *testing.T) {
	clock := &fakeClock{}
	s := NewRequestStore[string, int](clock, 10, 0)
	s.MarkRequestInFlightFor("chunk", 1, true)

	copy1 := s.GetRequesters("chunk")
	delete(copy1, 1)

	assert.Len(t, s.GetRequesters("chunk"), 1, "mutating a returned copy must not affect the store")
}

func TestMarkRequestInFlightEvictsAtCapacity(t *testing.T) {
	clock := &fakeClock{}
	s := NewRequestStore[string, int](clock, 1000, 1)

	s.MarkRequestInFlightFor("a", 1, true)
	s.MarkRequestInFlightFor("b", 2, true) // evicts "a"

	assert.False(t, s.IsRequestInFlightForAnybody("a"))
	assert.True(t, s.IsRequestInFlightForAnybody("b"))
}
