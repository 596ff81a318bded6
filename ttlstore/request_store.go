package ttlstore

import "container/list"

// RequestStore maps a key (a protocol.ChunkDescriptor, in this simulator) to
// the set of requester ids still awaiting a reply, with LRU eviction once
// capacity is reached. Expiry is checked only for the key being accessed;
// unlike RecentlySeenStore, inserting a new key does not purge other
// expired entries first.
type RequestStore[K comparable, ID comparable] struct {
	clock    Clock
	timeout  int
	capacity int // 0 means unbounded
	ll       *list.List
	index    map[K]*list.Element
	maxUsed  int
}

type requestEntry[K comparable, ID comparable] struct {
	key     K
	expiry  int
	devices map[ID]struct{}
}

// NewRequestStore constructs a store whose entries expire timeout ticks
// after their most recent mark, evicting the least-recently-used key once
// capacity is reached (0 = unbounded).
func NewRequestStore[K comparable, ID comparable](clock Clock, timeout, capacity int) *RequestStore[K, ID] {
	return &RequestStore[K, ID]{
		clock:    clock,
		timeout:  timeout,
		capacity: capacity,
		ll:       list.New(),
		index:    make(map[K]*list.Element),
	}
}

// GetRequesters returns a copy of the set of ids awaiting key, or an empty
// set if the entry is absent or expired. A copy is returned deliberately:
// callers fan out over the result while concurrently mutating the
// underlying store.
func (s *RequestStore[K, ID]) GetRequesters(key K) map[ID]struct{} {
	el, ok := s.index[key]
	if !ok || s.expired(el) {
		s.cleanup(key)
		return map[ID]struct{}{}
	}
	s.ll.MoveToFront(el)
	entry := el.Value.(*requestEntry[K, ID])
	cp := make(map[ID]struct{}, len(entry.devices))
	for id := range entry.devices {
		cp[id] = struct{}{}
	}
	return cp
}

// IsRequestInFlightForAnybody reports whether a live (unexpired,
// non-empty) entry exists for key.
func (s *RequestStore[K, ID]) IsRequestInFlightForAnybody(key K) bool {
	return s.cleanup(key)
}

// MarkRequestInFlightFor records that id is (or is no longer, if
// inFlight is false) awaiting key.
//
// When inFlight is false: id is removed from key's requester set; the
// entry is deleted outright if the set becomes empty or has expired.
//
// When inFlight is true: expired state is cleaned up first; if the store
// is at capacity and key is not already present, the least-recently-used
// entry is evicted; then key's entry is inserted/updated, its expiry is
// reset to now+timeout (regardless of whether it already existed), and id
// is added to its requester set.
func (s *RequestStore[K, ID]) MarkRequestInFlightFor(key K, id ID, inFlight bool) {
	if !inFlight {
		el, ok := s.index[key]
		if !ok {
			return
		}
		entry := el.Value.(*requestEntry[K, ID])
		delete(entry.devices, id)
		s.cleanup(key)
		return
	}

	s.cleanup(key)

	el, ok := s.index[key]
	if !ok {
		if s.capacity > 0 && len(s.index) >= s.capacity {
			s.evictOldest()
		}
		entry := &requestEntry[K, ID]{key: key, devices: make(map[ID]struct{})}
		el = s.ll.PushFront(entry)
		s.index[key] = el
		if len(s.index) > s.maxUsed {
			s.maxUsed = len(s.index)
		}
	} else {
		s.ll.MoveToFront(el)
	}

	entry := el.Value.(*requestEntry[K, ID])
	entry.expiry = s.clock.Now() + s.timeout
	entry.devices[id] = struct{}{}
}

// MaxUsed returns the high-watermark size this store has ever reached.
func (s *RequestStore[K, ID]) MaxUsed() int {
	return s.maxUsed
}

// expired reports whether el's entry's expiry has passed, without
// mutating the store.
func (s *RequestStore[K, ID]) expired(el *list.Element) bool {
	entry := el.Value.(*requestEntry[K, ID])
	return entry.expiry < s.clock.Now()
}

// cleanup removes key's entry if it is expired or its requester set is
// empty, and reports whether a live entry remains afterward.
func (s *RequestStore[K, ID]) cleanup(key K) bool {
	el, ok := s.index[key]
	if !ok {
		return false
	}
	entry := el.Value.(*requestEntry[K, ID])
	if entry.expiry < s.clock.Now() || len(entry.devices) == 0 {
		s.ll.Remove(el)
		delete(s.index, key)
		return false
	}
	s.ll.MoveToFront(el)
	return true
}

func (s *RequestStore[K, ID]) evictOldest() {
	el := s.ll.Back()
	if el == nil {
		return
	}
	entry := el.Value.(*requestEntry[K, ID])
	s.ll.Remove(el)
	delete(s.index, entry.key)
}
