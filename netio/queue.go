// Package netio implements the simulator's communication substrate: a
// timestamped bounded FIFO (BoundedQueue), and the writer-tagged,
// loss-injected producer / single-consumer reader pair (WriteEnd / ReadEnd)
// built on top of it.
//
// BoundedQueue is implemented as a plain slice-backed FIFO, not a
// sorted-insert generic ring buffer: its entries only ever need
// append-at-tail and evict-oldest-at-head, never out-of-order insertion,
// so a sorted structure would import an ordering constraint with no call
// site.
package netio

import "github.com/ficap/rofi-upgrade-strategy-simulator/protocol"

// Clock is the read-only time source a BoundedQueue compares enqueue times
// against. simclock.View satisfies it.
type Clock interface {
	Now() int
}

// Envelope pairs a received message with the identity of the WriteEnd that
// sent it.
type Envelope struct {
	Writer protocol.DeviceID
	Msg    protocol.Message
}

type timestamped struct {
	enqueuedAt int
	item       Envelope
}

// BoundedQueue is an ordered sequence of (enqueue_time, item) pairs, with
// an optional maximum length. It has exactly one consumer and any number of
// producers, but relies on the simulator's single-threaded tick loop for
// safety: no internal locking.
type BoundedQueue struct {
	clock   Clock
	maxLen  int // 0 means unbounded
	items   []timestamped
	maxUsed int
}

// NewBoundedQueue constructs a queue that compares enqueue times against
// clock. maxLen of 0 means unbounded.
func NewBoundedQueue(clock Clock, maxLen int) *BoundedQueue {
	return &BoundedQueue{clock: clock, maxLen: maxLen}
}

// Push appends item, timestamped at the queue's clock's current time. If
// the queue is at capacity, the oldest entry is evicted to make room and
// its item is returned as overflow.
func (q *BoundedQueue) Push(item Envelope) (overflow Envelope, overflowed bool) {
	if q.maxLen > 0 && len(q.items) >= q.maxLen {
		overflow, _ = q.popLocked()
		overflowed = true
	}
	q.items = append(q.items, timestamped{enqueuedAt: q.clock.Now(), item: item})
	if len(q.items) > q.maxUsed {
		q.maxUsed = len(q.items)
	}
	return overflow, overflowed
}

// Pop removes and returns the head item, but only once it has been visible
// for at least one tick: an item enqueued at time t becomes poppable only
// once now > t. This gives every message a deterministic one-tick minimum
// delivery delay, and guarantees a sender and receiver can never exchange
// within the same tick.
func (q *BoundedQueue) Pop() (Envelope, bool) {
	if len(q.items) == 0 {
		return Envelope{}, false
	}
	head := q.items[0]
	if head.enqueuedAt >= q.clock.Now() {
		return Envelope{}, false
	}
	return q.popLocked()
}

func (q *BoundedQueue) popLocked() (Envelope, bool) {
	if len(q.items) == 0 {
		return Envelope{}, false
	}
	head := q.items[0]
	q.items = q.items[1:]
	return head.item, true
}

// Size returns the number of items currently queued.
func (q *BoundedQueue) Size() int {
	return len(q.items)
}

// MaxUsed returns the high-watermark of Size() ever observed.
func (q *BoundedQueue) MaxUsed() int {
	return q.maxUsed
}
