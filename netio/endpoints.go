package netio

import "github.com/ficap/rofi-upgrade-strategy-simulator/protocol"

// RandSource is the minimal random source WriteEnd needs to draw a loss
// decision. It is satisfied by *rand.Rand (math/rand), injected by the
// simulator so every link-loss draw comes from one seeded, reproducible
// generator rather than a hidden package-global one.
type RandSource interface {
	// Float64 returns a pseudo-random number in [0.0, 1.0).
	Float64() float64
}

// ReadEnd is the single-consumer side of one device's inbound mailbox. All
// of a device's neighbors mint WriteEnds over the same ReadEnd's queue: the
// mailbox is modelled per device, not per link.
type ReadEnd struct {
	clock  Clock
	queue  *BoundedQueue
	debug  bool
	seen   []Envelope // debug-mode record of received messages
}

// NewReadEnd constructs a ReadEnd backed by a fresh BoundedQueue of the
// given capacity (0 = unbounded).
func NewReadEnd(clock Clock, maxLen int, debug bool) *ReadEnd {
	return &ReadEnd{
		clock: clock,
		queue: NewBoundedQueue(clock, maxLen),
		debug: debug,
	}
}

// NewWriteEnd mints a writer tagged with writerID and write reliability
// (probability in [0,1] that any given Write actually reaches the queue),
// that will deliver onto this ReadEnd's underlying queue.
func (r *ReadEnd) NewWriteEnd(writerID protocol.DeviceID, writeReliability float64, rng RandSource) *WriteEnd {
	return &WriteEnd{
		queue:            r.queue,
		writerID:         writerID,
		writeReliability: writeReliability,
		rng:              rng,
		debug:            r.debug,
	}
}

// TryRead pops at most one (writer, message) pair, subject to the
// underlying queue's one-tick-minimum-delay Pop semantics. It returns
// false if nothing is deliverable yet.
func (r *ReadEnd) TryRead() (Envelope, bool) {
	env, ok := r.queue.Pop()
	if ok && r.debug {
		r.seen = append(r.seen, env)
	}
	return env, ok
}

// QueueDepth returns the number of messages currently queued, unconsumed.
func (r *ReadEnd) QueueDepth() int {
	return r.queue.Size()
}

// MaxQueueDepth returns the high-watermark queue depth ever observed.
func (r *ReadEnd) MaxQueueDepth() int {
	return r.queue.MaxUsed()
}

// Received returns the debug-mode log of every message this ReadEnd has
// ever handed back via TryRead. Empty unless the ReadEnd was built with
// debug enabled.
func (r *ReadEnd) Received() []Envelope {
	return r.seen
}

// WriteEnd is one neighbor's lossy, writer-tagged handle onto a ReadEnd's
// queue. All WriteEnds minted for a given target device's ReadEnd share
// that one underlying BoundedQueue; loss is modelled per-writer, here.
type WriteEnd struct {
	queue            *BoundedQueue
	writerID         protocol.DeviceID
	writeReliability float64
	rng              RandSource
	debug            bool

	sent       []protocol.Message
	lost       []protocol.Message
	overflowed []Envelope
}

// Write attempts to deliver msg. With probability WriteReliability it is
// pushed onto the destination queue (tagged with this WriteEnd's writer
// id); otherwise it is silently dropped. A successful push that overflows
// the destination's capacity records the evicted entry, in debug mode.
func (w *WriteEnd) Write(msg protocol.Message) {
	success := w.writeReliability >= 1 || w.rng.Float64() < w.writeReliability
	if !success {
		if w.debug {
			w.lost = append(w.lost, msg)
		}
		return
	}

	if w.debug {
		w.sent = append(w.sent, msg)
	}

	overflow, overflowed := w.queue.Push(Envelope{Writer: w.writerID, Msg: msg})
	if overflowed && w.debug {
		w.overflowed = append(w.overflowed, overflow)
	}
}

// WriterID returns the device id this WriteEnd is tagged with.
func (w *WriteEnd) WriterID() protocol.DeviceID {
	return w.writerID
}

// Sent, Lost, and Overflowed return the debug-mode logs of every message
// this WriteEnd has pushed onto the queue, dropped for loss, and evicted for capacity,
// respectively. Empty unless debug mode was enabled at construction.
func (w *WriteEnd) Sent() []protocol.Message { return w.sent }
func (w *WriteEnd) Lost() []protocol.Message { return w.lost }
func (w *WriteEnd) Overflowed() []Envelope   { return w.overflowed }

// LostCount returns how many of this WriteEnd's dropped-for-loss messages
// were of kind. Always 0 unless debug mode was enabled at construction.
func (w *WriteEnd) LostCount(kind protocol.Kind) int {
	n := 0
	for _, m := range w.lost {
		if m.Kind() == kind {
			n++
		}
	}
	return n
}

// OverflowedCount returns how many of this WriteEnd's evicted-for-capacity
// messages were of kind. Always 0 unless debug mode was enabled at
// construction.
func (w *WriteEnd) OverflowedCount(kind protocol.Kind) int {
	n := 0
	for _, e := range w.overflowed {
		if e.Msg.Kind() == kind {
			n++
		}
	}
	return n
}
