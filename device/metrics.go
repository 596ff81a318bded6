package device

import "github.com/ficap/rofi-upgrade-strategy-simulator/protocol"

// Metrics accumulates per-device message counters. Every call that would
// mutate a counter is single-threaded (one device, one tick loop), so no
// locking is needed.
type Metrics struct {
	sent     [3]int // indexed by protocol.Kind
	received [3]int
}

func newMetrics() Metrics {
	return Metrics{}
}

func (m *Metrics) recordSent(kind protocol.Kind) {
	m.sent[kind]++
}

func (m *Metrics) recordReceived(kind protocol.Kind) {
	m.received[kind]++
}

// Sent returns the number of messages of kind this device has sent.
func (m Metrics) Sent(kind protocol.Kind) int { return m.sent[kind] }

// Received returns the number of messages of kind this device has accepted
// off its ingress queue.
func (m Metrics) Received(kind protocol.Kind) int { return m.received[kind] }
