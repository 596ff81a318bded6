package sim

import (
	"math/rand"

	"github.com/ficap/rofi-upgrade-strategy-simulator/device"
	"github.com/ficap/rofi-upgrade-strategy-simulator/simclock"
	"github.com/ficap/rofi-upgrade-strategy-simulator/simlog"
)

// Watcher observes the device population after every tick (including tick
// 0, before anything has run, and the final tick once a stop condition is
// met). It is typically used to drive a progress display or collect
// per-tick samples; it must not mutate the devices it's given.
type Watcher func(devices []*device.Device)

// StopCondition reports whether a run should end, given the current
// device population. Checked before each tick — if already true at the
// moment of the call, the simulation advances no further ticks.
type StopCondition func(devices []*device.Device) bool

// Simulator drives a fixed population of devices through discrete ticks:
// every tick, each device processes at most one inbound message and the
// clock advances by one.
type Simulator struct {
	clock   *simclock.Clock
	devices []*device.Device
	shuffle bool
	rng     *rand.Rand
	watcher Watcher
	log     *simlog.Logger
}

// Devices returns the simulator's device population, in construction
// order.
func (s *Simulator) Devices() []*device.Device { return s.devices }

// Now returns the current tick count.
func (s *Simulator) Now() int { return s.clock.Now() }

// AttachWatcher installs w to be called after every tick (and once before
// the first). Replaces any previously attached watcher.
func (s *Simulator) AttachWatcher(w Watcher) {
	s.watcher = w
}

// DetachWatcher removes any attached watcher.
func (s *Simulator) DetachWatcher() {
	s.watcher = nil
}

// RunFor advances the simulation by exactly ticks ticks from its current
// point, regardless of device state.
func (s *Simulator) RunFor(ticks int) {
	startAt := s.clock.Now()
	s.RunUntil(func([]*device.Device) bool {
		return s.clock.Now()-startAt >= ticks
	})
}

// RunUntil advances the simulation, one tick at a time, until stop reports
// true. stop is checked before every tick, including the first — if it is
// already satisfied, RunUntil returns without advancing the clock.
func (s *Simulator) RunUntil(stop StopCondition) {
	for !stop(s.devices) {
		s.notifyWatcher()

		order := s.tickOrder()
		for _, i := range order {
			s.devices[i].Tick()
		}
		s.clock.Tick()
	}
	s.notifyWatcher()
}

func (s *Simulator) notifyWatcher() {
	if s.watcher != nil {
		s.watcher(s.devices)
	}
}

// tickOrder returns the index order devices are ticked in this round:
// ascending by default, or a fresh Fisher-Yates permutation drawn from the
// simulator's seeded RNG when shuffling is enabled.
func (s *Simulator) tickOrder() []int {
	order := make([]int, len(s.devices))
	for i := range order {
		order[i] = i
	}
	if !s.shuffle {
		return order
	}
	s.rng.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	return order
}
