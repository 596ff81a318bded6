// Package simclock implements the simulator's logical clock: a monotonic,
// non-negative integer tick counter with a single writer (the simulation
// kernel) and many readers (devices, stores, queues).
package simclock

// Clock is the single writer of simulated time. Only the simulation kernel
// should hold one; every other component is handed a View.
type Clock struct {
	now int
}

// New returns a Clock starting at tick 0.
func New() *Clock {
	return &Clock{}
}

// Now returns the current tick.
func (c *Clock) Now() int {
	return c.now
}

// Tick advances the clock by one.
func (c *Clock) Tick() {
	c.now++
}

// View returns a read-only view of this clock.
func (c *Clock) View() View {
	return View{c: c}
}

// View is a read-only handle to a Clock, safe to pass to any component that
// must not be able to advance simulated time.
type View struct {
	c *Clock
}

// Now returns the current tick of the underlying Clock.
func (v View) Now() int {
	return v.c.now
}
