package device

import (
	"github.com/ficap/rofi-upgrade-strategy-simulator/simlog"
)

// config holds the resolved configuration for a new Device.
type config struct {
	chunkSize            int
	periodicAnnounce      int
	progressTimeout       int
	diffAnnouncesCapacity int
	inFlightCapacity      int
	datasSeenCapacity     int
	logger                *simlog.Logger
}

func defaultConfig() config {
	return config{
		chunkSize:        1,
		periodicAnnounce: 100,
		progressTimeout:  100,
	}
}

// Option configures a Device at construction time.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

// WithChunkSize overrides the fixed chunk payload size every firmware on
// this device is split into. Defaults to 1.
func WithChunkSize(size int) Option {
	return optionFunc(func(c *config) {
		c.chunkSize = size
	})
}

// WithPeriodicAnnounceInterval overrides how often, in ticks, a device
// re-advertises its running firmware's first chunk. Defaults to 100.
func WithPeriodicAnnounceInterval(ticks int) Option {
	return optionFunc(func(c *config) {
		c.periodicAnnounce = ticks
	})
}

// WithProgressTimeout overrides how many ticks an ongoing upgrade may go
// without forward progress before the device resolicits its first missing
// chunk. Defaults to 100.
func WithProgressTimeout(ticks int) Option {
	return optionFunc(func(c *config) {
		c.progressTimeout = ticks
	})
}

// WithDedupStoreCapacities overrides the maximum entry counts of the three
// internal LRU stores (duplicate-announce suppression, in-flight request
// tracking, duplicate-foreign-data suppression). 0 means unbounded, which
// is also the default.
func WithDedupStoreCapacities(diffAnnounces, inFlight, datasSeen int) Option {
	return optionFunc(func(c *config) {
		c.diffAnnouncesCapacity = diffAnnounces
		c.inFlightCapacity = inFlight
		c.datasSeenCapacity = datasSeen
	})
}

// WithLogger attaches a structured logger. A nil logger (or omitting this
// option) leaves the device logging to a discarded sink.
func WithLogger(l *simlog.Logger) Option {
	return optionFunc(func(c *config) {
		if l != nil {
			c.logger = l
		}
	})
}

func resolveOptions(opts []Option) config {
	c := defaultConfig()
	for _, o := range opts {
		if o == nil {
			continue
		}
		o.apply(&c)
	}
	if c.logger == nil {
		c.logger = simlog.Discard()
	}
	return c
}
