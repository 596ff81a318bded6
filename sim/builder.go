package sim

import (
	"fmt"
	"math/rand"

	"github.com/ficap/rofi-upgrade-strategy-simulator/device"
	"github.com/ficap/rofi-upgrade-strategy-simulator/firmware"
	"github.com/ficap/rofi-upgrade-strategy-simulator/netio"
	"github.com/ficap/rofi-upgrade-strategy-simulator/simclock"
	"github.com/ficap/rofi-upgrade-strategy-simulator/simlog"
)

// NodeOverride customizes a single node's starting firmware and/or outbound
// link reliability, overriding Builder's defaults for that node only.
type NodeOverride struct {
	RunningFirmware *firmware.Firmware
	LinkReliability *float64
}

// Builder assembles a Simulator from a Graph plus per-node defaults and
// overrides. Its fluent With* methods mirror the fixed construction order
// a graph-backed simulation always needs: topology, defaults, overrides,
// then transport/runtime knobs.
type Builder struct {
	graph                  Graph
	defaultDeviceType      device.Type
	defaultRunningFirmware firmware.Firmware
	hasDefaultFirmware     bool
	defaultLinkReliability float64
	debug                  bool
	queueMaxLen            int
	shuffle                bool
	seed                   int64
	overrides              map[NodeLabel]NodeOverride
	deviceOptions          []device.Option
	logger                 *simlog.Logger
}

// NewBuilder constructs a Builder with reliability 1.0 and no queue bound.
func NewBuilder() *Builder {
	return &Builder{
		defaultLinkReliability: 1,
		overrides:              make(map[NodeLabel]NodeOverride),
	}
}

// WithGraph sets the network topology. Required.
func (b *Builder) WithGraph(g Graph) *Builder {
	b.graph = g
	return b
}

// WithDefaultRunningFirmware sets the firmware every node starts with,
// absent a per-node override.
func (b *Builder) WithDefaultRunningFirmware(fw firmware.Firmware) *Builder {
	b.defaultRunningFirmware = fw
	b.hasDefaultFirmware = true
	return b
}

// WithDefaultDeviceType sets the firmware type every node runs, absent a
// per-node override.
func (b *Builder) WithDefaultDeviceType(t device.Type) *Builder {
	b.defaultDeviceType = t
	return b
}

// WithDefaultLinkReliability sets the probability, in [0,1], that any
// message a node writes actually reaches its destination's queue.
func (b *Builder) WithDefaultLinkReliability(r float64) *Builder {
	b.defaultLinkReliability = r
	return b
}

// WithDebug enables per-endpoint send/receive/loss/overflow logs, at the
// cost of retaining every message ever seen.
func (b *Builder) WithDebug(debug bool) *Builder {
	b.debug = debug
	return b
}

// WithBoundedQueues caps every node's ingress mailbox at maxLen messages,
// oldest-evicted on overflow. 0 (the default) means unbounded.
func (b *Builder) WithBoundedQueues(maxLen int) *Builder {
	b.queueMaxLen = maxLen
	return b
}

// WithShuffle randomizes device tick order every simulated tick, instead of
// the fixed graph-node order.
func (b *Builder) WithShuffle(shuffle bool) *Builder {
	b.shuffle = shuffle
	return b
}

// WithSeed sets the single RNG seed driving both link-loss draws and (if
// enabled) tick-order shuffling, for reproducible runs.
func (b *Builder) WithSeed(seed int64) *Builder {
	b.seed = seed
	return b
}

// WithNodeOverride customizes a single node's firmware and/or link
// reliability.
func (b *Builder) WithNodeOverride(label NodeLabel, override NodeOverride) *Builder {
	b.overrides[label] = override
	return b
}

// WithDeviceOptions passes additional options through to every constructed
// device.Device (e.g. device.WithChunkSize, device.WithProgressTimeout).
func (b *Builder) WithDeviceOptions(opts ...device.Option) *Builder {
	b.deviceOptions = append(b.deviceOptions, opts...)
	return b
}

// WithLogger attaches a structured logger shared by the Simulator and
// every device it builds.
func (b *Builder) WithLogger(l *simlog.Logger) *Builder {
	b.logger = l
	return b
}

// Build assembles the configured topology into a runnable Simulator.
func (b *Builder) Build() (*Simulator, error) {
	if b.graph == nil {
		return nil, &BuildError{Op: OpNoGraph, Message: "WithGraph was never called"}
	}

	nodes := b.graph.Nodes()
	seen := make(map[NodeLabel]struct{}, len(nodes))
	for _, n := range nodes {
		if _, dup := seen[n]; dup {
			return nil, &BuildError{Op: OpDuplicateNode, Message: fmt.Sprintf("node %v appears more than once in Graph.Nodes()", n)}
		}
		seen[n] = struct{}{}
	}

	for _, n := range nodes {
		if !b.hasDefaultFirmware && b.overrides[n].RunningFirmware == nil {
			return nil, &BuildError{Op: OpMissingFirmware, Message: fmt.Sprintf("node %v has no running firmware: call WithDefaultRunningFirmware or WithNodeOverride", n)}
		}
	}

	logger := b.logger
	if logger == nil {
		logger = simlog.Discard()
	}

	clock := simclock.New()
	cv := clock.View()
	rng := rand.New(rand.NewSource(b.seed))

	ids := make(map[NodeLabel]device.ID, len(nodes))
	for i, n := range nodes {
		ids[n] = device.ID(i)
	}

	reads := make(map[NodeLabel]*netio.ReadEnd, len(nodes))
	for _, n := range nodes {
		reads[n] = netio.NewReadEnd(cv, b.queueMaxLen, b.debug)
	}

	devices := make([]*device.Device, 0, len(nodes))
	for _, n := range nodes {
		override := b.overrides[n]

		fw := b.defaultRunningFirmware
		if override.RunningFirmware != nil {
			fw = *override.RunningFirmware
		}

		reliability := b.defaultLinkReliability
		if override.LinkReliability != nil {
			reliability = *override.LinkReliability
		}

		devType := b.defaultDeviceType
		if override.RunningFirmware != nil {
			devType = override.RunningFirmware.Type()
		}

		neighbors := make(map[device.ID]*netio.WriteEnd, len(b.graph.Neighbors(n)))
		for _, neighborLabel := range b.graph.Neighbors(n) {
			neighbors[ids[neighborLabel]] = reads[neighborLabel].NewWriteEnd(ids[n], reliability, rng)
		}

		opts := append([]device.Option{device.WithLogger(logger)}, b.deviceOptions...)
		devices = append(devices, device.New(ids[n], devType, reads[n], neighbors, fw, cv, opts...))
	}

	return &Simulator{
		clock:   clock,
		devices: devices,
		shuffle: b.shuffle,
		rng:     rng,
		log:     logger,
	}, nil
}
