// Package device implements the gossip firmware-dissemination protocol run
// by a single network participant: advertising available chunks, pulling
// missing ones from neighbors, relaying on their behalf, and committing a
// fully assembled image atomically.
package device

import (
	"math"
	"sort"

	"github.com/ficap/rofi-upgrade-strategy-simulator/firmware"
	"github.com/ficap/rofi-upgrade-strategy-simulator/netio"
	"github.com/ficap/rofi-upgrade-strategy-simulator/protocol"
	"github.com/ficap/rofi-upgrade-strategy-simulator/simlog"
	"github.com/ficap/rofi-upgrade-strategy-simulator/ttlstore"
)

// ID identifies a device within one simulation run.
type ID = protocol.DeviceID

// Type identifies which firmware family a device runs and wants to
// receive upgrades for.
type Type = firmware.Type

// Clock is the read-only time source a Device compares timeouts against.
type Clock interface {
	Now() int
}

// OngoingUpgrade is the bookkeeping kept for one in-progress upgrade: the
// firmware identity being assembled, the candidate image collecting
// chunks, and when it last made forward progress.
type OngoingUpgrade struct {
	FWType       firmware.Type
	Version      firmware.Version
	Proto        protocol.Proto
	LastProgress int
	Candidate    firmware.Firmware
}

// Device is one node in the gossip network: it runs a fixed Type of
// firmware, holds a RunningFirmware image, and exchanges Announce/
// Request/Data messages with its Neighbors to both stay current itself
// and help others do the same, including relaying chunks of firmware
// types it doesn't itself run.
type Device struct {
	id      ID
	devType Type
	clock   Clock

	read      *netio.ReadEnd
	neighbors map[ID]*netio.WriteEnd
	// neighborOrder is neighbors' keys in ascending order, fixing the
	// broadcast fan-out order so that replaying the same seed against
	// the same topology reproduces the same sequence of RNG draws
	// regardless of Go's randomized map iteration order.
	neighborOrder []ID

	runningFirmware firmware.Firmware
	ongoing         *OngoingUpgrade

	chunkSize        int
	periodicAnnounce int
	lastAnnounce     int
	progressTimeout  int

	diffAnnouncesSeen *ttlstore.RecentlySeenStore[protocol.ChunkDescriptor]
	inFlightRequests  *ttlstore.RequestStore[protocol.ChunkDescriptor, ID]
	datasSeen         *ttlstore.RecentlySeenStore[protocol.ChunkDescriptor]

	// currentProto is the header of the message presently being handled,
	// serving as a fallback source of protocol parameters for replies
	// that don't have one of their own to send (e.g. a spontaneous
	// resolicitation outside of any message handler supplies its own;
	// replies within a handler inherit this one). Only valid between a
	// Tick's dispatch of a message and its return.
	currentProto    protocol.Proto
	hasCurrentProto bool

	metrics Metrics
	log     *simlog.Logger
}

// New constructs a Device. read is this device's inbound mailbox;
// neighbors maps each reachable peer id to the WriteEnd used to reach it.
// runningFirmware is the image the device starts out already holding.
func New(id ID, devType Type, read *netio.ReadEnd, neighbors map[ID]*netio.WriteEnd, runningFirmware firmware.Firmware, clock Clock, opts ...Option) *Device {
	cfg := resolveOptions(opts)

	neighborOrder := make([]ID, 0, len(neighbors))
	for n := range neighbors {
		neighborOrder = append(neighborOrder, n)
	}
	sort.Slice(neighborOrder, func(i, j int) bool { return neighborOrder[i] < neighborOrder[j] })

	d := &Device{
		id:               id,
		devType:          devType,
		clock:            clock,
		read:             read,
		neighbors:        neighbors,
		neighborOrder:    neighborOrder,
		runningFirmware:  runningFirmware,
		chunkSize:        cfg.chunkSize,
		periodicAnnounce: cfg.periodicAnnounce,
		lastAnnounce:     -cfg.periodicAnnounce,
		progressTimeout:  cfg.progressTimeout,
		metrics:          newMetrics(),
		log:              cfg.logger,
	}

	d.diffAnnouncesSeen = ttlstore.NewRecentlySeenStore[protocol.ChunkDescriptor](clock, d.periodicAnnounce/2, cfg.diffAnnouncesCapacity)
	d.inFlightRequests = ttlstore.NewRequestStore[protocol.ChunkDescriptor, ID](clock, d.progressTimeout/2, cfg.inFlightCapacity)
	d.datasSeen = ttlstore.NewRecentlySeenStore[protocol.ChunkDescriptor](clock, d.progressTimeout/2, cfg.datasSeenCapacity)

	return d
}

// ID returns the device's identity.
func (d *Device) ID() ID { return d.id }

// Type returns the firmware family this device runs.
func (d *Device) Type() Type { return d.devType }

// RunningFirmware returns the firmware image currently installed and
// serving requests.
func (d *Device) RunningFirmware() firmware.Firmware { return d.runningFirmware }

// Upgrading reports whether the device currently has an ongoing upgrade in
// progress toward a newer version.
func (d *Device) Upgrading() bool { return d.ongoing != nil }

// OngoingUpgrade returns the current upgrade's bookkeeping and true, or
// false if no upgrade is in progress.
func (d *Device) OngoingUpgrade() (OngoingUpgrade, bool) {
	if d.ongoing == nil {
		return OngoingUpgrade{}, false
	}
	return *d.ongoing, true
}

// Metrics returns this device's accumulated counters.
func (d *Device) Metrics() Metrics { return d.metrics }

// QueueDepth returns the number of messages currently waiting in this
// device's ingress mailbox.
func (d *Device) QueueDepth() int { return d.read.QueueDepth() }

// MaxQueueDepth returns the high-watermark ingress mailbox depth this
// device has ever reached.
func (d *Device) MaxQueueDepth() int { return d.read.MaxQueueDepth() }

// LostByKind returns how many outbound messages of kind were dropped for
// link loss, summed across every neighbor. Always 0 unless the simulator
// this device belongs to was built with debug mode enabled.
func (d *Device) LostByKind(kind protocol.Kind) int {
	n := 0
	for _, w := range d.neighbors {
		n += w.LostCount(kind)
	}
	return n
}

// OverflowedByKind returns how many messages of kind were evicted from a
// neighbor's ingress mailbox for capacity as a result of this device's
// sends, summed across every neighbor. Always 0 unless the simulator this
// device belongs to was built with debug mode enabled.
func (d *Device) OverflowedByKind(kind protocol.Kind) int {
	n := 0
	for _, w := range d.neighbors {
		n += w.OverflowedCount(kind)
	}
	return n
}

// DiffAnnouncesSeenMaxUsed returns the high-watermark size of the
// different-type-announce dedup store.
func (d *Device) DiffAnnouncesSeenMaxUsed() int { return d.diffAnnouncesSeen.MaxUsed() }

// InFlightRequestsMaxUsed returns the high-watermark size of the in-flight
// request tracking store.
func (d *Device) InFlightRequestsMaxUsed() int { return d.inFlightRequests.MaxUsed() }

// DatasSeenMaxUsed returns the high-watermark size of the foreign-data
// dedup store.
func (d *Device) DatasSeenMaxUsed() int { return d.datasSeen.MaxUsed() }

// Tick advances the device by one simulation step: it may emit a periodic
// announce, check for a stalled upgrade, and then process at most one
// inbound message.
func (d *Device) Tick() {
	d.periodicRunningFirmwareAnnouncer()
	d.upgradeProgressTimeoutHandler()

	msg, ok := d.tryReceiveMessage()
	if !ok {
		return
	}

	d.currentProto = msg.GetProto()
	d.hasCurrentProto = true
	defer func() {
		d.hasCurrentProto = false
	}()

	d.metrics.recordReceived(msg.Kind())

	if d.onBeforeMessage(msg) {
		return
	}

	switch m := msg.(type) {
	case protocol.Announce:
		d.onAnnounceMessage(m)
	case protocol.Request:
		d.onRequestMessage(m)
	case protocol.Data:
		d.onDataMessage(m)
	}
}

// onBeforeMessage runs ahead of the type-specific handlers and reports
// whether the message has already been fully handled (true) and should not
// be dispatched further.
//
// It rejects messages using a different chunk size outright. Any Data is
// fanned out to every device this device knows is waiting on it; foreign-type
// Data is first deduplicated, and then consumed here (this device will never
// install it itself), while own-type Data continues to the Data handler.
// Foreign-type Announce is deduplicated and re-broadcast so the chunk keeps
// propagating past this device; foreign-type Request is re-broadcast to
// every neighbor except its sender, unless a request for that chunk is
// already in flight. Own-type Announce and Request are not handled here.
func (d *Device) onBeforeMessage(msg protocol.Message) bool {
	if msg.GetProto().ChunkSize != d.chunkSize {
		return true
	}

	dsc := msg.GetDsc()

	if data, ok := msg.(protocol.Data); ok {
		foreign := dsc.FWType != int(d.devType)
		if foreign {
			if d.datasSeen.RecentlySeen(dsc) {
				return true
			}
			d.datasSeen.MarkRecentlySeen(dsc)
		}
		d.trySatisfyForeignRequests(dsc, data.Payload)
		if foreign {
			return true
		}
	}

	if dsc.FWType == int(d.devType) {
		return false
	}

	switch m := msg.(type) {
	case protocol.Announce:
		if !d.diffAnnouncesSeen.RecentlySeen(dsc) {
			d.diffAnnouncesSeen.MarkRecentlySeen(dsc)
			d.announceChunk(dsc, []ID{m.Proto.FromDevice}, nil)
		}
		return true

	case protocol.Request:
		d.requestChunkForDevice(m.Proto.FromDevice, dsc, nil)
		return true
	}

	return false
}

func (d *Device) onAnnounceMessage(m protocol.Announce) {
	if m.Dsc.FWType != int(d.devType) {
		return
	}
	if firmware.Version(m.Dsc.Version) <= d.runningFirmware.Version() {
		return
	}

	if !d.Upgrading() {
		d.initUpgrade(firmware.Type(m.Dsc.FWType), firmware.Version(m.Dsc.Version), m.Proto)
	}

	if firmware.Version(m.Dsc.Version) != d.ongoing.Version {
		return
	}

	if d.ongoing.Candidate.IsChunkPresent(firmware.ChunkID(m.Dsc.ChunkID)) {
		return
	}

	d.requestChunkFromDevice(m.Proto.FromDevice, m.Dsc)
	d.ongoing.LastProgress = d.clock.Now()
}

func (d *Device) onRequestMessage(m protocol.Request) {
	if m.Dsc.FWType != int(d.devType) {
		return
	}

	if firmware.Version(m.Dsc.Version) == d.runningFirmware.Version() {
		if !d.runningFirmware.IsChunkPresent(firmware.ChunkID(m.Dsc.ChunkID)) {
			return
		}
		payload, _ := d.runningFirmware.Chunk(firmware.ChunkID(m.Dsc.ChunkID))
		d.sendData(m.Dsc, m.Proto.FromDevice, payload)
		d.announceNextChunkToDevice(m.Dsc, m.Proto.FromDevice, d.runningFirmware)
		return
	}

	if !d.Upgrading() {
		return
	}

	if firmware.Version(m.Dsc.Version) != d.ongoing.Version {
		return
	}

	chunkID := firmware.ChunkID(m.Dsc.ChunkID)
	if !d.ongoing.Candidate.IsChunkPresent(chunkID) {
		if !d.ongoing.Candidate.IsValidChunkID(chunkID) {
			return
		}

		// This device wants the same chunk; rather than broadcast the
		// request twice, register the sender first (which triggers the
		// broadcast) and then fold this device's own wait onto it.
		d.requestChunkForDevice(m.Proto.FromDevice, m.Dsc, nil)
		d.requestChunkForDevice(d.id, m.Dsc, nil)
		return
	}

	payload, _ := d.ongoing.Candidate.Chunk(chunkID)
	d.sendData(m.Dsc, m.Proto.FromDevice, payload)
	d.announceNextChunkToDevice(m.Dsc, m.Proto.FromDevice, d.ongoing.Candidate)
}

func (d *Device) onDataMessage(m protocol.Data) {
	if m.Dsc.FWType != int(d.devType) {
		return
	}
	if !d.Upgrading() {
		return
	}

	chunkID := firmware.ChunkID(m.Dsc.ChunkID)
	if firmware.Version(m.Dsc.Version) != d.ongoing.Version ||
		!d.ongoing.Candidate.IsValidChunkID(chunkID) ||
		d.ongoing.Candidate.IsChunkPresent(chunkID) {
		return
	}

	d.ongoing.Candidate.SetChunk(chunkID, m.Payload)
	d.ongoing.LastProgress = d.clock.Now()

	d.inFlightRequests.MarkRequestInFlightFor(m.Dsc, d.id, false)

	d.announceChunk(m.Dsc, []ID{m.Proto.FromDevice}, nil)

	if d.ongoing.Candidate.IsComplete() {
		d.commitUpgrade()
	}
}

// upgradeProgressTimeoutHandler resolicits the first missing chunk of an
// ongoing upgrade once more than progressTimeout ticks have passed since its
// last progress (a chunk landing, or a Request sent in answer to an
// announce), so a stalled upgrade (e.g. every provider of the next chunk went
// offline) is not stuck waiting on an announce that will never repeat.
func (d *Device) upgradeProgressTimeoutHandler() {
	if !d.Upgrading() || d.clock.Now()-d.ongoing.LastProgress <= d.progressTimeout {
		return
	}

	u := d.ongoing
	dsc := protocol.ChunkDescriptor{
		FWType:  int(u.FWType),
		Version: int(u.Version),
		ChunkID: int(u.Candidate.GetFirstMissingChunk()),
	}
	d.requestChunkForDevice(d.id, dsc, &u.Proto)

	d.ongoing.LastProgress = d.clock.Now()
}

// periodicRunningFirmwareAnnouncer re-advertises chunk 0 of the running
// firmware once more than periodicAnnounce ticks have passed since the last
// announce, giving newly joined or
// long-quiescent neighbors a heartbeat to discover this device is current.
func (d *Device) periodicRunningFirmwareAnnouncer() {
	if d.clock.Now()-d.lastAnnounce <= d.periodicAnnounce {
		return
	}

	r := d.runningFirmware
	proto := protocol.Proto{
		ChunkSize: d.chunkSize,
		Chunks:    int(math.Ceil(float64(r.DataSize()) / float64(d.chunkSize))),
		FWSize:    r.DataSize(),
	}

	dsc := protocol.ChunkDescriptor{FWType: int(r.Type()), Version: int(r.Version()), ChunkID: 0}
	d.announceChunk(dsc, nil, &proto)
	d.lastAnnounce = d.clock.Now()
}

func (d *Device) initUpgrade(fwType firmware.Type, version firmware.Version, proto protocol.Proto) {
	d.ongoing = &OngoingUpgrade{
		FWType:       fwType,
		Version:      version,
		Proto:        proto,
		LastProgress: -1,
		Candidate:    firmware.NewSized(fwType, version, proto.Chunks, proto.FWSize),
	}
	d.log.Debug().
		Int(`device`, int(d.id)).
		Int(`version`, int(version)).
		Log(`upgrade started`)
}

func (d *Device) commitUpgrade() {
	d.runningFirmware = d.ongoing.Candidate
	d.ongoing = nil
	d.log.Info().
		Int(`device`, int(d.id)).
		Int(`version`, int(d.runningFirmware.Version())).
		Log(`upgrade committed`)
}

// announceChunk broadcasts an Announce for dsc to every neighbor not named
// in exclude. proto falls back to the currently-handled message's header
// if nil.
func (d *Device) announceChunk(dsc protocol.ChunkDescriptor, exclude []ID, proto *protocol.Proto) {
	p := d.resolveProto(proto)
	d.broadcastMessage(protocol.Announce{Proto: p, Dsc: dsc}, exclude)
}

func (d *Device) announceChunkToDevice(dsc protocol.ChunkDescriptor, to ID) {
	d.sendMessage(to, protocol.Announce{Proto: d.currentProto, Dsc: dsc})
}

// announceNextChunkToDevice advertises the next present chunk of firmware
// after current's, if one exists; otherwise it does nothing. The next
// chunk need not immediately follow the one just served.
func (d *Device) announceNextChunkToDevice(current protocol.ChunkDescriptor, to ID, fw firmware.Firmware) {
	next, ok := fw.GetNextChunkPresent(firmware.ChunkID(current.ChunkID))
	if !ok {
		return
	}
	d.announceChunkToDevice(protocol.ChunkDescriptor{FWType: current.FWType, Version: current.Version, ChunkID: int(next)}, to)
}

// requestChunkFromDevice asks from for dsc, but only actually sends the
// Request if nobody else is already waiting on it: any reply will be
// fanned out to every waiter by trySatisfyForeignRequests / onDataMessage.
func (d *Device) requestChunkFromDevice(from ID, dsc protocol.ChunkDescriptor) {
	inFlight := d.inFlightRequests.IsRequestInFlightForAnybody(dsc)
	d.inFlightRequests.MarkRequestInFlightFor(dsc, d.id, true)

	if !inFlight {
		d.sendMessage(from, protocol.Request{Proto: d.currentProto, Dsc: dsc})
	}
}

// requestChunkForDevice broadcasts (excluding the beneficiary) a request
// for dsc on behalf of forDevice, again suppressed if a request for dsc is
// already in flight for anybody.
func (d *Device) requestChunkForDevice(forDevice ID, dsc protocol.ChunkDescriptor, proto *protocol.Proto) {
	p := d.resolveProto(proto)

	inFlight := d.inFlightRequests.IsRequestInFlightForAnybody(dsc)
	d.inFlightRequests.MarkRequestInFlightFor(dsc, forDevice, true)

	if !inFlight {
		d.broadcastMessage(protocol.Request{Proto: p, Dsc: dsc}, []ID{forDevice})
	}
}

func (d *Device) sendData(dsc protocol.ChunkDescriptor, to ID, payload []byte) {
	d.sendMessage(to, protocol.Data{Proto: d.currentProto, Dsc: dsc, Payload: payload})
}

// trySatisfyForeignRequests hands data straight to every device known to be
// waiting on dsc (other than this one), clearing their in-flight mark as it
// goes. This is how a device relays chunks of a firmware type it doesn't
// itself run.
func (d *Device) trySatisfyForeignRequests(dsc protocol.ChunkDescriptor, payload []byte) {
	requesters := d.inFlightRequests.GetRequesters(dsc)
	dsts := make([]ID, 0, len(requesters))
	for dst := range requesters {
		if dst != d.id {
			dsts = append(dsts, dst)
		}
	}
	sort.Slice(dsts, func(i, j int) bool { return dsts[i] < dsts[j] })

	for _, dst := range dsts {
		d.inFlightRequests.MarkRequestInFlightFor(dsc, dst, false)
		d.sendMessage(dst, protocol.Data{Proto: d.currentProto, Dsc: dsc, Payload: payload})
	}
}

func (d *Device) sendMessage(to ID, msg protocol.Message) {
	d.metrics.recordSent(msg.Kind())
	w, ok := d.neighbors[to]
	if !ok {
		return
	}
	w.Write(msg)
}

func (d *Device) broadcastMessage(msg protocol.Message, exclude []ID) {
	excluded := make(map[ID]struct{}, len(exclude))
	for _, id := range exclude {
		excluded[id] = struct{}{}
	}
	for _, to := range d.neighborOrder {
		if _, skip := excluded[to]; skip {
			continue
		}
		d.sendMessage(to, msg)
	}
}

func (d *Device) tryReceiveMessage() (protocol.Message, bool) {
	env, ok := d.read.TryRead()
	if !ok {
		return nil, false
	}
	p := env.Msg.GetProto()
	p.FromDevice = env.Writer
	return env.Msg.WithProto(p), true
}

// resolveProto returns override if non-nil, else the header of the message
// currently being handled. Every call site that omits an explicit proto is
// only ever reached from within Tick's dispatch of a message, where
// hasCurrentProto is guaranteed true.
func (d *Device) resolveProto(override *protocol.Proto) protocol.Proto {
	if override != nil {
		return *override
	}
	return d.currentProto
}
