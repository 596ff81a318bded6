// Package protocol defines the on-the-wire (in-process) message envelope and
// the three variants exchanged between devices: Announce, Request, and
// Data, modelled as a tagged sum (an interface implemented by three value
// types).
package protocol

// DeviceID identifies a device within one simulation run.
type DeviceID int

// ChunkDescriptor names one chunk of one version of one firmware type. It is
// comparable and used as a map key throughout (RecentlySeenStore,
// RequestStore).
type ChunkDescriptor struct {
	FWType  int
	Version int
	ChunkID int
}

// Proto is the per-message envelope header. FromDevice is always rewritten
// by the receiver from the transport-layer writer tag (see netio.Envelope);
// it must never be trusted as sent by the peer.
type Proto struct {
	FromDevice DeviceID
	ChunkSize  int
	Chunks     int
	FWSize     int
}

// Kind identifies a Message's variant, for instrumentation (package
// device's per-type send/receive/loss counters) without a type switch at
// every call site.
type Kind int

const (
	KindAnnounce Kind = iota
	KindRequest
	KindData
)

func (k Kind) String() string {
	switch k {
	case KindAnnounce:
		return "announce"
	case KindRequest:
		return "request"
	case KindData:
		return "data"
	default:
		return "unknown"
	}
}

// Message is the tagged sum of the three protocol message variants.
type Message interface {
	// Kind reports which variant this is.
	Kind() Kind
	// GetProto returns the message's envelope header.
	GetProto() Proto
	// GetDsc returns the chunk this message concerns.
	GetDsc() ChunkDescriptor
	// WithProto returns a copy of this message with its Proto replaced.
	// Used by the receiver to stamp the authoritative sender id onto an
	// otherwise-immutable message value: FromDevice is set by the
	// receiver from the writer tag, never trusted from the wire.
	WithProto(Proto) Message
}

// Announce advertises that the sender has ChunkDescriptor Dsc available.
type Announce struct {
	Proto Proto
	Dsc   ChunkDescriptor
}

func (m Announce) Kind() Kind                { return KindAnnounce }
func (m Announce) GetProto() Proto           { return m.Proto }
func (m Announce) GetDsc() ChunkDescriptor   { return m.Dsc }
func (m Announce) WithProto(p Proto) Message { m.Proto = p; return m }

// Request asks the recipient to send back the chunk described by Dsc.
type Request struct {
	Proto Proto
	Dsc   ChunkDescriptor
}

func (m Request) Kind() Kind                { return KindRequest }
func (m Request) GetProto() Proto           { return m.Proto }
func (m Request) GetDsc() ChunkDescriptor   { return m.Dsc }
func (m Request) WithProto(p Proto) Message { m.Proto = p; return m }

// Data carries the payload for the chunk described by Dsc.
type Data struct {
	Proto   Proto
	Dsc     ChunkDescriptor
	Payload []byte
}

func (m Data) Kind() Kind                { return KindData }
func (m Data) GetProto() Proto           { return m.Proto }
func (m Data) GetDsc() ChunkDescriptor   { return m.Dsc }
func (m Data) WithProto(p Proto) Message { m.Proto = p; return m }

var (
	_ Message = Announce{}
	_ Message = Request{}
	_ Message = Data{}
)
