// Package firmware models a versioned firmware image as a fixed-length
// sequence of chunks, some of which may still be missing while an upgrade
// is in flight. Presence of each chunk is tracked explicitly, separate
// from its payload, so a chunk slot can be addressed before its data
// arrives.
package firmware

// Type identifies a firmware family. Devices of different Type never adopt
// each other's firmware.
type Type int

// Version is a monotonically increasing (per Type) revision number.
type Version int

// ChunkID addresses one chunk within a Firmware, in [0, Firmware.Size()).
type ChunkID int

// Well-known firmware types, used by scenario fixtures. Callers are free
// to use any other int value; these are conveniences, not required.
const (
	TypeA Type = 1
	TypeB Type = 2
)

// Firmware is a versioned image split into fixed-size chunks. Chunks may be
// filled in any order; Firmware tracks which are present separately from
// their payload. dataSize is the image's total byte size, independent of
// chunk count, and is carried along purely for advertising in a Proto
// header; it plays no part in chunk bookkeeping.
type Firmware struct {
	fwType   Type
	version  Version
	present  []bool
	data     [][]byte
	dataSize int
}

// New constructs a Firmware of the given type, version and chunk count,
// with every chunk missing. A size of 0 is a degenerate but valid
// (trivially complete) firmware. DataSize defaults to size; use
// NewSized to record a true byte size distinct from the chunk count.
func New(fwType Type, version Version, size int) Firmware {
	return NewSized(fwType, version, size, size)
}

// NewSized is New, but with an explicit total byte size distinct from the
// chunk count.
func NewSized(fwType Type, version Version, size, dataSize int) Firmware {
	return Firmware{
		fwType:   fwType,
		version:  version,
		present:  make([]bool, size),
		data:     make([][]byte, size),
		dataSize: dataSize,
	}
}

// Complete constructs a Firmware of the given type and version with every
// chunk already present, filled with zero-length payloads. Used to seed a
// device's initial running firmware when only the shape, not the content,
// matters to the simulation.
func Complete(fwType Type, version Version, size int) Firmware {
	fw := New(fwType, version, size)
	for i := range fw.present {
		fw.present[i] = true
		fw.data[i] = []byte{}
	}
	return fw
}

// Type returns the firmware's type tag.
func (f Firmware) Type() Type { return f.fwType }

// Version returns the firmware's version.
func (f Firmware) Version() Version { return f.version }

// Size returns the fixed number of chunk slots.
func (f Firmware) Size() int { return len(f.present) }

// DataSize returns the image's total byte size, as recorded at
// construction.
func (f Firmware) DataSize() int { return f.dataSize }

// IsComplete reports whether every chunk slot is filled.
func (f Firmware) IsComplete() bool {
	for _, p := range f.present {
		if !p {
			return false
		}
	}
	return true
}

// IsValidChunkID reports whether id addresses a slot of this firmware.
func (f Firmware) IsValidChunkID(id ChunkID) bool {
	return id >= 0 && int(id) < len(f.present)
}

// IsChunkPresent reports whether the chunk at id has been filled. An
// out-of-range id is reported as absent rather than panicking.
func (f Firmware) IsChunkPresent(id ChunkID) bool {
	if !f.IsValidChunkID(id) {
		return false
	}
	return f.present[id]
}

// Chunk returns the payload stored at id, if present.
func (f Firmware) Chunk(id ChunkID) ([]byte, bool) {
	if !f.IsChunkPresent(id) {
		return nil, false
	}
	return f.data[id], true
}

// SetChunk fills the chunk at id with payload. It is a no-op if id is out
// of range; callers are expected to have validated id via IsValidChunkID
// first, as the protocol handlers in package device do.
func (f *Firmware) SetChunk(id ChunkID, payload []byte) {
	if !f.IsValidChunkID(id) {
		return
	}
	f.present[id] = true
	f.data[id] = payload
}

// GetMissingChunks returns every chunk id that is not yet present, in
// ascending order.
func (f Firmware) GetMissingChunks() []ChunkID {
	var missing []ChunkID
	for i, p := range f.present {
		if !p {
			missing = append(missing, ChunkID(i))
		}
	}
	return missing
}

// GetFirstMissingChunk returns the lowest missing chunk id. It panics if
// the firmware is already complete; callers must guard with IsComplete (or
// know structurally that at least one chunk is missing).
func (f Firmware) GetFirstMissingChunk() ChunkID {
	for i, p := range f.present {
		if !p {
			return ChunkID(i)
		}
	}
	panic("firmware: GetFirstMissingChunk called on a complete firmware")
}

// GetNextChunkPresent returns the lowest chunk id strictly greater than
// after whose slot is filled, or false if there is none. It deliberately
// never returns after itself: callers use this to hint at the next chunk
// to serve, and rely on strict forward progress to avoid looping on the
// chunk just served.
func (f Firmware) GetNextChunkPresent(after ChunkID) (ChunkID, bool) {
	for i := int(after) + 1; i < len(f.present); i++ {
		if f.present[i] {
			return ChunkID(i), true
		}
	}
	return 0, false
}
