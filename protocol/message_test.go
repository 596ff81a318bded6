package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindString(t *testing.T) {
	assert.Equal(t, "announce", KindAnnounce.String())
	assert.Equal(t, "request", KindRequest.String())
	assert.Equal(t, "data", KindData.String())
	assert.Equal(t, "unknown", Kind(99).String())
}

func TestWithProtoReplacesHeaderOnly(t *testing.T) {
	dsc := ChunkDescriptor{FWType: 1, Version: 2, ChunkID: 3}
	orig := Announce{Proto: Proto{FromDevice: 1}, Dsc: dsc}

	updated := orig.WithProto(Proto{FromDevice: 9})

	assert.Equal(t, Proto{FromDevice: 9}, updated.GetProto())
	assert.Equal(t, dsc, updated.GetDsc())
	assert.Equal(t, Proto{FromDevice: 1}, orig.Proto, "WithProto must not mutate the receiver")
}

func TestDataCarriesPayload(t *testing.T) {
	d := Data{Dsc: ChunkDescriptor{ChunkID: 1}, Payload: []byte("hello")}
	assert.Equal(t, KindData, d.Kind())
	assert.Equal(t, []byte("hello"), d.Payload)
}
