package packet

import (
	"testing"

	"github.com/pulse-protocol/pulse-go/pkg/errdefs"
	"github.com/pulse-protocol/pulse-go/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderFields(t *testing.T) {
	tests := []struct {
		family, id uint32
		want       uint32
	}{
		{0, 0, 0x00000000},
		{0, 1, 0x00010000},
		{0, 4, 0x00040000},
		{3, 0, 0x0C000000},
		{MaxFamily, MaxID, 0xFFFF0000},
	}

	for _, tt := range tests {
		h := Header(tt.family, tt.id)
		assert.Equal(t, tt.want, h)
		assert.Equal(t, tt.family, Family(h))
		assert.Equal(t, tt.id, ID(h))
		assert.Zero(t, h&0xFFFF, "reserved bits stay clear")
	}
}

func TestEmptyPacket(t *testing.T) {
	var p Packet
	assert.True(t, p.IsEmpty())

	ack := New(FamilyControl, IDConnectionAck, nil)
	assert.False(t, ack.IsEmpty())
	assert.True(t, ack.Is(FamilyControl, IDConnectionAck))
	assert.Equal(t, uint32(0), ack.Length())
}

func TestEncodeDecode(t *testing.T) {
	for _, e := range []wire.Endianness{wire.BigEndian, wire.LittleEndian} {
		t.Run(e.String(), func(t *testing.T) {
			raw := Encode(PeriodicCounterCaptureHeader, []byte{1, 2, 3, 4, 5, 6}, e)
			require.Len(t, raw, HeaderSize+6)

			p, err := Decode(raw, e)
			require.NoError(t, err)
			assert.Equal(t, FamilyCapture, p.Family())
			assert.Equal(t, IDPeriodicCounterCapture, p.ID())
			assert.Equal(t, uint32(6), p.Length())
			assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, p.Data())
		})
	}
}

func TestDecodeTruncated(t *testing.T) {
	raw := Encode(CounterDirectoryHeader, make([]byte, 16), wire.BigEndian)
	_, err := Decode(raw[:12], wire.BigEndian)
	assert.ErrorIs(t, err, errdefs.ErrProtocol)

	_, err = Decode(raw[:4], wire.BigEndian)
	assert.ErrorIs(t, err, errdefs.ErrProtocol)
}

func TestName(t *testing.T) {
	assert.Equal(t, "StreamMetadata", Name(StreamMetadataHeader))
	assert.Equal(t, "PeriodicCounterCapture", Name(PeriodicCounterCaptureHeader))
	assert.Equal(t, "Unknown(5/9)", Name(Header(5, 9)))
}
