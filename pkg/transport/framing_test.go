package transport

import (
	"bytes"
	"errors"
	"testing"

	"github.com/pulse-protocol/pulse-go/pkg/errdefs"
	"github.com/pulse-protocol/pulse-go/pkg/log"
	"github.com/pulse-protocol/pulse-go/pkg/packet"
	"github.com/pulse-protocol/pulse-go/pkg/protocol"
	"github.com/pulse-protocol/pulse-go/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metadataPacket(e wire.Endianness) []byte {
	body := protocol.EncodeStreamMetadata(protocol.StreamMetadata{
		Version:        protocol.DefaultPacketVersions()[0].Version,
		MaxDataLength:  4096,
		PID:            77,
		ProcessName:    "test",
		PacketVersions: protocol.DefaultPacketVersions(),
	}, e)
	return packet.Encode(packet.StreamMetadataHeader, body, e)
}

func TestDetectingFramer(t *testing.T) {
	for _, e := range []wire.Endianness{wire.BigEndian, wire.LittleEndian} {
		t.Run(e.String(), func(t *testing.T) {
			var buf bytes.Buffer
			buf.Write(metadataPacket(e))
			sel := protocol.EncodePeriodicCounterSelection(protocol.PeriodicCounterSelection{Period: 1000, CounterIDs: []uint16{1}}, e)
			buf.Write(packet.Encode(packet.PeriodicCounterSelectionHeader, sel, e))

			f := NewDetectingFramer(&buf)
			assert.False(t, f.Detected())

			p, err := f.ReadPacket()
			require.NoError(t, err)
			assert.True(t, f.Detected())
			assert.Equal(t, e, f.Endianness())
			assert.Equal(t, packet.StreamMetadataHeader, p.Header())

			m, got, err := protocol.DecodeStreamMetadata(p.Data())
			require.NoError(t, err)
			assert.Equal(t, e, got)
			assert.Equal(t, uint32(77), m.PID)

			p, err = f.ReadPacket()
			require.NoError(t, err)
			assert.Equal(t, packet.PeriodicCounterSelectionHeader, p.Header())
			s, err := protocol.DecodePeriodicCounterSelection(p.Data(), f.Endianness())
			require.NoError(t, err)
			assert.Equal(t, uint32(1000), s.Period)
		})
	}
}

func TestDetectingFramerRejects(t *testing.T) {
	badMagic := metadataPacket(wire.BigEndian)
	badMagic[8] = 0

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"bad magic", badMagic, errdefs.ErrProtocol},
		{"not metadata", packet.Encode(packet.ConnectionAckHeader, []byte{0x45, 0x49, 0x54, 0x34}, wire.BigEndian), ErrNotMetadata},
		{"truncated", metadataPacket(wire.LittleEndian)[:20], ErrTruncated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewDetectingFramer(bytes.NewBuffer(tt.data))
			_, err := f.ReadPacket()
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFramerFixedEndianness(t *testing.T) {
	var buf bytes.Buffer
	f := NewFramer(&buf, wire.LittleEndian)

	require.NoError(t, f.Send(packet.ConnectionAckHeader, nil))
	require.NoError(t, f.Send(packet.PeriodicCounterCaptureHeader, []byte{1, 2, 3, 4}))
	assert.Equal(t, []byte{0, 0, 1, 0, 0, 0, 0, 0}, buf.Bytes()[:8])

	p, err := f.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, packet.ConnectionAckHeader, p.Header())
	assert.Nil(t, p.Data())

	p, err = f.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, p.Data())

	_, err = f.ReadPacket()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFramerBodyTooLarge(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(packet.Encode(packet.CounterDirectoryHeader, make([]byte, 64), wire.BigEndian))

	f := NewFramer(&buf, wire.BigEndian)
	f.SetMaxBodyLength(32)
	_, err := f.ReadPacket()
	assert.ErrorIs(t, err, ErrBodyTooLarge)
	assert.True(t, errors.Is(err, errdefs.ErrProtocol))
}

func TestFramerShortWrite(t *testing.T) {
	f := NewFramer(&bytes.Buffer{}, wire.BigEndian)
	assert.True(t, errors.Is(f.WritePacket([]byte{1, 2}), errdefs.ErrProtocol))
}

func TestFramerCapture(t *testing.T) {
	var events []log.Event
	var buf bytes.Buffer

	f := NewFramer(&buf, wire.BigEndian)
	f.SetLogger(log.LoggerFunc(func(e log.Event) { events = append(events, e) }), "conn-1", log.RoleClient)

	sel := protocol.EncodePeriodicCounterSelection(protocol.PeriodicCounterSelection{Period: 500, CounterIDs: []uint16{4, 5}}, wire.BigEndian)
	require.NoError(t, f.Send(packet.PeriodicCounterSelectionHeader, sel))
	_, err := f.ReadPacket()
	require.NoError(t, err)

	// One transport and one decoded event per direction.
	require.Len(t, events, 4)
	assert.Equal(t, log.DirectionOut, events[0].Direction)
	require.NotNil(t, events[0].Packet)
	assert.Equal(t, uint16(4), events[0].Packet.ID)
	require.NotNil(t, events[1].Decoded)
	assert.Equal(t, []uint16{4, 5}, events[1].Decoded.CounterIDs)
	assert.Equal(t, log.DirectionIn, events[2].Direction)
	assert.Equal(t, "conn-1", events[3].ConnectionID)
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "timeout", ErrorKind(errdefs.ErrTimeout))
	assert.Equal(t, "protocol", ErrorKind(ErrBodyTooLarge))
	assert.Equal(t, "transport", ErrorKind(ErrTruncated))
	assert.Equal(t, "", ErrorKind(errors.New("other")))
}

func TestPacketEventTruncates(t *testing.T) {
	p := packet.New(0, 2, make([]byte, MaxLogBodySize+10))
	ev := PacketEvent(p, wire.BigEndian)
	assert.True(t, ev.Truncated)
	assert.Len(t, ev.Data, MaxLogBodySize)
	assert.Equal(t, uint32(MaxLogBodySize+10), ev.Length)
}
