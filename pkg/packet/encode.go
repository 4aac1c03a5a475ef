package packet

import (
	"github.com/pulse-protocol/pulse-go/pkg/errdefs"
	"github.com/pulse-protocol/pulse-go/pkg/wire"
)

// Encode returns the wire bytes of a packet with the given header and body.
func Encode(header uint32, body []byte, e wire.Endianness) []byte {
	w := wire.NewWriter(make([]byte, 0, HeaderSize+len(body)), e)
	w.Uint32(header)
	w.Uint32(uint32(len(body)))
	w.Raw(body)
	return w.Bytes()
}

// DecodeHeader decodes the 8 header bytes into word0 and body length.
func DecodeHeader(b []byte, e wire.Endianness) (header, length uint32, err error) {
	if len(b) < HeaderSize {
		return 0, 0, errdefs.Protocolf("short packet header: %d bytes", len(b))
	}
	order := e.ByteOrder()
	return order.Uint32(b[0:4]), order.Uint32(b[4:8]), nil
}

// Decode parses a complete wire packet held in b. The returned packet's body
// aliases b.
func Decode(b []byte, e wire.Endianness) (Packet, error) {
	header, length, err := DecodeHeader(b, e)
	if err != nil {
		return Packet{}, err
	}
	if uint64(len(b)-HeaderSize) < uint64(length) {
		return Packet{}, errdefs.Protocolf("packet %s declares %d body bytes, %d present",
			Name(header), length, len(b)-HeaderSize)
	}
	var data []byte
	if length > 0 {
		data = b[HeaderSize : HeaderSize+int(length)]
	}
	return Packet{header: header, length: length, data: data}, nil
}
