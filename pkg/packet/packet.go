// Package packet defines the atomic unit of the pulse wire protocol.
//
// A packet is an 8-byte header followed by a body:
//
//	word0: bits[31:26] family | bits[25:16] id | bits[15:0] reserved
//	word1: body length in bytes
//
// Both header words use the connection's byte order.
package packet

import (
	"fmt"
)

// HeaderSize is the size of the packet header in bytes.
const HeaderSize = 8

// Field limits.
const (
	MaxFamily = 0x3F
	MaxID     = 0x3FF
)

// Well-known packet families and ids.
const (
	FamilyControl uint32 = 0
	FamilyCapture uint32 = 3

	IDStreamMetadata           uint32 = 0
	IDConnectionAck            uint32 = 1
	IDCounterDirectory         uint32 = 2
	IDRequestCounterDirectory  uint32 = 3
	IDPeriodicCounterSelection uint32 = 4

	IDPeriodicCounterCapture uint32 = 0
)

// Header word0 values of the well-known packets.
var (
	StreamMetadataHeader           = Header(FamilyControl, IDStreamMetadata)
	ConnectionAckHeader            = Header(FamilyControl, IDConnectionAck)
	CounterDirectoryHeader         = Header(FamilyControl, IDCounterDirectory)
	RequestCounterDirectoryHeader  = Header(FamilyControl, IDRequestCounterDirectory)
	PeriodicCounterSelectionHeader = Header(FamilyControl, IDPeriodicCounterSelection)
	PeriodicCounterCaptureHeader   = Header(FamilyCapture, IDPeriodicCounterCapture)
)

// Header encodes family and id into header word0.
func Header(family, id uint32) uint32 {
	return (family&MaxFamily)<<26 | (id&MaxID)<<16
}

// Family extracts the packet family from header word0.
func Family(header uint32) uint32 {
	return (header >> 26) & MaxFamily
}

// ID extracts the packet id from header word0.
func ID(header uint32) uint32 {
	return (header >> 16) & MaxID
}

// Packet is a decoded packet. The zero value is the empty packet returned on timeouts.
//
// A Packet owns its body. Producers hand the body over when constructing the
// packet and must not touch it afterwards; consumers must not modify Data.
type Packet struct {
	header uint32
	length uint32
	data   []byte
}

// New creates a packet with the given family, id and body. The packet takes
// ownership of data.
func New(family, id uint32, data []byte) Packet {
	return Packet{header: Header(family, id), length: uint32(len(data)), data: data}
}

// FromHeader creates a packet from a raw header word0 and body, taking
// ownership of data.
func FromHeader(header uint32, data []byte) Packet {
	return Packet{header: header, length: uint32(len(data)), data: data}
}

// Header returns header word0.
func (p Packet) Header() uint32 {
	return p.header
}

// Family returns the packet family.
func (p Packet) Family() uint32 {
	return Family(p.header)
}

// ID returns the packet id.
func (p Packet) ID() uint32 {
	return ID(p.header)
}

// Length returns the body length.
func (p Packet) Length() uint32 {
	return p.length
}

// Data returns the body. The slice must be treated as read-only.
func (p Packet) Data() []byte {
	return p.data
}

// IsEmpty reports whether p is the empty packet.
func (p Packet) IsEmpty() bool {
	return p.header == 0 && p.length == 0 && p.data == nil
}

// Is reports whether p carries the given family and id.
func (p Packet) Is(family, id uint32) bool {
	return p.Family() == family && p.ID() == id
}

// String returns a short description for logs.
func (p Packet) String() string {
	return fmt.Sprintf("packet(family=%d id=%d len=%d)", p.Family(), p.ID(), p.length)
}

// Name returns a human-readable name for well-known headers.
func Name(header uint32) string {
	switch header {
	case StreamMetadataHeader:
		return "StreamMetadata"
	case ConnectionAckHeader:
		return "ConnectionAck"
	case CounterDirectoryHeader:
		return "CounterDirectory"
	case RequestCounterDirectoryHeader:
		return "RequestCounterDirectory"
	case PeriodicCounterSelectionHeader:
		return "PeriodicCounterSelection"
	case PeriodicCounterCaptureHeader:
		return "PeriodicCounterCapture"
	default:
		return fmt.Sprintf("Unknown(%d/%d)", Family(header), ID(header))
	}
}
