package wire

import (
	"encoding/binary"

	"github.com/pulse-protocol/pulse-go/pkg/errdefs"
)

// PipeMagic is the first word of every stream metadata body.
const PipeMagic uint32 = 0x45495434

// Endianness is the byte order negotiated for a connection.
type Endianness uint8

const (
	// BigEndian means most significant byte first.
	BigEndian Endianness = iota
	// LittleEndian means least significant byte first.
	LittleEndian
)

// String returns the endianness name.
func (e Endianness) String() string {
	switch e {
	case BigEndian:
		return "BIG_ENDIAN"
	case LittleEndian:
		return "LITTLE_ENDIAN"
	default:
		return "UNKNOWN"
	}
}

// ByteOrder returns the encoding/binary order for e.
func (e Endianness) ByteOrder() binary.ByteOrder {
	return e.order()
}

type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

func (e Endianness) order() byteOrder {
	if e == LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// Native returns the byte order of the host.
func Native() Endianness {
	var probe [2]byte
	binary.NativeEndian.PutUint16(probe[:], 1)
	if probe[0] == 1 {
		return LittleEndian
	}
	return BigEndian
}

// ParseEndianness maps "big", "little" or "native" to an Endianness.
func ParseEndianness(s string) (Endianness, error) {
	switch s {
	case "big", "be", "BIG_ENDIAN":
		return BigEndian, nil
	case "little", "le", "LITTLE_ENDIAN":
		return LittleEndian, nil
	case "", "native":
		return Native(), nil
	default:
		return BigEndian, errdefs.Validationf("unknown endianness %q", s)
	}
}

// DetectEndianness inspects the first four bytes of a stream metadata body.
// Big-endian is tried first; anything that is not the magic in either order
// is a protocol error.
func DetectEndianness(b []byte) (Endianness, error) {
	if len(b) < 4 {
		return BigEndian, errdefs.Protocolf("stream metadata too short for magic: %d bytes", len(b))
	}
	if binary.BigEndian.Uint32(b) == PipeMagic {
		return BigEndian, nil
	}
	if binary.LittleEndian.Uint32(b) == PipeMagic {
		return LittleEndian, nil
	}
	return BigEndian, errdefs.Protocolf("bad stream magic %#08x", binary.BigEndian.Uint32(b))
}
