package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pulse-protocol/pulse-go/pkg/errdefs"
)

// ErrOutOfBounds indicates a field or offset that lies outside the body.
var ErrOutOfBounds = fmt.Errorf("%w: offset out of bounds", errdefs.ErrProtocol)

// Reader decodes fields at absolute offsets of a packet body.
// Offsets are used instead of a cursor because pointer tables reference
// records anywhere in the body.
type Reader struct {
	data   []byte
	order  binary.ByteOrder
	endian Endianness
}

// NewReader returns a Reader over data using byte order e.
func NewReader(data []byte, e Endianness) *Reader {
	return &Reader{data: data, order: e.ByteOrder(), endian: e}
}

// Endianness returns the byte order of the reader.
func (r *Reader) Endianness() Endianness {
	return r.endian
}

// Len returns the body length.
func (r *Reader) Len() int {
	return len(r.data)
}

func (r *Reader) check(off, n int) error {
	if off < 0 || n < 0 || off > len(r.data) || len(r.data)-off < n {
		return fmt.Errorf("%w: %d+%d > %d", ErrOutOfBounds, off, n, len(r.data))
	}
	return nil
}

// Uint16 reads a 16-bit word at off.
func (r *Reader) Uint16(off int) (uint16, error) {
	if err := r.check(off, 2); err != nil {
		return 0, err
	}
	return r.order.Uint16(r.data[off:]), nil
}

// Uint32 reads a 32-bit word at off.
func (r *Reader) Uint32(off int) (uint32, error) {
	if err := r.check(off, 4); err != nil {
		return 0, err
	}
	return r.order.Uint32(r.data[off:]), nil
}

// Uint64 reads a 64-bit word at off.
func (r *Reader) Uint64(off int) (uint64, error) {
	if err := r.check(off, 8); err != nil {
		return 0, err
	}
	return r.order.Uint64(r.data[off:]), nil
}

// Float64 reads an IEEE 754 double at off.
func (r *Reader) Float64(off int) (float64, error) {
	bits, err := r.Uint64(off)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

// Bytes returns n bytes at off. The slice aliases the body.
func (r *Reader) Bytes(off, n int) ([]byte, error) {
	if err := r.check(off, n); err != nil {
		return nil, err
	}
	return r.data[off : off+n], nil
}

// String reads a length-prefixed, NUL-terminated string at off.
// The length word counts the bytes including the terminator.
func (r *Reader) String(off int) (string, error) {
	length, err := r.Uint32(off)
	if err != nil {
		return "", err
	}
	if length == 0 {
		return "", errdefs.Protocolf("zero-length string at offset %d", off)
	}
	raw, err := r.Bytes(off+4, int(length))
	if err != nil {
		return "", err
	}
	if raw[length-1] != 0 {
		return "", errdefs.Protocolf("string at offset %d is not NUL terminated", off)
	}
	return string(raw[:length-1]), nil
}
