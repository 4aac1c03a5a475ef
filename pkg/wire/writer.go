package wire

import (
	"math"
)

// Writer appends fields to a byte slice in the connection's byte order.
//
// A Writer created over a reserved buffer (buf[:0]) writes in place as long as
// the encoded size does not exceed cap(buf); Overflowed reports when it did.
type Writer struct {
	buf        []byte
	order      byteOrder
	endian     Endianness
	initialCap int
}

// NewWriter returns a Writer appending to buf[:0] in byte order e.
func NewWriter(buf []byte, e Endianness) *Writer {
	return &Writer{buf: buf[:0], order: e.order(), endian: e, initialCap: cap(buf)}
}

// Endianness returns the byte order of the writer.
func (w *Writer) Endianness() Endianness {
	return w.endian
}

// Bytes returns the encoded bytes.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Overflowed reports whether writing outgrew the buffer the Writer was created with.
func (w *Writer) Overflowed() bool {
	return len(w.buf) > w.initialCap
}

// Uint16 appends a 16-bit word.
func (w *Writer) Uint16(v uint16) {
	w.buf = w.order.AppendUint16(w.buf, v)
}

// Uint32 appends a 32-bit word.
func (w *Writer) Uint32(v uint32) {
	w.buf = w.order.AppendUint32(w.buf, v)
}

// Uint64 appends a 64-bit word.
func (w *Writer) Uint64(v uint64) {
	w.buf = w.order.AppendUint64(w.buf, v)
}

// Float64 appends an IEEE 754 double.
func (w *Writer) Float64(v float64) {
	w.Uint64(math.Float64bits(v))
}

// Raw appends b unchanged.
func (w *Writer) Raw(b []byte) {
	w.buf = append(w.buf, b...)
}

// String appends a length-prefixed, NUL-terminated string padded to 4 bytes.
func (w *Writer) String(s string) {
	w.Uint32(uint32(len(s) + 1))
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
	w.Pad4()
}

// Pad4 appends zero bytes up to the next 4-byte boundary.
func (w *Writer) Pad4() {
	for len(w.buf)%4 != 0 {
		w.buf = append(w.buf, 0)
	}
}

// Placeholder32 appends a zero word and returns its offset for PatchUint32.
func (w *Writer) Placeholder32() int {
	off := len(w.buf)
	w.Uint32(0)
	return off
}

// PatchUint32 overwrites the word at off.
func (w *Writer) PatchUint32(off int, v uint32) {
	w.order.PutUint32(w.buf[off:], v)
}

// PatchUint16 overwrites the half-word at off.
func (w *Writer) PatchUint16(off int, v uint16) {
	w.order.PutUint16(w.buf[off:], v)
}

// StringSize returns the encoded size of s as written by String.
func StringSize(s string) int {
	n := 4 + len(s) + 1
	return (n + 3) &^ 3
}
