// Package wire provides the byte-order aware primitives of the pulse protocol.
//
// Every multi-byte field on a connection uses one byte order. The client picks
// it; the server learns it from the first four body bytes of the first packet,
// which must be the stream magic 0x45495434:
//
//	bytes 45 49 54 34 -> BigEndian
//	bytes 34 54 49 45 -> LittleEndian
//
// Reader and Writer are constructed once per connection with the detected
// Endianness and are the only place that touches encoding/binary.
package wire
