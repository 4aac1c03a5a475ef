package transport

import (
	"time"

	"github.com/pulse-protocol/pulse-go/pkg/packet"
)

// Connection is a bidirectional packet connection.
type Connection interface {
	// IsOpen reports whether the connection can still carry packets.
	IsOpen() bool

	// Close closes the connection. It is idempotent.
	Close() error

	// WritePacket writes one fully encoded packet (header and body).
	WritePacket(b []byte) error

	// ReadPacket waits up to timeout for one packet.
	ReadPacket(timeout time.Duration) (packet.Packet, error)
}

// PacketReadWriter reads and writes framed packets on a blocking stream.
// Implemented by Framer.
type PacketReadWriter interface {
	ReadPacket() (packet.Packet, error)
	WritePacket(b []byte) error
}

// Compile-time interface satisfaction checks.
var (
	_ Connection       = (*StreamConnection)(nil)
	_ Connection       = (*LoopbackConnection)(nil)
	_ PacketReadWriter = (*Framer)(nil)
)
