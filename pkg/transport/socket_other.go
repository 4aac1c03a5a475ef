//go:build !linux

package transport

import (
	"time"

	"github.com/pulse-protocol/pulse-go/pkg/errdefs"
	"github.com/pulse-protocol/pulse-go/pkg/log"
	"github.com/pulse-protocol/pulse-go/pkg/packet"
	"github.com/pulse-protocol/pulse-go/pkg/wire"
)

// DefaultSocketAddress is the abstract socket a monitoring tool listens on.
const DefaultSocketAddress = "@pulse_namespace"

// SocketConfig configures a SocketConnection.
type SocketConfig struct {
	Address       string
	Endianness    wire.Endianness
	MaxBodyLength uint32
	ConnID        string
	Logger        log.Logger
}

// SocketConnection is only available on linux. Use Dial("unix", ...) elsewhere.
type SocketConnection struct{}

// NewSocketConnection always fails on this platform.
func NewSocketConnection(SocketConfig) (*SocketConnection, error) {
	return nil, errdefs.Transportf("abstract unix sockets require linux")
}

func (*SocketConnection) IsOpen() bool { return false }
func (*SocketConnection) Close() error { return nil }
func (*SocketConnection) WritePacket([]byte) error {
	return ErrClosed
}
func (*SocketConnection) ReadPacket(time.Duration) (packet.Packet, error) {
	return packet.Packet{}, ErrClosed
}
