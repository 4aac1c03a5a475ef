package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pulse-protocol/pulse-go/pkg/errdefs"
	"github.com/pulse-protocol/pulse-go/pkg/packet"
	"github.com/pulse-protocol/pulse-go/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamConnectionPipe(t *testing.T) {
	a, b := net.Pipe()
	client := NewStreamConnection(a, StreamConfig{Endianness: wire.LittleEndian})
	server := NewStreamConnection(b, StreamConfig{DetectEndianness: true})
	defer client.Close()
	defer server.Close()

	go func() {
		_ = client.WritePacket(metadataPacket(wire.LittleEndian))
	}()

	p, err := server.ReadPacket(time.Second)
	require.NoError(t, err)
	assert.Equal(t, packet.StreamMetadataHeader, p.Header())
	assert.True(t, server.EndiannessDetected())
	assert.Equal(t, wire.LittleEndian, server.Endianness())

	go func() {
		_ = server.Send(packet.ConnectionAckHeader, nil)
	}()
	p, err = client.ReadPacket(time.Second)
	require.NoError(t, err)
	assert.Equal(t, packet.ConnectionAckHeader, p.Header())
	assert.NotEmpty(t, client.ConnID())
}

func TestStreamConnectionTimeout(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	c := NewStreamConnection(b, StreamConfig{})
	defer c.Close()

	start := time.Now()
	p, err := c.ReadPacket(30 * time.Millisecond)
	assert.ErrorIs(t, err, errdefs.ErrTimeout)
	assert.True(t, p.IsEmpty())
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
	assert.True(t, c.IsOpen())
}

func TestStreamConnectionStallMidPacket(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	c := NewStreamConnection(b, StreamConfig{Endianness: wire.LittleEndian, PacketTimeout: 50 * time.Millisecond})
	defer c.Close()

	// Header plus half of the announced 8-byte body, then silence.
	partial := packet.Encode(packet.ConnectionAckHeader, make([]byte, 8), wire.LittleEndian)[:12]
	go func() { _, _ = a.Write(partial) }()

	start := time.Now()
	_, err := c.ReadPacket(time.Second)
	assert.ErrorIs(t, err, errdefs.ErrTransport)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.False(t, c.IsOpen())
}

func TestStreamConnectionNegativeTimeout(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	c := NewStreamConnection(b, StreamConfig{})
	defer c.Close()

	start := time.Now()
	_, err := c.ReadPacket(-time.Second)
	assert.ErrorIs(t, err, errdefs.ErrTimeout)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestStreamConnectionPeerClose(t *testing.T) {
	a, b := net.Pipe()
	c := NewStreamConnection(b, StreamConfig{})
	a.Close()

	_, err := c.ReadPacket(time.Second)
	assert.ErrorIs(t, err, errdefs.ErrTransport)
	assert.False(t, c.IsOpen())
	assert.ErrorIs(t, c.WritePacket(packet.Encode(packet.ConnectionAckHeader, nil, wire.BigEndian)), ErrClosed)
}

func TestListenerTCP(t *testing.T) {
	accepted := make(chan *StreamConnection, 1)
	l, err := NewListener(ListenerConfig{
		Network: "tcp",
		Address: "127.0.0.1:0",
		OnConnect: func(conn *StreamConnection) {
			accepted <- conn
			p, err := conn.ReadPacket(time.Second)
			if err == nil && p.Header() == packet.StreamMetadataHeader {
				_ = conn.Send(packet.ConnectionAckHeader, nil)
			}
			_, _ = conn.ReadPacket(time.Second)
		},
	})
	require.NoError(t, err)
	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()

	client, err := Dial("tcp", l.Addr().String(), time.Second, StreamConfig{Endianness: wire.BigEndian})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.WritePacket(metadataPacket(wire.BigEndian)))
	p, err := client.ReadPacket(time.Second)
	require.NoError(t, err)
	assert.Equal(t, packet.ConnectionAckHeader, p.Header())

	<-accepted
	assert.Equal(t, 1, l.ConnectionCount())

	require.NoError(t, l.Stop())
	assert.Equal(t, 0, l.ConnectionCount())
}

func TestNewListenerValidation(t *testing.T) {
	_, err := NewListener(ListenerConfig{Network: "udp", OnConnect: func(*StreamConnection) {}})
	assert.Error(t, err)
	_, err = NewListener(ListenerConfig{Network: "tcp", OnConnect: func(*StreamConnection) {}})
	assert.Error(t, err)
	_, err = NewListener(ListenerConfig{})
	assert.Error(t, err)
}
