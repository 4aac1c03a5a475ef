//go:build linux

package transport

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/pulse-protocol/pulse-go/pkg/errdefs"
	"github.com/pulse-protocol/pulse-go/pkg/packet"
	"github.com/pulse-protocol/pulse-go/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSocketConnectionAbstract(t *testing.T) {
	addr := fmt.Sprintf("@pulse_test_%d_%d", os.Getpid(), time.Now().UnixNano())
	release := make(chan struct{})

	l, err := NewListener(ListenerConfig{
		Network: "unix",
		Address: addr,
		OnConnect: func(conn *StreamConnection) {
			p, err := conn.ReadPacket(time.Second)
			if err != nil || p.Header() != packet.StreamMetadataHeader {
				return
			}
			_ = conn.Send(packet.ConnectionAckHeader, nil)
			<-release
		},
	})
	require.NoError(t, err)
	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()

	c, err := NewSocketConnection(SocketConfig{Address: addr, Endianness: wire.LittleEndian})
	require.NoError(t, err)
	defer c.Close()
	assert.True(t, c.IsOpen())

	require.NoError(t, c.WritePacket(metadataPacket(wire.LittleEndian)))
	p, err := c.ReadPacket(time.Second)
	require.NoError(t, err)
	assert.Equal(t, packet.ConnectionAckHeader, p.Header())

	start := time.Now()
	p, err = c.ReadPacket(40 * time.Millisecond)
	assert.ErrorIs(t, err, errdefs.ErrTimeout)
	assert.True(t, p.IsEmpty())
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)

	close(release)
	_, err = c.ReadPacket(time.Second)
	assert.ErrorIs(t, err, errdefs.ErrTransport)
	assert.False(t, c.IsOpen())
}

func TestSocketConnectionStallAndNegativeTimeout(t *testing.T) {
	addr := fmt.Sprintf("@pulse_test_stall_%d_%d", os.Getpid(), time.Now().UnixNano())
	release := make(chan struct{})
	defer close(release)

	l, err := NewListener(ListenerConfig{
		Network: "unix",
		Address: addr,
		OnConnect: func(conn *StreamConnection) {
			p, err := conn.ReadPacket(time.Second)
			if err != nil || p.Header() != packet.StreamMetadataHeader {
				return
			}
			// Header announcing 8 body bytes that never arrive.
			_ = conn.WritePacket(packet.Encode(packet.ConnectionAckHeader, make([]byte, 8), wire.LittleEndian)[:packet.HeaderSize])
			<-release
		},
	})
	require.NoError(t, err)
	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()

	c, err := NewSocketConnection(SocketConfig{
		Address:       addr,
		Endianness:    wire.LittleEndian,
		PacketTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	defer c.Close()

	start := time.Now()
	_, err = c.ReadPacket(-time.Second)
	assert.ErrorIs(t, err, errdefs.ErrTimeout)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	require.NoError(t, c.WritePacket(metadataPacket(wire.LittleEndian)))
	start = time.Now()
	_, err = c.ReadPacket(time.Second)
	assert.ErrorIs(t, err, errdefs.ErrTransport)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
	assert.False(t, c.IsOpen())
}

func TestSocketConnectionRefused(t *testing.T) {
	_, err := NewSocketConnection(SocketConfig{Address: "@pulse_test_nobody_listens"})
	assert.ErrorIs(t, err, errdefs.ErrTransport)
}
