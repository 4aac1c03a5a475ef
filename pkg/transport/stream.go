package transport

import (
	"bufio"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pulse-protocol/pulse-go/pkg/errdefs"
	"github.com/pulse-protocol/pulse-go/pkg/log"
	"github.com/pulse-protocol/pulse-go/pkg/packet"
	"github.com/pulse-protocol/pulse-go/pkg/wire"
)

// StreamConfig configures a StreamConnection.
type StreamConfig struct {
	// Endianness is the byte order for a client-side connection.
	Endianness wire.Endianness

	// DetectEndianness makes the connection learn the byte order from the
	// peer's first packet (server side).
	DetectEndianness bool

	// MaxBodyLength caps accepted bodies (default: DefaultMaxBodyLength).
	MaxBodyLength uint32

	// PacketTimeout bounds the rest of a packet after its first byte
	// (default: DefaultPacketTimeout). A peer stalling mid-packet closes
	// the connection.
	PacketTimeout time.Duration

	// WriteTimeout bounds each WritePacket (0 = no timeout).
	WriteTimeout time.Duration

	// ConnID identifies the connection in capture events. Empty means a new UUID.
	ConnID string

	// Role is the local side for capture events.
	Role log.Role

	// Logger receives protocol capture events (optional).
	Logger log.Logger
}

// StreamConnection carries packets over a net.Conn. ReadPacket waits for the
// first byte of a packet with the caller's timeout and reads the rest under
// PacketTimeout.
type StreamConnection struct {
	config StreamConfig
	conn   net.Conn
	br     *bufio.Reader
	framer *Framer
	connID string

	readMu    sync.Mutex
	open      atomic.Bool
	closeOnce sync.Once
}

// NewStreamConnection wraps conn.
func NewStreamConnection(conn net.Conn, config StreamConfig) *StreamConnection {
	if config.ConnID == "" {
		config.ConnID = uuid.New().String()
	}
	if config.PacketTimeout <= 0 {
		config.PacketTimeout = DefaultPacketTimeout
	}

	c := &StreamConnection{
		config: config,
		conn:   conn,
		br:     bufio.NewReader(conn),
		connID: config.ConnID,
	}
	rw := struct {
		io.Reader
		io.Writer
	}{c.br, conn}
	if config.DetectEndianness {
		c.framer = NewDetectingFramer(rw)
	} else {
		c.framer = NewFramer(rw, config.Endianness)
	}
	if config.MaxBodyLength > 0 {
		c.framer.SetMaxBodyLength(config.MaxBodyLength)
	}
	if config.Logger != nil {
		c.framer.SetLogger(config.Logger, c.connID, config.Role)
		if addr := conn.RemoteAddr(); addr != nil {
			c.framer.setRemoteAddr(addr.String())
		}
	}
	c.open.Store(true)
	return c
}

// Dial connects to address on network ("unix" or "tcp") and returns a
// client-side connection.
func Dial(network, address string, timeout time.Duration, config StreamConfig) (*StreamConnection, error) {
	conn, err := net.DialTimeout(network, address, timeout)
	if err != nil {
		return nil, errdefs.Transportf("dial %s %s: %v", network, address, err)
	}
	return NewStreamConnection(conn, config), nil
}

// ConnID returns the connection identifier.
func (c *StreamConnection) ConnID() string {
	return c.connID
}

// RemoteAddr returns the peer address.
func (c *StreamConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Endianness returns the connection's byte order.
func (c *StreamConnection) Endianness() wire.Endianness {
	return c.framer.Endianness()
}

// EndiannessDetected reports whether the byte order is known.
func (c *StreamConnection) EndiannessDetected() bool {
	return c.framer.Detected()
}

// IsOpen reports whether the connection is open.
func (c *StreamConnection) IsOpen() bool {
	return c.open.Load()
}

// Close closes the connection.
func (c *StreamConnection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.open.Store(false)
		err = c.conn.Close()
	})
	return err
}

// WritePacket writes an encoded packet.
func (c *StreamConnection) WritePacket(b []byte) error {
	if !c.open.Load() {
		return ErrClosed
	}
	if c.config.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}
	if err := c.framer.WritePacket(b); err != nil {
		c.Close()
		return err
	}
	return nil
}

// Send encodes and writes a packet in the connection's byte order.
func (c *StreamConnection) Send(header uint32, body []byte) error {
	return c.WritePacket(packet.Encode(header, body, c.Endianness()))
}

// ReadPacket waits up to timeout for the first byte of a packet, then reads
// the whole packet.
func (c *StreamConnection) ReadPacket(timeout time.Duration) (packet.Packet, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if !c.open.Load() {
		return packet.Packet{}, ErrClosed
	}

	if c.br.Buffered() == 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(max(timeout, 0))); err != nil {
			c.Close()
			return packet.Packet{}, errdefs.Transportf("set deadline: %v", err)
		}
		_, err := c.br.Peek(1)
		if err != nil {
			if isTimeout(err) {
				return packet.Packet{}, errdefs.ErrTimeout
			}
			c.Close()
			if errors.Is(err, io.EOF) {
				return packet.Packet{}, ErrClosed
			}
			return packet.Packet{}, errdefs.Transportf("read: %v", err)
		}
	}

	deadline := time.Now().Add(c.config.PacketTimeout)
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		c.Close()
		return packet.Packet{}, errdefs.Transportf("set deadline: %v", err)
	}
	p, err := c.framer.ReadPacket()
	if err != nil {
		c.Close()
		if !time.Now().Before(deadline) {
			return packet.Packet{}, errdefs.Transportf("packet incomplete after %s", c.config.PacketTimeout)
		}
		return packet.Packet{}, err
	}
	return p, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
