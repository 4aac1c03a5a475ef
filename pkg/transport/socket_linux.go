//go:build linux

package transport

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/pulse-protocol/pulse-go/pkg/errdefs"
	"github.com/pulse-protocol/pulse-go/pkg/log"
	"github.com/pulse-protocol/pulse-go/pkg/packet"
	"github.com/pulse-protocol/pulse-go/pkg/wire"
)

// DefaultSocketAddress is the abstract socket a monitoring tool listens on.
const DefaultSocketAddress = "@pulse_namespace"

// pollSlice bounds each poll while a started packet is read or written.
const pollSlice = 1000 // ms

// SocketConfig configures a SocketConnection.
type SocketConfig struct {
	// Address is the Unix socket path. A leading '@' selects the abstract
	// namespace. Default: DefaultSocketAddress.
	Address string

	// Endianness is the byte order of every packet this side writes and reads.
	Endianness wire.Endianness

	// MaxBodyLength caps accepted bodies (default: DefaultMaxBodyLength).
	MaxBodyLength uint32

	// PacketTimeout bounds the rest of a packet after its first byte
	// (default: DefaultPacketTimeout).
	PacketTimeout time.Duration

	ConnID string
	Logger log.Logger
}

// SocketConnection is a client connection over a non-blocking AF_UNIX stream
// socket. ReadPacket polls the descriptor for readability.
type SocketConnection struct {
	config SocketConfig
	fd     int
	framer *Framer
	connID string

	readMu sync.Mutex
	// readDeadline ends the packet being read. Guarded by readMu.
	readDeadline time.Time

	open      atomic.Bool
	closeOnce sync.Once
}

// NewSocketConnection connects to config.Address.
func NewSocketConnection(config SocketConfig) (*SocketConnection, error) {
	if config.Address == "" {
		config.Address = DefaultSocketAddress
	}
	if config.ConnID == "" {
		config.ConnID = uuid.New().String()
	}
	if config.PacketTimeout <= 0 {
		config.PacketTimeout = DefaultPacketTimeout
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, errdefs.Transportf("socket: %v", err)
	}
	if err := unix.Connect(fd, &unix.SockaddrUnix{Name: config.Address}); err != nil {
		unix.Close(fd)
		return nil, errdefs.Transportf("connect %s: %v", config.Address, err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, errdefs.Transportf("set non-blocking: %v", err)
	}

	c := &SocketConnection{config: config, fd: fd, connID: config.ConnID}
	c.framer = NewFramer(fdStream{c}, config.Endianness)
	if config.MaxBodyLength > 0 {
		c.framer.SetMaxBodyLength(config.MaxBodyLength)
	}
	if config.Logger != nil {
		c.framer.SetLogger(config.Logger, c.connID, log.RoleClient)
		c.framer.setRemoteAddr(config.Address)
	}
	c.open.Store(true)
	return c, nil
}

// ConnID returns the connection identifier.
func (c *SocketConnection) ConnID() string {
	return c.connID
}

// Endianness returns the connection's byte order.
func (c *SocketConnection) Endianness() wire.Endianness {
	return c.framer.Endianness()
}

// IsOpen reports whether the socket is open.
func (c *SocketConnection) IsOpen() bool {
	return c.open.Load()
}

// Close closes the socket.
func (c *SocketConnection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.open.Store(false)
		err = unix.Close(c.fd)
	})
	return err
}

// WritePacket writes the whole buffer, waiting for writability as needed.
func (c *SocketConnection) WritePacket(b []byte) error {
	if !c.open.Load() {
		return ErrClosed
	}
	if err := c.framer.WritePacket(b); err != nil {
		c.Close()
		return err
	}
	return nil
}

// ReadPacket polls for up to timeout, then reads exactly one header and body.
func (c *SocketConnection) ReadPacket(timeout time.Duration) (packet.Packet, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if !c.open.Load() {
		return packet.Packet{}, ErrClosed
	}

	ready, err := c.poll(unix.POLLIN, int(max(timeout, 0)/time.Millisecond))
	if err != nil {
		c.Close()
		return packet.Packet{}, err
	}
	if !ready {
		return packet.Packet{}, errdefs.ErrTimeout
	}

	c.readDeadline = time.Now().Add(c.config.PacketTimeout)
	p, err := c.framer.ReadPacket()
	if err != nil {
		c.Close()
		return packet.Packet{}, err
	}
	return p, nil
}

// poll waits up to timeoutMs for events. Error and hang-up conditions are
// transport errors.
func (c *SocketConnection) poll(events int16, timeoutMs int) (bool, error) {
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	for {
		fds := []unix.PollFd{{Fd: int32(c.fd), Events: events}}
		n, err := unix.Poll(fds, timeoutMs)
		if err == unix.EINTR {
			timeoutMs = int(time.Until(deadline) / time.Millisecond)
			if timeoutMs < 0 {
				timeoutMs = 0
			}
			continue
		}
		if err != nil {
			return false, errdefs.Transportf("poll: %v", err)
		}
		if n == 0 {
			return false, nil
		}
		revents := fds[0].Revents
		if revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 && revents&unix.POLLIN == 0 {
			return false, errdefs.Transportf("poll: socket closed (revents %#x)", revents)
		}
		return true, nil
	}
}

// fdStream adapts the non-blocking descriptor to io.Reader and io.Writer,
// polling on EAGAIN.
type fdStream struct {
	c *SocketConnection
}

func (s fdStream) Read(b []byte) (int, error) {
	for {
		n, err := unix.Read(s.c.fd, b)
		switch {
		case err == unix.EAGAIN:
			left := time.Until(s.c.readDeadline)
			if left <= 0 {
				return 0, errdefs.Transportf("packet incomplete after %s", s.c.config.PacketTimeout)
			}
			if _, perr := s.c.poll(unix.POLLIN, min(int(left/time.Millisecond)+1, pollSlice)); perr != nil {
				return 0, perr
			}
			continue
		case err == unix.EINTR:
			continue
		case err != nil:
			return 0, errdefs.Transportf("read: %v", err)
		case n == 0 && len(b) > 0:
			return 0, fmt.Errorf("%w: peer closed", ErrClosed)
		}
		return n, nil
	}
}

func (s fdStream) Write(b []byte) (int, error) {
	written := 0
	for written < len(b) {
		n, err := unix.Write(s.c.fd, b[written:])
		switch {
		case err == unix.EAGAIN:
			if _, perr := s.c.poll(unix.POLLOUT, pollSlice); perr != nil {
				return written, perr
			}
			continue
		case err == unix.EINTR:
			continue
		case err != nil:
			return written, errdefs.Transportf("write: %v", err)
		}
		written += n
	}
	return written, nil
}

var _ Connection = (*SocketConnection)(nil)
