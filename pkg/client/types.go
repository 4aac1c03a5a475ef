package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pulse-protocol/pulse-go/pkg/buffer"
	"github.com/pulse-protocol/pulse-go/pkg/capture"
	"github.com/pulse-protocol/pulse-go/pkg/directory"
	"github.com/pulse-protocol/pulse-go/pkg/errdefs"
	"github.com/pulse-protocol/pulse-go/pkg/log"
	"github.com/pulse-protocol/pulse-go/pkg/transport"
	"github.com/pulse-protocol/pulse-go/pkg/wire"
)

// Service errors.
var (
	ErrAlreadyStarted = errors.New("service already started")
	ErrNoFactory      = errors.New("no connection factory")
	ErrUnexpected     = fmt.Errorf("%w: packet not valid in current state", errdefs.ErrProtocol)
)

// DefaultMinCapturePeriod is the smallest capture period in microseconds a
// selection is clamped to.
const DefaultMinCapturePeriod uint32 = 10000

// Buffer defaults.
const (
	DefaultBufferCount = 16
	DefaultBufferSize  = 1 << 16
)

// State is the connection state of a Service.
type State uint8

const (
	StateUninitialised State = iota
	StateNotConnected
	StateWaitingForAck
	StateActive
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialised:
		return "UNINITIALISED"
	case StateNotConnected:
		return "NOT_CONNECTED"
	case StateWaitingForAck:
		return "WAITING_FOR_ACK"
	case StateActive:
		return "ACTIVE"
	default:
		return "UNKNOWN"
	}
}

// ConnectionFactory opens the connection used by Service.Start.
type ConnectionFactory interface {
	// NewConnection opens a connection framing packets in byte order e.
	NewConnection(ctx context.Context, e wire.Endianness) (transport.Connection, error)
}

// ConnectionFactoryFunc adapts a function to ConnectionFactory.
type ConnectionFactoryFunc func(ctx context.Context, e wire.Endianness) (transport.Connection, error)

// NewConnection calls f(ctx, e).
func (f ConnectionFactoryFunc) NewConnection(ctx context.Context, e wire.Endianness) (transport.Connection, error) {
	return f(ctx, e)
}

// SocketFactory connects to a Unix socket address.
type SocketFactory struct {
	Address string
	Logger  log.Logger
}

// NewConnection opens a SocketConnection.
func (f SocketFactory) NewConnection(_ context.Context, e wire.Endianness) (transport.Connection, error) {
	c, err := transport.NewSocketConnection(transport.SocketConfig{
		Address:    f.Address,
		Endianness: e,
		Logger:     f.Logger,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// DialFactory connects over a net.Dialer network such as tcp.
type DialFactory struct {
	Network string
	Address string
	Timeout time.Duration
	Logger  log.Logger
}

// NewConnection dials a StreamConnection.
func (f DialFactory) NewConnection(ctx context.Context, e wire.Endianness) (transport.Connection, error) {
	timeout := f.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	c, err := transport.Dial(f.Network, f.Address, timeout, transport.StreamConfig{
		Endianness: e,
		Logger:     f.Logger,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Config configures a Service.
type Config struct {
	// Stream metadata strings.
	Info            string
	HardwareVersion string
	SoftwareVersion string
	ProcessName     string

	// PID defaults to the current process id.
	PID uint32

	// Endianness of produced packets and of the connection. Use wire.Native()
	// for host order.
	Endianness wire.Endianness

	// Factory opens the connection (default: SocketFactory on the default address).
	Factory ConnectionFactory

	Directory *directory.Directory
	Counters  capture.CounterValueReader
	Backends  capture.BackendRegistry
	IDs       *capture.IDMap

	BufferCount  int
	BufferSize   int
	BufferPolicy buffer.Policy

	// ReadTimeout bounds each receive loop read.
	ReadTimeout time.Duration

	// FlushTimeout bounds the send thread wait.
	FlushTimeout time.Duration

	// MinCapturePeriod clamps selection periods (default: DefaultMinCapturePeriod).
	MinCapturePeriod uint32

	// OnStateChange is called after every state transition.
	OnStateChange func(from, to State)

	// Logger is the optional logger for debug output.
	Logger *slog.Logger
}
