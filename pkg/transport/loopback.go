package transport

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pulse-protocol/pulse-go/pkg/directory"
	"github.com/pulse-protocol/pulse-go/pkg/errdefs"
	"github.com/pulse-protocol/pulse-go/pkg/log"
	"github.com/pulse-protocol/pulse-go/pkg/packet"
	"github.com/pulse-protocol/pulse-go/pkg/protocol"
	"github.com/pulse-protocol/pulse-go/pkg/wire"
)

// Responder queues packets for the local reader of a loopback connection.
type Responder interface {
	Respond(header uint32, body []byte)
}

// LoopbackHandler observes packets written to a loopback connection.
type LoopbackHandler interface {
	HandlePacket(p packet.Packet, r Responder) error
}

// LoopbackHandlerFunc adapts a function to LoopbackHandler.
type LoopbackHandlerFunc func(p packet.Packet, r Responder) error

// HandlePacket calls f(p, r).
func (f LoopbackHandlerFunc) HandlePacket(p packet.Packet, r Responder) error {
	return f(p, r)
}

// LoopbackConfig configures a LoopbackConnection.
type LoopbackConfig struct {
	// Endianness is the byte order shared with the writer.
	Endianness wire.Endianness

	// DisableAutoAck turns off the built-in Connection Ack reply to stream metadata.
	DisableAutoAck bool

	// RequestDirectory queues a Request Counter Directory after the ack.
	RequestDirectory bool

	// Selection, if set, is queued once a counter directory has been received.
	Selection *protocol.PeriodicCounterSelection

	ConnID string

	// Logger receives protocol capture events (optional).
	Logger log.Logger

	// OpLogger receives operational logs (optional).
	OpLogger *slog.Logger
}

// LoopbackConnection is an in-process connection. Packets written by the
// local side are handed to a worker goroutine that runs the universal
// handlers, then the handlers indexed by the packet header, then the
// built-in responder. Packets those handlers respond with are returned by
// ReadPacket.
type LoopbackConnection struct {
	config LoopbackConfig
	connID string

	writtenMu   sync.Mutex
	writtenCond *sync.Cond
	written     []packet.Packet

	readableMu   sync.Mutex
	readableCond *sync.Cond
	readable     []packet.Packet

	handlersMu sync.RWMutex
	universal  []LoopbackHandler
	indexed    map[uint32][]LoopbackHandler

	running   atomic.Bool
	open      atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	errMu sync.Mutex
	err   error

	stateMu   sync.Mutex
	metadata  *protocol.StreamMetadata
	snapshot  *directory.Snapshot
	selection *protocol.PeriodicCounterSelection
	captures  int

	capture *captureLogger
}

// NewLoopbackConnection creates an open loopback connection and starts its worker.
func NewLoopbackConnection(config LoopbackConfig) *LoopbackConnection {
	if config.ConnID == "" {
		config.ConnID = uuid.New().String()
	}
	c := &LoopbackConnection{
		config:  config,
		connID:  config.ConnID,
		indexed: make(map[uint32][]LoopbackHandler),
		done:    make(chan struct{}),
	}
	c.writtenCond = sync.NewCond(&c.writtenMu)
	c.readableCond = sync.NewCond(&c.readableMu)
	if config.Logger != nil {
		c.capture = &captureLogger{logger: config.Logger, connID: c.connID, role: log.RoleClient, remoteAddr: "loopback"}
	}

	c.running.Store(true)
	c.open.Store(true)
	go c.worker()
	return c
}

// ConnID returns the connection identifier.
func (c *LoopbackConnection) ConnID() string {
	return c.connID
}

// AddUniversalHandler registers a handler invoked for every written packet.
func (c *LoopbackConnection) AddUniversalHandler(h LoopbackHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.universal = append(c.universal, h)
}

// AddHandler registers a handler invoked for written packets with the given header word0.
func (c *LoopbackConnection) AddHandler(header uint32, h LoopbackHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.indexed[header] = append(c.indexed[header], h)
}

// IsOpen reports whether the connection is open.
func (c *LoopbackConnection) IsOpen() bool {
	return c.open.Load()
}

// Err returns the handler error that closed the connection, if any.
func (c *LoopbackConnection) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// WritePacket decodes b with the configured byte order and queues it for the
// worker. The bytes are copied, so the caller may reuse b.
func (c *LoopbackConnection) WritePacket(b []byte) error {
	if err := c.Err(); err != nil {
		return err
	}
	if !c.open.Load() {
		return ErrClosed
	}

	owned := append([]byte(nil), b...)
	p, err := packet.Decode(owned, c.config.Endianness)
	if err != nil {
		return err
	}
	c.capture.packet(log.DirectionOut, p, c.config.Endianness)

	c.writtenMu.Lock()
	c.written = append(c.written, p)
	c.writtenMu.Unlock()
	c.writtenCond.Signal()
	return nil
}

// Respond queues a packet for ReadPacket.
func (c *LoopbackConnection) Respond(header uint32, body []byte) {
	c.Deliver(packet.FromHeader(header, body))
}

// Deliver queues p for ReadPacket as if the peer had sent it.
func (c *LoopbackConnection) Deliver(p packet.Packet) {
	if !c.open.Load() {
		return
	}
	c.readableMu.Lock()
	c.readable = append(c.readable, p)
	c.readableMu.Unlock()
	c.readableCond.Signal()
}

// ReadPacket returns the next readable packet, waiting up to timeout.
func (c *LoopbackConnection) ReadPacket(timeout time.Duration) (packet.Packet, error) {
	expired := false
	timer := time.AfterFunc(timeout, func() {
		c.readableMu.Lock()
		expired = true
		c.readableMu.Unlock()
		c.readableCond.Broadcast()
	})
	defer timer.Stop()

	c.readableMu.Lock()
	for len(c.readable) == 0 && !expired && c.open.Load() {
		c.readableCond.Wait()
	}

	if len(c.readable) > 0 && c.open.Load() {
		p := c.readable[0]
		c.readable[0] = packet.Packet{}
		c.readable = c.readable[1:]
		c.readableMu.Unlock()
		c.capture.packet(log.DirectionIn, p, c.config.Endianness)
		return p, nil
	}
	c.readableMu.Unlock()

	if err := c.Err(); err != nil {
		return packet.Packet{}, err
	}
	if !c.open.Load() {
		return packet.Packet{}, ErrClosed
	}
	return packet.Packet{}, errdefs.ErrTimeout
}

// Close stops the worker, waits for it and drops queued packets.
func (c *LoopbackConnection) Close() error {
	c.closeOnce.Do(func() {
		c.running.Store(false)
		c.open.Store(false)

		c.writtenMu.Lock()
		c.writtenCond.Broadcast()
		c.writtenMu.Unlock()
		<-c.done

		c.writtenMu.Lock()
		c.written = nil
		c.writtenMu.Unlock()

		c.readableMu.Lock()
		c.readable = nil
		c.readableMu.Unlock()
		c.readableCond.Broadcast()
	})
	return nil
}

func (c *LoopbackConnection) worker() {
	defer close(c.done)
	for {
		c.writtenMu.Lock()
		for len(c.written) == 0 && c.running.Load() {
			c.writtenCond.Wait()
		}
		if !c.running.Load() {
			c.writtenMu.Unlock()
			return
		}
		p := c.written[0]
		c.written[0] = packet.Packet{}
		c.written = c.written[1:]
		c.writtenMu.Unlock()

		if err := c.dispatch(p); err != nil {
			c.fail(err)
			return
		}
	}
}

func (c *LoopbackConnection) dispatch(p packet.Packet) error {
	c.handlersMu.RLock()
	universal := append([]LoopbackHandler(nil), c.universal...)
	indexed := append([]LoopbackHandler(nil), c.indexed[p.Header()]...)
	c.handlersMu.RUnlock()

	for _, h := range universal {
		if err := h.HandlePacket(p, c); err != nil {
			return err
		}
	}
	for _, h := range indexed {
		if err := h.HandlePacket(p, c); err != nil {
			return err
		}
	}
	return c.respond(p)
}

// respond is the built-in peer: it acknowledges stream metadata and drives
// the directory request and counter selection.
func (c *LoopbackConnection) respond(p packet.Packet) error {
	switch p.Header() {
	case packet.StreamMetadataHeader:
		m, _, err := protocol.DecodeStreamMetadata(p.Data())
		if err != nil {
			return err
		}
		c.stateMu.Lock()
		c.metadata = &m
		c.stateMu.Unlock()
		c.debugLog("loopback: stream metadata", "pid", m.PID, "version", m.Version.String())

		if !c.config.DisableAutoAck {
			c.Respond(packet.ConnectionAckHeader, nil)
		}
		if c.config.RequestDirectory {
			c.Respond(packet.RequestCounterDirectoryHeader, nil)
		}

	case packet.CounterDirectoryHeader:
		s, err := directory.Decode(p.Data(), c.config.Endianness)
		if err != nil {
			return err
		}
		c.stateMu.Lock()
		c.snapshot = &s
		c.stateMu.Unlock()
		c.debugLog("loopback: counter directory", "counters", s.CounterCount())

		if sel := c.config.Selection; sel != nil {
			c.Respond(packet.PeriodicCounterSelectionHeader,
				protocol.EncodePeriodicCounterSelection(*sel, c.config.Endianness))
		}

	case packet.PeriodicCounterSelectionHeader:
		s, err := protocol.DecodePeriodicCounterSelection(p.Data(), c.config.Endianness)
		if err != nil {
			return err
		}
		c.stateMu.Lock()
		c.selection = &s
		c.stateMu.Unlock()

	case packet.PeriodicCounterCaptureHeader:
		c.stateMu.Lock()
		c.captures++
		c.stateMu.Unlock()
	}
	return nil
}

// fail records err, closes the connection and wakes readers.
func (c *LoopbackConnection) fail(err error) {
	c.errMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errMu.Unlock()

	c.debugLog("loopback: handler failed, closing", "error", err)
	c.capture.error(log.LayerTransport, err, "loopback handler")

	c.running.Store(false)
	c.open.Store(false)

	c.readableMu.Lock()
	c.readable = nil
	c.readableMu.Unlock()
	c.readableCond.Broadcast()
}

// Metadata returns the last stream metadata written, if any.
func (c *LoopbackConnection) Metadata() (protocol.StreamMetadata, bool) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.metadata == nil {
		return protocol.StreamMetadata{}, false
	}
	return *c.metadata, true
}

// Directory returns the last counter directory written, if any.
func (c *LoopbackConnection) Directory() (directory.Snapshot, bool) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.snapshot == nil {
		return directory.Snapshot{}, false
	}
	return *c.snapshot, true
}

// Selection returns the last counter selection echoed by the writer, if any.
func (c *LoopbackConnection) Selection() (protocol.PeriodicCounterSelection, bool) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.selection == nil {
		return protocol.PeriodicCounterSelection{}, false
	}
	return *c.selection, true
}

// CaptureCount returns the number of capture packets written.
func (c *LoopbackConnection) CaptureCount() int {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.captures
}

func (c *LoopbackConnection) debugLog(msg string, args ...any) {
	if c.config.OpLogger != nil {
		c.config.OpLogger.Debug(msg, args...)
	}
}
