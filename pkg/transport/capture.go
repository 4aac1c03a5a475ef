package transport

import (
	"errors"
	"time"

	"github.com/pulse-protocol/pulse-go/pkg/directory"
	"github.com/pulse-protocol/pulse-go/pkg/errdefs"
	"github.com/pulse-protocol/pulse-go/pkg/log"
	"github.com/pulse-protocol/pulse-go/pkg/packet"
	"github.com/pulse-protocol/pulse-go/pkg/protocol"
	"github.com/pulse-protocol/pulse-go/pkg/wire"
)

// MaxLogBodySize is the maximum body size included in capture events (4 KB).
const MaxLogBodySize = 4096

// captureLogger emits protocol capture events for one connection. A nil
// *captureLogger is valid and discards everything.
type captureLogger struct {
	logger     log.Logger
	connID     string
	role       log.Role
	remoteAddr string
}

func (c *captureLogger) base(dir log.Direction, layer log.Layer, cat log.Category) log.Event {
	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Direction:    dir,
		Layer:        layer,
		Category:     cat,
		LocalRole:    c.role,
		RemoteAddr:   c.remoteAddr,
	}
}

func (c *captureLogger) packet(dir log.Direction, p packet.Packet, e wire.Endianness) {
	if c == nil {
		return
	}
	ev := c.base(dir, log.LayerTransport, log.CategoryPacket)
	ev.Packet = PacketEvent(p, e)
	c.logger.Log(ev)

	if decoded := DecodedEvent(p, e); decoded != nil {
		ev = c.base(dir, log.LayerProtocol, log.CategoryPacket)
		ev.Decoded = decoded
		c.logger.Log(ev)
	}
}

func (c *captureLogger) state(oldState, newState, reason string) {
	if c == nil {
		return
	}
	ev := c.base(log.DirectionIn, log.LayerTransport, log.CategoryState)
	ev.StateChange = &log.StateChangeEvent{
		Entity:   log.StateEntityConnection,
		OldState: oldState,
		NewState: newState,
		Reason:   reason,
	}
	c.logger.Log(ev)
}

func (c *captureLogger) error(layer log.Layer, err error, context string) {
	if c == nil {
		return
	}
	ev := c.base(log.DirectionIn, layer, log.CategoryError)
	ev.Error = &log.ErrorEventData{
		Layer:   layer,
		Message: err.Error(),
		Kind:    ErrorKind(err),
		Context: context,
	}
	c.logger.Log(ev)
}

// PacketEvent builds the transport-layer capture payload for p.
func PacketEvent(p packet.Packet, e wire.Endianness) *log.PacketEvent {
	data := p.Data()
	truncated := false
	if len(data) > MaxLogBodySize {
		data = data[:MaxLogBodySize]
		truncated = true
	}
	return &log.PacketEvent{
		Family:     uint8(p.Family()),
		ID:         uint16(p.ID()),
		Length:     p.Length(),
		Endianness: e.String(),
		Data:       data,
		Truncated:  truncated,
	}
}

// DecodedEvent summarizes a well-known packet body. It returns nil for
// packets without a decodable body.
func DecodedEvent(p packet.Packet, e wire.Endianness) *log.DecodedEvent {
	ev := &log.DecodedEvent{Name: packet.Name(p.Header()), Header: p.Header()}

	switch p.Header() {
	case packet.StreamMetadataHeader:
		m, _, err := protocol.DecodeStreamMetadata(p.Data())
		if err != nil {
			return nil
		}
		pid := m.PID
		ev.Version = m.Version.String()
		ev.PID = &pid
	case packet.PeriodicCounterSelectionHeader:
		s, err := protocol.DecodePeriodicCounterSelection(p.Data(), e)
		if err != nil {
			return nil
		}
		period := s.Period
		ev.Period = &period
		ev.CounterIDs = s.CounterIDs
	case packet.PeriodicCounterCaptureHeader:
		c, err := protocol.DecodePeriodicCounterCapture(p.Data(), e)
		if err != nil {
			return nil
		}
		ts := c.Timestamp
		ev.CaptureTimestamp = &ts
		ev.ValueCount = len(c.Values)
	case packet.CounterDirectoryHeader:
		s, err := directory.Decode(p.Data(), e)
		if err != nil {
			return nil
		}
		ev.ValueCount = s.CounterCount()
	default:
		return nil
	}
	return ev
}

// ErrorKind names the errdefs class of err for capture events.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, errdefs.ErrTimeout):
		return "timeout"
	case errors.Is(err, errdefs.ErrProtocol):
		return "protocol"
	case errors.Is(err, errdefs.ErrTransport):
		return "transport"
	case errors.Is(err, errdefs.ErrValidation):
		return "validation"
	case errors.Is(err, errdefs.ErrCounterRead):
		return "counter_read"
	case errors.Is(err, errdefs.ErrBufferExhausted):
		return "buffer_exhausted"
	default:
		return ""
	}
}
