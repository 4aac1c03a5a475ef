package log

import (
	"time"
)

// Event is one protocol capture record. CBOR encoding uses integer keys.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	Direction Direction `cbor:"3,keyasint"`
	Layer     Layer     `cbor:"4,keyasint"`
	Category  Category  `cbor:"5,keyasint"`

	// LocalRole is the side that captured the event.
	LocalRole Role `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address, if the transport has one.
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// SessionID identifies a mock server session (UUID).
	SessionID string `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Packet      *PacketEvent      `cbor:"10,keyasint,omitempty"` // Transport layer
	Decoded     *DecodedEvent     `cbor:"11,keyasint,omitempty"` // Protocol layer
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction indicates the direction of packet flow.
type Direction uint8

const (
	// DirectionIn indicates a received packet.
	DirectionIn Direction = 0
	// DirectionOut indicates a sent packet.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the framing layer (header plus raw body).
	LayerTransport Layer = 0
	// LayerProtocol is the packet body codec layer.
	LayerProtocol Layer = 1
	// LayerService is the client service or mock server session.
	LayerService Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerProtocol:
		return "PROTOCOL"
	case LayerService:
		return "SERVICE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryPacket indicates a packet on the wire.
	CategoryPacket Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryPacket:
		return "PACKET"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Role indicates whether the local endpoint is the instrumented runtime or
// the monitoring server.
type Role uint8

const (
	// RoleClient is the instrumented runtime.
	RoleClient Role = 0
	// RoleServer is the monitoring tool or mock server.
	RoleServer Role = 1
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleClient:
		return "CLIENT"
	case RoleServer:
		return "SERVER"
	default:
		return "UNKNOWN"
	}
}

// PacketEvent captures one framed packet at the transport layer.
type PacketEvent struct {
	Family uint8  `cbor:"1,keyasint"`
	ID     uint16 `cbor:"2,keyasint"`

	// Length is the body length from the header.
	Length uint32 `cbor:"3,keyasint"`

	// Endianness is "big" or "little".
	Endianness string `cbor:"4,keyasint,omitempty"`

	// Data is the body (may be truncated for large packets).
	Data []byte `cbor:"5,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"6,keyasint,omitempty"`
}

// DecodedEvent captures a decoded packet body.
type DecodedEvent struct {
	// Name is the packet name, e.g. "PeriodicCounterSelection".
	Name string `cbor:"1,keyasint"`

	// Header is header word 0 (family and id).
	Header uint32 `cbor:"2,keyasint"`

	// Period is the capture period in microseconds (selection packets).
	Period *uint32 `cbor:"3,keyasint,omitempty"`

	// CounterIDs lists counter UIDs (selection packets).
	CounterIDs []uint16 `cbor:"4,keyasint,omitempty"`

	// CaptureTimestamp is the capture timestamp (capture packets).
	CaptureTimestamp *uint64 `cbor:"5,keyasint,omitempty"`

	// ValueCount is the number of counter values (capture packets) or
	// counter UIDs (directory packets).
	ValueCount int `cbor:"6,keyasint,omitempty"`

	// Version is the peer's protocol version (stream metadata).
	Version string `cbor:"7,keyasint,omitempty"`

	// PID is the peer process id (stream metadata).
	PID *uint32 `cbor:"8,keyasint,omitempty"`
}

// StateChangeEvent captures connection, session and service lifecycle events.
type StateChangeEvent struct {
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntitySession indicates a mock server session state change.
	StateEntitySession StateEntity = 1
	// StateEntityService indicates a client service state change.
	StateEntityService StateEntity = 2
	// StateEntitySampler indicates a capture sampler state change.
	StateEntitySampler StateEntity = 3
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySession:
		return "SESSION"
	case StateEntityService:
		return "SERVICE"
	case StateEntitySampler:
		return "SAMPLER"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	Layer Layer `cbor:"1,keyasint"`

	Message string `cbor:"2,keyasint"`

	// Kind is the error class, e.g. "protocol" or "transport".
	Kind string `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
