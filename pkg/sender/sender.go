// Package sender builds outgoing packets into pooled buffers and drains them
// to the connection from a dedicated goroutine.
package sender

import (
	"fmt"

	"github.com/pulse-protocol/pulse-go/pkg/buffer"
	"github.com/pulse-protocol/pulse-go/pkg/directory"
	"github.com/pulse-protocol/pulse-go/pkg/errdefs"
	"github.com/pulse-protocol/pulse-go/pkg/packet"
	"github.com/pulse-protocol/pulse-go/pkg/protocol"
	"github.com/pulse-protocol/pulse-go/pkg/wire"
)

// Producer writes finished packets for the send thread.
type Producer interface {
	SendStreamMetadata(m protocol.StreamMetadata) error
	SendConnectionAck() error
	SendRequestCounterDirectory() error
	SendCounterDirectory(s directory.Snapshot) error
	SendPeriodicCounterSelection(s protocol.PeriodicCounterSelection) error
	SendPeriodicCounterCapture(c protocol.PeriodicCounterCapture) error
}

// CounterPacketSender encodes packets with a fixed byte order into a
// buffer.Manager. Every Send* call reserves one buffer, writes header and
// body, and commits with notification.
type CounterPacketSender struct {
	buffers *buffer.Manager
	endian  wire.Endianness
}

var _ Producer = (*CounterPacketSender)(nil)

// NewCounterPacketSender creates a sender writing into m with byte order e.
func NewCounterPacketSender(m *buffer.Manager, e wire.Endianness) *CounterPacketSender {
	return &CounterPacketSender{buffers: m, endian: e}
}

// Endianness returns the byte order of produced packets.
func (s *CounterPacketSender) Endianness() wire.Endianness {
	return s.endian
}

// SendStreamMetadata queues the handshake packet. A zero MaxDataLength is
// replaced by the buffer size minus the header.
func (s *CounterPacketSender) SendStreamMetadata(m protocol.StreamMetadata) error {
	if m.MaxDataLength == 0 {
		m.MaxDataLength = uint32(s.buffers.BufferSize() - packet.HeaderSize)
	}
	return s.send(packet.StreamMetadataHeader, protocol.StreamMetadataSize(m), func(w *wire.Writer) {
		protocol.WriteStreamMetadata(w, m)
	})
}

// SendConnectionAck queues an empty Connection Ack.
func (s *CounterPacketSender) SendConnectionAck() error {
	return s.send(packet.ConnectionAckHeader, 0, nil)
}

// SendRequestCounterDirectory queues an empty Request Counter Directory.
func (s *CounterPacketSender) SendRequestCounterDirectory() error {
	return s.send(packet.RequestCounterDirectoryHeader, 0, nil)
}

// SendCounterDirectory queues the encoded directory.
func (s *CounterPacketSender) SendCounterDirectory(snap directory.Snapshot) error {
	return s.send(packet.CounterDirectoryHeader, directory.Size(snap), func(w *wire.Writer) {
		directory.Encode(snap, w)
	})
}

// SendPeriodicCounterSelection queues the selection echo.
func (s *CounterPacketSender) SendPeriodicCounterSelection(sel protocol.PeriodicCounterSelection) error {
	return s.send(packet.PeriodicCounterSelectionHeader, protocol.PeriodicCounterSelectionSize(sel), func(w *wire.Writer) {
		protocol.WritePeriodicCounterSelection(w, sel)
	})
}

// SendPeriodicCounterCapture queues one capture sample.
func (s *CounterPacketSender) SendPeriodicCounterCapture(c protocol.PeriodicCounterCapture) error {
	return s.send(packet.PeriodicCounterCaptureHeader, protocol.PeriodicCounterCaptureSize(c), func(w *wire.Writer) {
		protocol.WritePeriodicCounterCapture(w, c)
	})
}

func (s *CounterPacketSender) send(header uint32, bodySize int, body func(w *wire.Writer)) error {
	total := packet.HeaderSize + bodySize
	buf, got, err := s.buffers.Reserve(total)
	if err != nil {
		return fmt.Errorf("reserve %s: %w", packet.Name(header), err)
	}

	w := wire.NewWriter(buf.Bytes()[:0:got], s.endian)
	w.Uint32(header)
	w.Uint32(uint32(bodySize))
	if body != nil {
		body(w)
	}

	if w.Overflowed() || w.Len() != total {
		s.buffers.Release(buf)
		return errdefs.Protocolf("%s encoded %d bytes, reserved %d", packet.Name(header), w.Len(), total)
	}
	return s.buffers.Commit(buf, w.Len(), true)
}
