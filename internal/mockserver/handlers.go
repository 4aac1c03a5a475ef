package mockserver

import (
	"github.com/pulse-protocol/pulse-go/pkg/command"
	"github.com/pulse-protocol/pulse-go/pkg/directory"
	"github.com/pulse-protocol/pulse-go/pkg/packet"
	"github.com/pulse-protocol/pulse-go/pkg/protocol"
)

// registry builds the server-side handler table for one session.
func (s *Session) registry() *command.Registry {
	r := command.NewRegistry()
	v := command.DefaultVersion
	r.MustRegister(packet.FamilyControl, packet.IDStreamMetadata, v, command.HandlerFunc(s.handleMetadata))
	r.MustRegister(packet.FamilyControl, packet.IDCounterDirectory, v, command.HandlerFunc(s.handleDirectory))
	r.MustRegister(packet.FamilyControl, packet.IDPeriodicCounterSelection, v, command.HandlerFunc(s.handleSelection))
	r.MustRegister(packet.FamilyCapture, packet.IDPeriodicCounterCapture, v, command.HandlerFunc(s.handleCapture))
	return r
}

// handleMetadata records the stream metadata and acknowledges it. A client
// may resend metadata; every copy is acknowledged.
func (s *Session) handleMetadata(p packet.Packet) error {
	m, _, err := protocol.DecodeStreamMetadata(p.Data())
	if err != nil {
		return err
	}
	s.update(func() { s.metadata = &m })
	s.debugLog("stream metadata",
		"process", m.ProcessName,
		"pid", m.PID,
		"version", m.Version.String(),
		"byte_order", s.conn.Endianness().String())

	return s.conn.Send(packet.ConnectionAckHeader, nil)
}

// handleDirectory records the directory and sends the configured selection
// the first time one arrives.
func (s *Session) handleDirectory(p packet.Packet) error {
	snap, err := directory.Decode(p.Data(), s.conn.Endianness())
	if err != nil {
		return err
	}

	var sendSel bool
	s.update(func() {
		s.dir = &snap
		if s.server.config.Selection != nil && !s.sentSel {
			s.sentSel = true
			sendSel = true
		}
	})
	s.debugLog("counter directory",
		"categories", len(snap.Categories),
		"counters", snap.CounterCount())

	if sendSel {
		return s.SendPeriodicCounterSelection(*s.server.config.Selection)
	}
	return nil
}

func (s *Session) handleSelection(p packet.Packet) error {
	sel, err := protocol.DecodePeriodicCounterSelection(p.Data(), s.conn.Endianness())
	if err != nil {
		return err
	}
	s.update(func() { s.selection = &sel })
	s.debugLog("counter selection", "period_us", sel.Period, "counters", len(sel.CounterIDs))
	return nil
}

func (s *Session) handleCapture(p packet.Packet) error {
	c, err := protocol.DecodePeriodicCounterCapture(p.Data(), s.conn.Endianness())
	if err != nil {
		return err
	}

	limit := s.server.config.MaxCaptures
	s.update(func() {
		s.captureCount++
		s.captures = append(s.captures, c)
		if len(s.captures) > limit {
			s.captures = append(s.captures[:0], s.captures[len(s.captures)-limit:]...)
		}
	})

	if s.server.config.OnCapture != nil {
		s.server.config.OnCapture(s, c)
	}
	return nil
}
