package client

import (
	"fmt"
	"slices"

	"github.com/pulse-protocol/pulse-go/pkg/capture"
	"github.com/pulse-protocol/pulse-go/pkg/packet"
	"github.com/pulse-protocol/pulse-go/pkg/protocol"
)

func (s *Service) handleConnectionAck(p packet.Packet) error {
	switch s.State() {
	case StateActive:
		s.debugLog("duplicate connection ack ignored")
		return nil
	case StateWaitingForAck:
	default:
		return fmt.Errorf("%w: connection ack in state %s", ErrUnexpected, s.State())
	}

	if !s.compareAndSetState(StateWaitingForAck, StateActive) {
		return nil
	}
	return s.producer.SendCounterDirectory(s.config.Directory.Snapshot())
}

func (s *Service) handleRequestCounterDirectory(p packet.Packet) error {
	if st := s.State(); st != StateActive {
		return fmt.Errorf("%w: counter directory request in state %s", ErrUnexpected, st)
	}
	return s.producer.SendCounterDirectory(s.config.Directory.Snapshot())
}

func (s *Service) handlePeriodicCounterSelection(p packet.Packet) error {
	if st := s.State(); st != StateActive {
		return fmt.Errorf("%w: counter selection in state %s", ErrUnexpected, st)
	}

	sel, err := protocol.DecodePeriodicCounterSelection(p.Data(), s.producer.Endianness())
	if err != nil {
		return err
	}
	accepted := s.acceptSelection(sel)

	if !accepted.Enabled() {
		s.sampler.Stop()
		s.holder.Clear()
		s.activateBackends(nil, 0)
		return s.producer.SendPeriodicCounterSelection(accepted)
	}

	perBackend := s.splitBackendCounters(accepted.CounterIDs)
	backends := make([]string, 0, len(perBackend))
	for b := range perBackend {
		backends = append(backends, b)
	}
	slices.Sort(backends)

	s.activateBackends(perBackend, accepted.Period)
	s.holder.Set(accepted.Period, accepted.CounterIDs, backends)
	if err := s.producer.SendPeriodicCounterSelection(accepted); err != nil {
		return err
	}
	s.sampler.Start()
	return nil
}

// acceptSelection clamps the period and drops ids that are not registered.
func (s *Service) acceptSelection(sel protocol.PeriodicCounterSelection) protocol.PeriodicCounterSelection {
	out := protocol.PeriodicCounterSelection{Period: sel.Period}
	if out.Period != 0 && out.Period < s.config.MinCapturePeriod {
		out.Period = s.config.MinCapturePeriod
	}

	seen := make(map[uint16]struct{}, len(sel.CounterIDs))
	for _, uid := range sel.CounterIDs {
		if _, dup := seen[uid]; dup {
			continue
		}
		seen[uid] = struct{}{}
		if _, ok := s.config.Directory.GetCounter(uid); !ok {
			s.debugLog("selection: unknown counter dropped", "uid", uid)
			continue
		}
		out.CounterIDs = append(out.CounterIDs, uid)
	}
	if len(out.CounterIDs) == 0 {
		out.Period = 0
	}
	return out
}

// splitBackendCounters groups the backend-owned ids by backend, as backend-local ids.
func (s *Service) splitBackendCounters(ids []uint16) map[string][]uint16 {
	out := make(map[string][]uint16)
	for _, uid := range ids {
		if bc, ok := s.config.IDs.BackendID(uid); ok {
			out[bc.Backend] = append(out[bc.Backend], bc.LocalID)
		}
	}
	return out
}

func (s *Service) activateBackends(perBackend map[string][]uint16, period uint32) {
	activator, ok := s.config.Backends.(capture.CounterActivator)
	if !ok {
		return
	}

	names := s.config.IDs.Backends()
	for _, b := range names {
		ids := perBackend[b]
		if err := activator.ActivateCounters(b, period, ids); err != nil && s.config.Logger != nil {
			s.config.Logger.Warn("backend counter activation failed", "backend", b, "error", err)
		}
	}
}
