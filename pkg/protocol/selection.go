package protocol

import (
	"github.com/pulse-protocol/pulse-go/pkg/errdefs"
	"github.com/pulse-protocol/pulse-go/pkg/wire"
)

// PeriodicCounterSelection selects counters to sample. An empty CounterIDs
// list, or a zero Period, disables capture.
type PeriodicCounterSelection struct {
	// Period is the capture period in microseconds.
	Period     uint32
	CounterIDs []uint16
}

// Enabled reports whether the selection asks for sampling.
func (s PeriodicCounterSelection) Enabled() bool {
	return s.Period != 0 && len(s.CounterIDs) > 0
}

// PeriodicCounterSelectionSize returns the encoded body size of s.
func PeriodicCounterSelectionSize(s PeriodicCounterSelection) int {
	return 4 + 2*len(s.CounterIDs)
}

// WritePeriodicCounterSelection appends the body of s to w.
func WritePeriodicCounterSelection(w *wire.Writer, s PeriodicCounterSelection) {
	w.Uint32(s.Period)
	for _, id := range s.CounterIDs {
		w.Uint16(id)
	}
}

// EncodePeriodicCounterSelection returns the body of s in byte order e.
func EncodePeriodicCounterSelection(s PeriodicCounterSelection, e wire.Endianness) []byte {
	w := wire.NewWriter(make([]byte, 0, PeriodicCounterSelectionSize(s)), e)
	WritePeriodicCounterSelection(w, s)
	return w.Bytes()
}

// DecodePeriodicCounterSelection decodes a selection body. An empty body is
// the disabling selection.
func DecodePeriodicCounterSelection(body []byte, e wire.Endianness) (PeriodicCounterSelection, error) {
	if len(body) == 0 {
		return PeriodicCounterSelection{}, nil
	}
	if len(body) < 4 || (len(body)-4)%2 != 0 {
		return PeriodicCounterSelection{}, errdefs.Protocolf("malformed counter selection: %d bytes", len(body))
	}

	r := wire.NewReader(body, e)
	period, _ := r.Uint32(0)
	ids := make([]uint16, 0, (len(body)-4)/2)
	for off := 4; off < len(body); off += 2 {
		id, _ := r.Uint16(off)
		ids = append(ids, id)
	}
	return PeriodicCounterSelection{Period: period, CounterIDs: ids}, nil
}
