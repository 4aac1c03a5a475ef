package protocol

import (
	"github.com/pulse-protocol/pulse-go/pkg/errdefs"
	"github.com/pulse-protocol/pulse-go/pkg/wire"
)

// captureValueSize is the size of one (uid u16, value u32) pair.
const captureValueSize = 6

// CounterValue is one sampled counter.
type CounterValue struct {
	UID   uint16
	Value uint32
}

// PeriodicCounterCapture is one sample of the selected counters.
type PeriodicCounterCapture struct {
	Timestamp uint64
	Values    []CounterValue
}

// PeriodicCounterCaptureSize returns the encoded body size of c.
func PeriodicCounterCaptureSize(c PeriodicCounterCapture) int {
	return 8 + captureValueSize*len(c.Values)
}

// WritePeriodicCounterCapture appends the body of c to w.
func WritePeriodicCounterCapture(w *wire.Writer, c PeriodicCounterCapture) {
	w.Uint64(c.Timestamp)
	for _, v := range c.Values {
		w.Uint16(v.UID)
		w.Uint32(v.Value)
	}
}

// EncodePeriodicCounterCapture returns the body of c in byte order e.
func EncodePeriodicCounterCapture(c PeriodicCounterCapture, e wire.Endianness) []byte {
	w := wire.NewWriter(make([]byte, 0, PeriodicCounterCaptureSize(c)), e)
	WritePeriodicCounterCapture(w, c)
	return w.Bytes()
}

// DecodePeriodicCounterCapture decodes a capture body.
func DecodePeriodicCounterCapture(body []byte, e wire.Endianness) (PeriodicCounterCapture, error) {
	if len(body) < 8 || (len(body)-8)%captureValueSize != 0 {
		return PeriodicCounterCapture{}, errdefs.Protocolf("malformed counter capture: %d bytes", len(body))
	}

	r := wire.NewReader(body, e)
	ts, _ := r.Uint64(0)
	c := PeriodicCounterCapture{
		Timestamp: ts,
		Values:    make([]CounterValue, 0, (len(body)-8)/captureValueSize),
	}
	for off := 8; off < len(body); off += captureValueSize {
		uid, _ := r.Uint16(off)
		value, _ := r.Uint32(off + 2)
		c.Values = append(c.Values, CounterValue{UID: uid, Value: value})
	}
	return c, nil
}
