package log

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

// A .plog file is a sequence of self-delimiting CBOR data items, one per
// Event, with no header or framing of its own.

var (
	eventEnc = mustEventEncMode()
	eventDec = mustEventDecMode()
)

func mustEventEncMode() cbor.EncMode {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	opts.NilContainers = cbor.NilContainerAsNull
	m, err := opts.EncMode()
	if err != nil {
		panic("log: cbor encode mode: " + err.Error())
	}
	return m
}

func mustEventDecMode() cbor.DecMode {
	opts := cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyQuiet,
		MaxNestedLevels: 16,
	}
	m, err := opts.DecMode()
	if err != nil {
		panic("log: cbor decode mode: " + err.Error())
	}
	return m
}

// MarshalEvent encodes one event.
func MarshalEvent(event Event) ([]byte, error) {
	return eventEnc.Marshal(event)
}

// UnmarshalEvent decodes one event.
func UnmarshalEvent(data []byte) (Event, error) {
	var event Event
	err := eventDec.Unmarshal(data, &event)
	return event, err
}

func newEventEncoder(w io.Writer) *cbor.Encoder { return eventEnc.NewEncoder(w) }

func newEventDecoder(r io.Reader) *cbor.Decoder { return eventDec.NewDecoder(r) }
