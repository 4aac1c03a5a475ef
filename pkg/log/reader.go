package log

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects events. Zero-valued fields match every event.
type Filter struct {
	ConnectionID string
	SessionID    string

	Direction *Direction
	Layer     *Layer
	Category  *Category
	Role      *Role

	// Family matches packet and decoded events of one packet family.
	Family *uint8

	// TimeStart is inclusive, TimeEnd exclusive.
	TimeStart *time.Time
	TimeEnd   *time.Time
}

// Match reports whether event passes every criterion in f.
func (f Filter) Match(event Event) bool {
	switch {
	case f.ConnectionID != "" && event.ConnectionID != f.ConnectionID,
		f.SessionID != "" && event.SessionID != f.SessionID,
		f.Direction != nil && event.Direction != *f.Direction,
		f.Layer != nil && event.Layer != *f.Layer,
		f.Category != nil && event.Category != *f.Category,
		f.Role != nil && event.LocalRole != *f.Role,
		f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart),
		f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd):
		return false
	}
	if f.Family != nil {
		family, ok := eventFamily(event)
		return ok && family == *f.Family
	}
	return true
}

// eventFamily returns the packet family an event refers to.
func eventFamily(event Event) (uint8, bool) {
	switch {
	case event.Packet != nil:
		return event.Packet.Family, true
	case event.Decoded != nil:
		return uint8(event.Decoded.Header >> 26), true
	}
	return 0, false
}

// Reader streams events from a .plog file.
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	filter  Filter
	seen    int
}

// NewReader opens path and yields every event.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens path and yields the events matching filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{file: f, decoder: newEventDecoder(f), filter: filter}, nil
}

// Next returns the next matching event, or io.EOF at the end of the file.
// A truncated final event is reported as a decode error.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		err := r.decoder.Decode(&event)
		if errors.Is(err, io.EOF) {
			return Event{}, io.EOF
		}
		if err != nil {
			return Event{}, fmt.Errorf("decode event %d: %w", r.seen, err)
		}
		r.seen++
		if r.filter.Match(event) {
			return event, nil
		}
	}
}

// Seen returns the number of events decoded so far, filtered or not.
func (r *Reader) Seen() int {
	return r.seen
}

// Close closes the file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// ReadAll returns every event in path matching filter.
func ReadAll(path string, filter Filter) ([]Event, error) {
	r, err := NewFilteredReader(path, filter)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var events []Event
	for {
		ev, err := r.Next()
		switch {
		case errors.Is(err, io.EOF):
			return events, nil
		case err != nil:
			return events, err
		}
		events = append(events, ev)
	}
}
