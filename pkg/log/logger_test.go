package log

import (
	"testing"
)

func TestNoopLogger(t *testing.T) {
	var logger NoopLogger
	logger.Log(Event{})
	logger.Log(Event{Packet: &PacketEvent{}, Error: &ErrorEventData{Message: "x"}})
}

func TestMultiLogger(t *testing.T) {
	var a, b []Event
	m := NewMultiLogger(
		LoggerFunc(func(e Event) { a = append(a, e) }),
		nil,
		LoggerFunc(func(e Event) { b = append(b, e) }),
	)
	if m.Len() != 2 {
		t.Fatalf("Len = %d, want 2 (nil skipped)", m.Len())
	}

	m.Log(Event{ConnectionID: "one"})
	m.Log(Event{ConnectionID: "two"})

	if len(a) != 2 || len(b) != 2 {
		t.Fatalf("got %d and %d events", len(a), len(b))
	}
	if a[1].ConnectionID != "two" || b[0].ConnectionID != "one" {
		t.Error("events delivered out of order")
	}
}
