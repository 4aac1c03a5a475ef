package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestSlogAdapter(t *testing.T) {
	period := uint32(1000)
	tests := []struct {
		name  string
		event Event
		want  []string
	}{
		{"packet", Event{ConnectionID: "c1", Packet: &PacketEvent{Family: 3, Length: 14, Endianness: "little"}},
			[]string{"conn_id=c1", "family=3", "length=14", "endianness=little"}},
		{"decoded", Event{Decoded: &DecodedEvent{Name: "PeriodicCounterSelection", Period: &period, CounterIDs: []uint16{1, 2}}},
			[]string{"packet=PeriodicCounterSelection", "period_us=1000", "counter_ids"}},
		{"state", Event{StateChange: &StateChangeEvent{Entity: StateEntitySession, NewState: "Active", Reason: "ack"}},
			[]string{"entity=SESSION", "new_state=Active", "reason=ack"}},
		{"error", Event{Error: &ErrorEventData{Message: "boom", Kind: "protocol"}, SessionID: "s9"},
			[]string{"error_msg=boom", "error_kind=protocol", "session_id=s9"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			NewSlogAdapter(logger).Log(tt.event)

			out := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output %q missing %q", out, w)
				}
			}
		})
	}
}

func TestSlogAdapterLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	NewSlogAdapter(logger).Log(Event{ConnectionID: "hidden"})
	if buf.Len() != 0 {
		t.Errorf("debug event written at info level: %q", buf.String())
	}

	NewSlogAdapter(logger).WithLevel(slog.LevelInfo).Log(Event{ConnectionID: "shown"})
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("info event missing: %q", buf.String())
	}
}
