package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes protocol events to an slog.Logger at Debug level.
type SlogAdapter struct {
	logger *slog.Logger
	level  slog.Level
}

// NewSlogAdapter creates a SlogAdapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger, level: slog.LevelDebug}
}

// WithLevel returns a copy of the adapter that logs at level.
func (a *SlogAdapter) WithLevel(level slog.Level) *SlogAdapter {
	return &SlogAdapter{logger: a.logger, level: level}
}

// Log writes the event to the slog logger.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("conn_id", event.ConnectionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
		slog.String("role", event.LocalRole.String()),
	}
	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", event.SessionID))
	}
	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote", event.RemoteAddr))
	}

	switch {
	case event.Packet != nil:
		attrs = append(attrs,
			slog.Uint64("family", uint64(event.Packet.Family)),
			slog.Uint64("id", uint64(event.Packet.ID)),
			slog.Uint64("length", uint64(event.Packet.Length)),
		)
		if event.Packet.Endianness != "" {
			attrs = append(attrs, slog.String("endianness", event.Packet.Endianness))
		}
		if event.Packet.Truncated {
			attrs = append(attrs, slog.Bool("truncated", true))
		}
	case event.Decoded != nil:
		attrs = append(attrs, slog.String("packet", event.Decoded.Name))
		if event.Decoded.Period != nil {
			attrs = append(attrs, slog.Uint64("period_us", uint64(*event.Decoded.Period)))
		}
		if len(event.Decoded.CounterIDs) > 0 {
			attrs = append(attrs, slog.Any("counter_ids", event.Decoded.CounterIDs))
		}
		if event.Decoded.CaptureTimestamp != nil {
			attrs = append(attrs, slog.Uint64("timestamp", *event.Decoded.CaptureTimestamp))
		}
		if event.Decoded.ValueCount > 0 {
			attrs = append(attrs, slog.Int("values", event.Decoded.ValueCount))
		}
		if event.Decoded.Version != "" {
			attrs = append(attrs, slog.String("version", event.Decoded.Version))
		}
		if event.Decoded.PID != nil {
			attrs = append(attrs, slog.Uint64("pid", uint64(*event.Decoded.PID)))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
		)
		if event.Error.Kind != "" {
			attrs = append(attrs, slog.String("error_kind", event.Error.Kind))
		}
		if event.Error.Context != "" {
			attrs = append(attrs, slog.String("error_context", event.Error.Context))
		}
	}

	a.logger.LogAttrs(context.Background(), a.level, "protocol", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
