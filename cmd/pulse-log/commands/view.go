// Package commands implements the pulse-log CLI commands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/pulse-protocol/pulse-go/pkg/log"
	"github.com/pulse-protocol/pulse-go/pkg/packet"
)

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [conn:id] ROLE DIRECTION LAYER type
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	connID := shortenID(event.ConnectionID)

	fmt.Fprintf(w, "%s [conn:%s] %-6s %-3s %s %s\n",
		ts, connID, event.LocalRole.String(), event.Direction.String(), event.Layer.String(), typeLabel(event))

	switch {
	case event.Packet != nil:
		formatPacketDetails(w, event.Packet)
	case event.Decoded != nil:
		formatDecodedDetails(w, event.Decoded)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}
	if event.RemoteAddr != "" {
		fmt.Fprintf(w, "  Remote: %s\n", event.RemoteAddr)
	}

	fmt.Fprintln(w)
}

func typeLabel(event log.Event) string {
	switch {
	case event.Packet != nil:
		return packet.Name(packet.Header(uint32(event.Packet.Family), uint32(event.Packet.ID)))
	case event.Decoded != nil:
		return event.Decoded.Name
	case event.StateChange != nil:
		return "State"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// shortenID returns the first 8 characters of an id.
func shortenID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatPacketDetails(w io.Writer, p *log.PacketEvent) {
	fmt.Fprintf(w, "  Family: %d  ID: %d  Length: %d", p.Family, p.ID, p.Length)
	if p.Endianness != "" {
		fmt.Fprintf(w, "  Order: %s", p.Endianness)
	}
	fmt.Fprintln(w)
	if len(p.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(p.Data))
		if p.Truncated {
			fmt.Fprintf(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatDecodedDetails(w io.Writer, d *log.DecodedEvent) {
	if d.Version != "" {
		fmt.Fprintf(w, "  Version: %s\n", d.Version)
	}
	if d.PID != nil {
		fmt.Fprintf(w, "  PID: %d\n", *d.PID)
	}
	if d.Period != nil {
		fmt.Fprintf(w, "  Period: %dus\n", *d.Period)
	}
	if len(d.CounterIDs) > 0 {
		ids := make([]string, len(d.CounterIDs))
		for i, id := range d.CounterIDs {
			ids[i] = fmt.Sprintf("%d", id)
		}
		fmt.Fprintf(w, "  Counters: %s\n", strings.Join(ids, ","))
	}
	if d.CaptureTimestamp != nil {
		fmt.Fprintf(w, "  Timestamp: %d\n", *d.CaptureTimestamp)
	}
	if d.ValueCount > 0 {
		fmt.Fprintf(w, "  Values: %d\n", d.ValueCount)
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity.String())
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer.String())
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Kind != "" {
		fmt.Fprintf(w, "  Kind: %s\n", err.Kind)
	}
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// ParseLayerFlag parses a layer string (case-insensitive).
func ParseLayerFlag(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "protocol":
		return log.LayerProtocol, nil
	case "service":
		return log.LayerService, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be transport, protocol, or service)", s)
	}
}

// ParseDirectionFlag parses a direction string (case-insensitive).
func ParseDirectionFlag(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// ParseCategoryFlag parses a category string (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "packet":
		return log.CategoryPacket, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be packet, state, or error)", s)
	}
}

// ParseRoleFlag parses a role string (case-insensitive).
func ParseRoleFlag(s string) (log.Role, error) {
	switch strings.ToLower(s) {
	case "client":
		return log.RoleClient, nil
	case "server":
		return log.RoleServer, nil
	default:
		return 0, fmt.Errorf("invalid role: %s (must be client or server)", s)
	}
}

// RunView prints every event matching filter.
func RunView(path string, filter log.Filter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event)
	}
	return nil
}
