// Package log captures protocol events for pulse connections.
//
// This is separate from operational logging (slog): protocol capture records
// every packet, decoded body summary, state change and error as a
// machine-readable trace.
//
// # Basic Usage
//
//	// Console output through slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Binary capture file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/tmp/runtime.plog")
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
//   - Transport: packet header and body bytes (PacketEvent)
//   - Protocol: decoded packet summaries (DecodedEvent)
//   - Service: state changes (StateChangeEvent)
//
// Errors at any layer use ErrorEventData.
//
// # File Format
//
// Capture files are a stream of CBOR-encoded events with the .plog
// extension. The pulse-log command views, filters and summarizes them.
package log
