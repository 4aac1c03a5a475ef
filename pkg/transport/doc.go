// Package transport moves pulse packets over byte streams.
//
// # Packet Stack
//
//	┌────────────────────────────────┐
//	│   Packet body (protocol/*)     │
//	├────────────────────────────────┤
//	│  Header: word0 family|id, len  │
//	├────────────────────────────────┤
//	│  Unix socket │ TCP │ loopback  │
//	└────────────────────────────────┘
//
// # Endianness
//
// The first packet on a connection is the client's stream metadata. Its body
// starts with a magic word; a server-side Framer created with
// NewDetectingFramer detects the client's byte order from that word and uses
// it for the header and every later packet.
//
// # Connections
//
// Every implementation satisfies Connection:
//   - SocketConnection: non-blocking AF_UNIX socket driven by poll (linux)
//   - StreamConnection: any net.Conn, used for TCP and accepted sockets
//   - LoopbackConnection: in-process peer with handler fan-out
//
// ReadPacket(timeout) returns the empty packet and an error matching
// errdefs.ErrTimeout when nothing arrives in time. Poll errors, hang-ups and
// short reads are connection-fatal and match errdefs.ErrTransport.
package transport
