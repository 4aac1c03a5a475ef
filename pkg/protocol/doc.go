// Package protocol encodes and decodes the bodies of the well-known pulse packets.
//
// Packet catalogue (family, id):
//
//	(0,0) StreamMetadata            client -> server, first packet on a connection
//	(0,1) ConnectionAck             server -> client, empty body
//	(0,2) CounterDirectory          client -> server, see package directory
//	(0,3) RequestCounterDirectory   server -> client, empty body
//	(0,4) PeriodicCounterSelection  both directions; server selects, client echoes
//	(3,0) PeriodicCounterCapture    client -> server
//
// Every Write function appends to a wire.Writer so producers can encode
// straight into a reserved packet buffer; the matching Size function returns
// the exact body size to reserve.
package protocol
