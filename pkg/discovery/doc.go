// Package discovery advertises and finds pulse monitoring servers over
// mDNS/DNS-SD.
//
// A server listening on TCP advertises the _pulse._tcp service. The instance
// name is chosen by the server; TXT records carry:
//
//	v    protocol version ("1.0.0")
//	mbl  maximum accepted packet body length
//	pn   server process name (optional)
//
// Unix socket servers are not advertised; clients connect to the well-known
// abstract address instead.
package discovery
