// Package capture holds the active counter selection and runs the periodic
// sampler that turns it into capture packets.
//
// Counter values come from two places: a CounterValueReader for counters the
// runtime owns, and a BackendRegistry for counters owned by backends. Backends
// report values under their own local ids; IDMap translates them to the
// directory UIDs before they go on the wire.
package capture
