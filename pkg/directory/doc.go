// Package directory holds the counter directory a client advertises.
//
// The directory is a registry of four entity kinds:
//
//	Category   named group of counters, optionally linked to one Device and one CounterSet
//	Device     named device with a core count
//	CounterSet named set with an informational counter count
//	Counter    sampled measurement, replicated once per core of its device
//
// UIDs are 16-bit, allocated from one space shared by devices, counter sets
// and counters. UID 0 means "none". A counter registered against an N-core
// device consumes the contiguous range [uid, uid+N-1]; every UID in the
// range indexes the same *Counter.
//
// UIDs are peeked before validation and only consumed once the registration
// is known to succeed, so rejected registrations leave no gaps.
package directory
