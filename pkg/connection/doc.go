// Package connection keeps a profiling client attached to its monitoring
// server.
//
// The client service itself never reconnects: a lost link moves it to
// NotConnected and it stays there. A Keeper wraps Start and a wait for link
// loss in a loop, retrying with exponential backoff:
//
//  1. Initial delay: 500 milliseconds
//  2. Exponential increase: 1s, 2s, 4s, 8s
//  3. Maximum delay: 10 seconds
//  4. Reset to the initial delay once a session reaches Active
//
// Jitter spreads out runtimes that lose the same server at once:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
package connection
