// Package counters stores live counter values for the local runtime.
//
// A Store implements the capture sampler's value source: every registered
// UID owns an atomic value, and reads return either the current value or the
// change since the previous read depending on the counter's class.
package counters

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pulse-protocol/pulse-go/pkg/directory"
	"github.com/pulse-protocol/pulse-go/pkg/errdefs"
)

// ErrUnknownCounter is returned for a UID the store does not track.
var ErrUnknownCounter = fmt.Errorf("%w: unknown counter", errdefs.ErrCounterRead)

type value struct {
	class   directory.CounterClass
	current atomic.Uint32
	// last is the value reported by the previous delta read.
	last atomic.Uint32
}

// Store holds one value per counter UID. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	values map[uint16]*value
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{values: make(map[uint16]*value)}
}

// Track starts tracking uid with the given class. Tracking an existing UID
// keeps its value.
func (s *Store) Track(uid uint16, class directory.CounterClass) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[uid]; ok {
		return
	}
	s.values[uid] = &value{class: class}
}

// TrackDirectory tracks every counter UID registered in d.
func (s *Store) TrackDirectory(d *directory.Directory) {
	for uid, c := range d.Counters() {
		s.Track(uid, c.Class)
	}
}

func (s *Store) get(uid uint16) (*value, error) {
	s.mu.RLock()
	v, ok := s.values[uid]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: uid %d", ErrUnknownCounter, uid)
	}
	return v, nil
}

// Set stores an absolute value.
func (s *Store) Set(uid uint16, n uint32) error {
	v, err := s.get(uid)
	if err != nil {
		return err
	}
	v.current.Store(n)
	return nil
}

// Add adds n to the value and returns the new value. Values wrap at 2^32.
func (s *Store) Add(uid uint16, n uint32) (uint32, error) {
	v, err := s.get(uid)
	if err != nil {
		return 0, err
	}
	return v.current.Add(n), nil
}

// Increment adds one.
func (s *Store) Increment(uid uint16) (uint32, error) {
	return s.Add(uid, 1)
}

// Subtract subtracts n from the value and returns the new value.
func (s *Store) Subtract(uid uint16, n uint32) (uint32, error) {
	v, err := s.get(uid)
	if err != nil {
		return 0, err
	}
	return v.current.Add(^(n - 1)), nil
}

// GetAbsolute returns the current value.
func (s *Store) GetAbsolute(uid uint16) (uint32, error) {
	v, err := s.get(uid)
	if err != nil {
		return 0, err
	}
	return v.current.Load(), nil
}

// GetDelta returns the change since the previous GetDelta and resets the
// reference point.
func (s *Store) GetDelta(uid uint16) (uint32, error) {
	v, err := s.get(uid)
	if err != nil {
		return 0, err
	}
	cur := v.current.Load()
	prev := v.last.Swap(cur)
	return cur - prev, nil
}

// ReadCounterValue returns the delta for delta counters and the current value
// for absolute counters.
func (s *Store) ReadCounterValue(uid uint16) (uint32, error) {
	v, err := s.get(uid)
	if err != nil {
		return 0, err
	}
	if v.class == directory.ClassAbsolute {
		return v.current.Load(), nil
	}
	cur := v.current.Load()
	return cur - v.last.Swap(cur), nil
}

// Len returns the number of tracked UIDs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Reset zeroes every value.
func (s *Store) Reset() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.values {
		v.current.Store(0)
		v.last.Store(0)
	}
}
