package counters

import (
	"errors"
	"sync"
	"testing"

	"github.com/pulse-protocol/pulse-go/pkg/directory"
	"github.com/pulse-protocol/pulse-go/pkg/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreDeltaAndAbsolute(t *testing.T) {
	s := NewStore()
	s.Track(1, directory.ClassDelta)
	s.Track(2, directory.ClassAbsolute)

	_, err := s.Add(1, 10)
	require.NoError(t, err)
	require.NoError(t, s.Set(2, 77))

	v, err := s.ReadCounterValue(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(10), v)

	_, err = s.Increment(1)
	require.NoError(t, err)
	v, err = s.ReadCounterValue(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v)

	v, err = s.ReadCounterValue(2)
	require.NoError(t, err)
	assert.Equal(t, uint32(77), v)
	v, err = s.ReadCounterValue(2)
	require.NoError(t, err)
	assert.Equal(t, uint32(77), v)

	abs, err := s.GetAbsolute(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(11), abs)
}

func TestStoreSubtractAndWrap(t *testing.T) {
	s := NewStore()
	s.Track(1, directory.ClassDelta)

	n, err := s.Subtract(1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xFFFFFFFF), n)

	n, err = s.Add(1, 3)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), n)

	d, err := s.GetDelta(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), d)
}

func TestStoreUnknownCounter(t *testing.T) {
	s := NewStore()
	_, err := s.ReadCounterValue(9)
	assert.ErrorIs(t, err, ErrUnknownCounter)
	assert.True(t, errors.Is(err, errdefs.ErrCounterRead))
	assert.Error(t, s.Set(9, 1))
}

func TestTrackDirectory(t *testing.T) {
	d := directory.New()
	_, err := d.RegisterCategory("cat")
	require.NoError(t, err)
	_, err = d.RegisterCounter("", "cat", directory.ClassAbsolute, directory.InterpolationStep, 1,
		"c", "d", directory.CounterOptions{NumberOfCores: 3})
	require.NoError(t, err)

	s := NewStore()
	s.TrackDirectory(d)
	assert.Equal(t, 3, s.Len())

	require.NoError(t, s.Set(2, 5))
	s.Reset()
	v, _ := s.GetAbsolute(2)
	assert.Zero(t, v)
}

func TestStoreConcurrentAdds(t *testing.T) {
	s := NewStore()
	s.Track(1, directory.ClassDelta)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				_, _ = s.Increment(1)
			}
		}()
	}
	wg.Wait()

	v, err := s.GetAbsolute(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(8000), v)
}
