package buffer

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pulse-protocol/pulse-go/pkg/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingConsumer struct {
	n atomic.Int32
}

func (c *countingConsumer) SetReadyToRead() { c.n.Add(1) }

func TestReserveCommitRead(t *testing.T) {
	m := NewManager(Config{Count: 2, Size: 16})
	c := &countingConsumer{}
	m.SetConsumer(c)

	buf, got, err := m.Reserve(8)
	require.NoError(t, err)
	assert.Equal(t, 8, got)
	copy(buf.Bytes(), "abcdefgh")
	require.NoError(t, m.Commit(buf, 5, true))
	assert.Equal(t, int32(1), c.n.Load())

	second, _, err := m.Reserve(4)
	require.NoError(t, err)
	copy(second.Bytes(), "wxyz")
	require.NoError(t, m.Commit(second, 4, false))
	assert.Equal(t, int32(1), c.n.Load())
	assert.Equal(t, 0, m.Free())
	assert.Equal(t, 2, m.Readable())

	r := m.ReadableBuffer()
	require.NotNil(t, r)
	assert.Equal(t, []byte("abcde"), r.Data())
	m.MarkRead(r)

	r = m.ReadableBuffer()
	require.NotNil(t, r)
	assert.Equal(t, []byte("wxyz"), r.Data())
	m.MarkRead(r)

	assert.Nil(t, m.ReadableBuffer())
	assert.Equal(t, 2, m.Free())
}

func TestReserveTooLarge(t *testing.T) {
	m := NewManager(Config{Count: 1, Size: 16})
	buf, got, err := m.Reserve(17)
	assert.Nil(t, buf)
	assert.Equal(t, 0, got)
	assert.ErrorIs(t, err, errdefs.ErrBufferExhausted)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestReserveFailPolicy(t *testing.T) {
	m := NewManager(Config{Count: 1, Size: 16, Policy: PolicyFail})
	_, _, err := m.Reserve(4)
	require.NoError(t, err)

	_, got, err := m.Reserve(4)
	assert.Equal(t, 0, got)
	assert.True(t, errors.Is(err, errdefs.ErrBufferExhausted))
}

func TestReserveBlockPolicy(t *testing.T) {
	m := NewManager(Config{Count: 1, Size: 16})
	first, _, err := m.Reserve(4)
	require.NoError(t, err)

	got := make(chan error, 1)
	go func() {
		_, _, err := m.Reserve(4)
		got <- err
	}()

	select {
	case <-got:
		t.Fatal("Reserve returned while pool was empty")
	case <-time.After(30 * time.Millisecond):
	}

	m.Release(first)
	select {
	case err := <-got:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Reserve not woken by Release")
	}
}

func TestCloseWakesReserve(t *testing.T) {
	m := NewManager(Config{Count: 1, Size: 16})
	_, _, err := m.Reserve(4)
	require.NoError(t, err)

	got := make(chan error, 1)
	go func() {
		_, _, err := m.Reserve(4)
		got <- err
	}()
	time.Sleep(10 * time.Millisecond)
	m.Close()

	select {
	case err := <-got:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Reserve not woken by Close")
	}
}

func TestCommitErrors(t *testing.T) {
	m := NewManager(Config{Count: 1, Size: 16})
	buf, _, err := m.Reserve(4)
	require.NoError(t, err)

	assert.ErrorIs(t, m.Commit(buf, 5, false), ErrCommitTooLarge)
	require.NoError(t, m.Commit(buf, 0, false))
	assert.Equal(t, 1, m.Free())
	assert.Equal(t, 0, m.Readable())

	assert.ErrorIs(t, m.Commit(buf, 1, false), ErrNotReserved)
}

func TestFlushAndReset(t *testing.T) {
	m := NewManager(Config{Count: 2, Size: 8})
	c := &countingConsumer{}
	m.SetConsumer(c)
	m.Flush()
	assert.Equal(t, int32(1), c.n.Load())

	buf, _, err := m.Reserve(8)
	require.NoError(t, err)
	require.NoError(t, m.Commit(buf, 8, false))
	m.Reset()
	assert.Equal(t, 0, m.Readable())
	assert.Equal(t, 2, m.Free())
}

func TestPolicyString(t *testing.T) {
	assert.Equal(t, "block", PolicyBlock.String())
	assert.Equal(t, "fail", PolicyFail.String())
	assert.Equal(t, "Policy(9)", Policy(9).String())
}
