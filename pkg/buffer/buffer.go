// Package buffer provides the Reserve/Commit packet buffer pool used by the
// send path.
//
// A producer reserves a buffer large enough for the packet it is about to
// build, writes into Bytes(), and commits the number of bytes actually used.
// Committed buffers become readable in commit order; the consumer takes them
// with ReadableBuffer and hands them back with MarkRead.
package buffer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pulse-protocol/pulse-go/pkg/errdefs"
)

// Defaults.
const (
	DefaultCount = 8
	DefaultSize  = 4096
)

// Policy selects what Reserve does when every buffer is in use.
type Policy uint8

const (
	// PolicyBlock waits until a buffer is released or read.
	PolicyBlock Policy = iota

	// PolicyFail returns ErrBufferExhausted immediately.
	PolicyFail
)

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case PolicyBlock:
		return "block"
	case PolicyFail:
		return "fail"
	default:
		return fmt.Sprintf("Policy(%d)", uint8(p))
	}
}

// Buffer errors.
var (
	ErrTooLarge       = fmt.Errorf("%w: reservation larger than buffer size", errdefs.ErrBufferExhausted)
	ErrNoBuffer       = fmt.Errorf("%w: no free buffer", errdefs.ErrBufferExhausted)
	ErrClosed         = errors.New("buffer manager closed")
	ErrCommitTooLarge = errors.New("commit size exceeds reservation")
	ErrNotReserved    = errors.New("buffer is not reserved")
)

// Consumer is notified when committed data is ready to be read.
type Consumer interface {
	SetReadyToRead()
}

// Config configures a Manager.
type Config struct {
	// Count is the number of buffers in the pool.
	Count int

	// Size is the capacity of each buffer in bytes.
	Size int

	Policy Policy

	// Logger is used for debug output (optional).
	Logger *slog.Logger
}

type state uint8

const (
	stateFree state = iota
	stateReserved
	stateReadable
	stateReading
)

// Buffer is one pooled packet buffer.
type Buffer struct {
	data     []byte
	reserved int
	size     int
	state    state
}

// Bytes returns the writable region of a reserved buffer.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.reserved]
}

// Data returns the committed bytes of a readable buffer.
func (b *Buffer) Data() []byte {
	return b.data[:b.size]
}

// Len returns the committed size.
func (b *Buffer) Len() int {
	return b.size
}

// Manager owns a fixed pool of buffers.
type Manager struct {
	config Config

	mu       sync.Mutex
	freed    *sync.Cond
	free     []*Buffer
	readable []*Buffer
	closed   bool
	consumer Consumer
}

// NewManager creates a pool of config.Count buffers of config.Size bytes.
func NewManager(config Config) *Manager {
	if config.Count <= 0 {
		config.Count = DefaultCount
	}
	if config.Size <= 0 {
		config.Size = DefaultSize
	}

	m := &Manager{config: config}
	m.freed = sync.NewCond(&m.mu)
	m.free = make([]*Buffer, 0, config.Count)
	for range config.Count {
		m.free = append(m.free, &Buffer{data: make([]byte, config.Size)})
	}
	return m
}

// BufferSize returns the capacity of each buffer.
func (m *Manager) BufferSize() int {
	return m.config.Size
}

// SetConsumer registers the consumer notified on Commit and Flush.
func (m *Manager) SetConsumer(c Consumer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumer = c
}

// Reserve claims a buffer with room for n bytes. It returns the buffer and
// the number of bytes granted; got is 0 whenever err is non-nil.
func (m *Manager) Reserve(n int) (buf *Buffer, got int, err error) {
	if n > m.config.Size || n < 0 {
		return nil, 0, fmt.Errorf("%w: %d > %d", ErrTooLarge, n, m.config.Size)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.free) == 0 && !m.closed {
		if m.config.Policy == PolicyFail {
			return nil, 0, ErrNoBuffer
		}
		m.freed.Wait()
	}
	if m.closed {
		return nil, 0, ErrClosed
	}

	last := len(m.free) - 1
	buf = m.free[last]
	m.free[last] = nil
	m.free = m.free[:last]

	buf.reserved = n
	buf.size = 0
	buf.state = stateReserved
	return buf, n, nil
}

// Commit marks the first size bytes of a reserved buffer readable. If notify
// is set the consumer is woken.
func (m *Manager) Commit(buf *Buffer, size int, notify bool) error {
	m.mu.Lock()
	if buf.state != stateReserved {
		m.mu.Unlock()
		return ErrNotReserved
	}
	if size > buf.reserved || size < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d > %d", ErrCommitTooLarge, size, buf.reserved)
	}

	if size == 0 {
		m.releaseLocked(buf)
		m.mu.Unlock()
		return nil
	}

	buf.size = size
	buf.state = stateReadable
	m.readable = append(m.readable, buf)
	consumer := m.consumer
	m.mu.Unlock()

	if notify && consumer != nil {
		consumer.SetReadyToRead()
	}
	return nil
}

// Release returns a reserved buffer to the pool without committing it.
func (m *Manager) Release(buf *Buffer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if buf.state == stateReserved {
		m.releaseLocked(buf)
	}
}

// ReadableBuffer returns the oldest committed buffer, or nil if there is none.
func (m *Manager) ReadableBuffer() *Buffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.readable) == 0 {
		return nil
	}
	buf := m.readable[0]
	m.readable[0] = nil
	m.readable = m.readable[1:]
	buf.state = stateReading
	return buf
}

// MarkRead returns a buffer obtained from ReadableBuffer to the pool.
func (m *Manager) MarkRead(buf *Buffer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if buf.state == stateReading {
		m.releaseLocked(buf)
	}
}

// Readable returns the number of committed buffers not yet read.
func (m *Manager) Readable() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.readable)
}

// Free returns the number of buffers available for Reserve.
func (m *Manager) Free() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.free)
}

// Flush wakes the consumer regardless of pending notifications.
func (m *Manager) Flush() {
	m.mu.Lock()
	consumer := m.consumer
	m.mu.Unlock()
	if consumer != nil {
		consumer.SetReadyToRead()
	}
}

// Reset drops every readable buffer and returns all buffers to the pool.
// Outstanding reservations are invalidated.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	dropped := len(m.readable)
	m.readable = nil
	m.free = m.free[:0]
	for range m.config.Count {
		m.free = append(m.free, &Buffer{data: make([]byte, m.config.Size)})
	}
	m.closed = false
	m.freed.Broadcast()

	if m.config.Logger != nil && dropped > 0 {
		m.config.Logger.Debug("buffer: reset dropped readable buffers", "count", dropped)
	}
}

// Close wakes blocked Reserve calls with ErrClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.freed.Broadcast()
}

func (m *Manager) releaseLocked(buf *Buffer) {
	buf.reserved = 0
	buf.size = 0
	buf.state = stateFree
	m.free = append(m.free, buf)
	m.freed.Signal()
}
