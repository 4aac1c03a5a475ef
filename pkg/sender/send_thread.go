package sender

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pulse-protocol/pulse-go/pkg/buffer"
	"github.com/pulse-protocol/pulse-go/pkg/command"
)

// DefaultFlushTimeout is how long the send thread sleeps without a commit
// notification before checking the buffers anyway.
const DefaultFlushTimeout = 100 * time.Millisecond

// PacketWriter is the write half of a connection.
type PacketWriter interface {
	WritePacket(b []byte) error
}

// SendThreadConfig configures a SendThread.
type SendThreadConfig struct {
	Buffers *buffer.Manager
	Writer  PacketWriter

	// FlushTimeout bounds the wait between drains (default: DefaultFlushTimeout).
	FlushTimeout time.Duration

	// OnError is called from the worker when a write fails. The thread stops.
	OnError func(err error)

	Logger *slog.Logger
}

// SendThread drains committed buffers to the writer in commit order.
type SendThread struct {
	config SendThreadConfig

	state atomic.Int32
	wake  chan struct{}

	mu     sync.Mutex
	stopCh chan struct{}
	done   chan struct{}

	errMu sync.Mutex
	err   error

	sent atomic.Uint64
}

var _ buffer.Consumer = (*SendThread)(nil)

// NewSendThread creates a stopped send thread and registers it as the
// consumer of config.Buffers.
func NewSendThread(config SendThreadConfig) *SendThread {
	if config.FlushTimeout <= 0 {
		config.FlushTimeout = DefaultFlushTimeout
	}
	t := &SendThread{
		config: config,
		wake:   make(chan struct{}, 1),
	}
	t.state.Store(int32(command.StateStopped))
	config.Buffers.SetConsumer(t)
	return t
}

// SetReadyToRead wakes the worker.
func (t *SendThread) SetReadyToRead() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// State returns the lifecycle state.
func (t *SendThread) State() command.State {
	return command.State(t.state.Load())
}

// IsRunning reports whether the worker is active.
func (t *SendThread) IsRunning() bool {
	s := t.State()
	return s == command.StateStarting || s == command.StateRunning
}

// Err returns the write error that stopped the thread, if any.
func (t *SendThread) Err() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.err
}

// Sent returns the number of packets written.
func (t *SendThread) Sent() uint64 {
	return t.sent.Load()
}

// Start spawns the worker. Starting a running thread is a no-op.
func (t *SendThread) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.State() != command.StateStopped {
		return
	}
	if t.done != nil {
		<-t.done
	}

	t.errMu.Lock()
	t.err = nil
	t.errMu.Unlock()

	t.state.Store(int32(command.StateStarting))
	t.stopCh = make(chan struct{})
	t.done = make(chan struct{})
	go t.run(t.stopCh, t.done)
}

// Stop drains what is already committed, ends the worker and waits for it.
// Stop is idempotent.
func (t *SendThread) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done == nil {
		return
	}
	if t.state.CompareAndSwap(int32(command.StateRunning), int32(command.StateStopRequested)) ||
		t.state.CompareAndSwap(int32(command.StateStarting), int32(command.StateStopRequested)) {
		close(t.stopCh)
	}
	<-t.done
	t.state.Store(int32(command.StateStopped))
}

func (t *SendThread) run(stopCh, done chan struct{}) {
	t.state.CompareAndSwap(int32(command.StateStarting), int32(command.StateRunning))

	err := t.loop(stopCh)
	if err != nil {
		t.errMu.Lock()
		t.err = err
		t.errMu.Unlock()
		if t.config.Logger != nil {
			t.config.Logger.Error("send thread: write failed", "error", err)
		}
	} else {
		t.debugLog("send thread stopped", "sent", t.sent.Load())
	}

	t.state.Store(int32(command.StateStopped))
	close(done)

	if err != nil && t.config.OnError != nil {
		t.config.OnError(err)
	}
}

func (t *SendThread) loop(stopCh chan struct{}) error {
	timer := time.NewTimer(t.config.FlushTimeout)
	defer timer.Stop()

	for {
		if err := t.drain(); err != nil {
			return err
		}

		select {
		case <-stopCh:
			return t.drain()
		case <-t.wake:
		case <-timer.C:
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(t.config.FlushTimeout)
	}
}

// drain writes every readable buffer in commit order.
func (t *SendThread) drain() error {
	for {
		buf := t.config.Buffers.ReadableBuffer()
		if buf == nil {
			return nil
		}
		err := t.config.Writer.WritePacket(buf.Data())
		t.config.Buffers.MarkRead(buf)
		if err != nil {
			return err
		}
		t.sent.Add(1)
	}
}

func (t *SendThread) debugLog(msg string, args ...any) {
	if t.config.Logger != nil {
		t.config.Logger.Debug(msg, args...)
	}
}
