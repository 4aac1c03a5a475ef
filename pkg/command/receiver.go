package command

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pulse-protocol/pulse-go/pkg/errdefs"
	"github.com/pulse-protocol/pulse-go/pkg/packet"
)

// DefaultReadTimeout bounds each ReadPacket call of the receive loop.
const DefaultReadTimeout = 500 * time.Millisecond

// State is the lifecycle state of a worker loop.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopRequested
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopRequested:
		return "STOP_REQUESTED"
	default:
		return "UNKNOWN"
	}
}

// PacketReader is the read half of a connection.
type PacketReader interface {
	ReadPacket(timeout time.Duration) (packet.Packet, error)
}

// ReceiverConfig configures a Receiver.
type ReceiverConfig struct {
	Reader   PacketReader
	Registry *Registry

	// Resolver picks the expected version per packet. Nil means DefaultVersionResolver.
	Resolver VersionResolver

	// ReadTimeout bounds each read (default: DefaultReadTimeout).
	ReadTimeout time.Duration

	// StopAfterTimeout ends the loop cleanly on the first read timeout.
	StopAfterTimeout bool

	// PanicOnUnknownCommand panics instead of stopping when a packet has no handler.
	PanicOnUnknownCommand bool

	// OnStop is called from the worker once the loop ends. err is nil for a
	// requested stop.
	OnStop func(err error)

	Logger *slog.Logger
}

// Receiver runs the receive loop: read, resolve version, resolve handler, invoke.
type Receiver struct {
	config ReceiverConfig

	state atomic.Int32

	// mu serializes Start and Stop.
	mu   sync.Mutex
	done chan struct{}

	errMu sync.Mutex
	err   error

	handled atomic.Uint64
}

// NewReceiver creates a stopped receiver.
func NewReceiver(config ReceiverConfig) *Receiver {
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = DefaultReadTimeout
	}
	if config.Resolver == nil {
		config.Resolver = DefaultVersionResolver{}
	}
	r := &Receiver{config: config}
	r.state.Store(int32(StateStopped))
	return r
}

// State returns the current lifecycle state.
func (r *Receiver) State() State {
	return State(r.state.Load())
}

// IsRunning reports whether the worker is active.
func (r *Receiver) IsRunning() bool {
	s := r.State()
	return s == StateStarting || s == StateRunning
}

// Err returns the error that ended the last run, if any.
func (r *Receiver) Err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.err
}

// Handled returns the number of packets dispatched to handlers.
func (r *Receiver) Handled() uint64 {
	return r.handled.Load()
}

// Start spawns the worker. Starting a running receiver is a no-op.
func (r *Receiver) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.State() != StateStopped {
		return
	}
	if r.done != nil {
		<-r.done
	}

	r.errMu.Lock()
	r.err = nil
	r.errMu.Unlock()

	r.state.Store(int32(StateStarting))
	r.done = make(chan struct{})
	go r.run(r.done)
}

// Stop requests the worker to exit and waits for it. Stop is idempotent and
// safe on a receiver that was never started.
func (r *Receiver) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done == nil {
		return
	}
	for {
		s := r.State()
		if s != StateStarting && s != StateRunning {
			break
		}
		if r.state.CompareAndSwap(int32(s), int32(StateStopRequested)) {
			break
		}
	}
	<-r.done
	r.state.Store(int32(StateStopped))
}

// Done returns a channel closed when the current run ends. It is closed
// already if the receiver was never started.
func (r *Receiver) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return r.done
}

func (r *Receiver) run(done chan struct{}) {
	r.state.CompareAndSwap(int32(StateStarting), int32(StateRunning))

	err := r.loop()

	r.errMu.Lock()
	r.err = err
	r.errMu.Unlock()

	if err != nil {
		r.logError("receive loop stopped", err)
	} else {
		r.debugLog("receive loop stopped")
	}

	r.state.Store(int32(StateStopped))
	close(done)

	if r.config.OnStop != nil {
		r.config.OnStop(err)
	}
}

func (r *Receiver) loop() error {
	for State(r.state.Load()) != StateStopRequested {
		p, err := r.config.Reader.ReadPacket(r.config.ReadTimeout)
		if err != nil {
			if errors.Is(err, errdefs.ErrTimeout) {
				if r.config.StopAfterTimeout {
					return nil
				}
				continue
			}
			return err
		}
		if p.IsEmpty() {
			continue
		}
		if err := r.dispatch(p); err != nil {
			return err
		}
	}
	return nil
}

func (r *Receiver) dispatch(p packet.Packet) error {
	family, id := p.Family(), p.ID()
	v := r.config.Resolver.ResolvePacketVersion(family, id)

	h, err := r.config.Registry.Resolve(family, id, v)
	if err != nil {
		if r.config.PanicOnUnknownCommand {
			panic(err)
		}
		return err
	}

	r.debugLog("dispatch", "packet", packet.Name(p.Header()), "version", v.String(), "length", p.Length())
	if err := h.HandlePacket(p); err != nil {
		return err
	}
	r.handled.Add(1)
	return nil
}

// debugLog logs a debug message if a logger is configured.
func (r *Receiver) debugLog(msg string, args ...any) {
	if r.config.Logger != nil {
		r.config.Logger.Debug(msg, args...)
	}
}

func (r *Receiver) logError(msg string, err error) {
	if r.config.Logger != nil {
		r.config.Logger.Error(msg, "error", err)
	}
}
