package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pulse-protocol/pulse-go/pkg/log"
)

// ListenerConfig configures a Listener.
type ListenerConfig struct {
	// Network is "unix" or "tcp" (default: "unix").
	Network string

	// Address to listen on. For unix a leading '@' selects the abstract
	// namespace (default: DefaultSocketAddress). For tcp e.g. "127.0.0.1:0".
	Address string

	// MaxBodyLength caps accepted bodies (default: DefaultMaxBodyLength).
	MaxBodyLength uint32

	// Logger for protocol capture (optional).
	Logger log.Logger

	// OnConnect is called in its own goroutine for every accepted
	// connection. The connection is closed when OnConnect returns.
	OnConnect func(conn *StreamConnection)

	// OnError is called for accept errors while the listener is running.
	OnError func(err error)
}

// Listener accepts server-side connections. Every accepted connection
// detects the client's byte order from its first packet.
type Listener struct {
	config   ListenerConfig
	listener net.Listener

	conns   map[*StreamConnection]struct{}
	connsMu sync.RWMutex

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewListener creates a listener. Call Start to begin accepting.
func NewListener(config ListenerConfig) (*Listener, error) {
	if config.Network == "" {
		config.Network = "unix"
	}
	if config.Network != "unix" && config.Network != "tcp" {
		return nil, fmt.Errorf("unsupported network %q", config.Network)
	}
	if config.Address == "" {
		if config.Network == "tcp" {
			return nil, fmt.Errorf("tcp listener needs an address")
		}
		config.Address = DefaultSocketAddress
	}
	if config.OnConnect == nil {
		return nil, fmt.Errorf("OnConnect is required")
	}
	return &Listener{
		config: config,
		conns:  make(map[*StreamConnection]struct{}),
	}, nil
}

// Start starts listening and accepting connections.
func (l *Listener) Start(ctx context.Context) error {
	if l.running.Load() {
		return fmt.Errorf("listener already running")
	}

	l.ctx, l.cancel = context.WithCancel(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(l.ctx, l.config.Network, l.config.Address)
	if err != nil {
		l.cancel()
		return fmt.Errorf("failed to listen: %w", err)
	}
	l.listener = listener
	l.running.Store(true)

	l.wg.Add(1)
	go l.acceptLoop()

	go func() {
		<-l.ctx.Done()
		l.Stop()
	}()
	return nil
}

// Stop stops accepting and closes all active connections.
func (l *Listener) Stop() error {
	if !l.running.CompareAndSwap(true, false) {
		return nil
	}
	l.cancel()
	l.listener.Close()

	l.connsMu.Lock()
	for conn := range l.conns {
		conn.Close()
	}
	l.connsMu.Unlock()

	l.wg.Wait()
	return nil
}

// Addr returns the listen address.
func (l *Listener) Addr() net.Addr {
	if l.listener != nil {
		return l.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of active connections.
func (l *Listener) ConnectionCount() int {
	l.connsMu.RLock()
	defer l.connsMu.RUnlock()
	return len(l.conns)
}

func (l *Listener) acceptLoop() {
	defer l.wg.Done()

	for l.running.Load() {
		conn, err := l.listener.Accept()
		if err != nil {
			if !l.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			if l.config.OnError != nil {
				l.config.OnError(fmt.Errorf("accept error: %w", err))
			}
			// Back off briefly on persistent accept errors (e.g. EMFILE).
			time.Sleep(10 * time.Millisecond)
			continue
		}

		l.wg.Add(1)
		go l.handleConnection(conn)
	}
}

func (l *Listener) handleConnection(conn net.Conn) {
	defer l.wg.Done()

	connID := uuid.New().String()
	sconn := NewStreamConnection(conn, StreamConfig{
		DetectEndianness: true,
		MaxBodyLength:    l.config.MaxBodyLength,
		ConnID:           connID,
		Role:             log.RoleServer,
		Logger:           l.config.Logger,
	})

	l.logState(sconn, "", "CONNECTED")

	l.connsMu.Lock()
	if !l.running.Load() {
		l.connsMu.Unlock()
		sconn.Close()
		return
	}
	l.conns[sconn] = struct{}{}
	l.connsMu.Unlock()

	l.config.OnConnect(sconn)
	sconn.Close()

	l.connsMu.Lock()
	delete(l.conns, sconn)
	l.connsMu.Unlock()

	l.logState(sconn, "CONNECTED", "DISCONNECTED")
}

func (l *Listener) logState(c *StreamConnection, oldState, newState string) {
	if l.config.Logger == nil {
		return
	}
	remote := ""
	if addr := c.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	l.config.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.ConnID(),
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		LocalRole:    log.RoleServer,
		RemoteAddr:   remote,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
		},
	})
}
