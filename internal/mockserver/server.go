package mockserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pulse-protocol/pulse-go/pkg/config"
	"github.com/pulse-protocol/pulse-go/pkg/discovery"
	"github.com/pulse-protocol/pulse-go/pkg/log"
	"github.com/pulse-protocol/pulse-go/pkg/protocol"
	"github.com/pulse-protocol/pulse-go/pkg/transport"
)

// Defaults.
const (
	DefaultReadTimeout  = 100 * time.Millisecond
	DefaultMaxCaptures  = 1024
	DefaultInstanceName = "pulse-mock"
)

// Config configures a Server.
type Config struct {
	// Network is "unix" or "tcp" (default: "unix").
	Network string

	// Address to listen on (default: the abstract socket address for unix).
	Address string

	// MaxBodyLength caps accepted packet bodies.
	MaxBodyLength uint32

	// ReadTimeout bounds each session read (default: DefaultReadTimeout).
	ReadTimeout time.Duration

	// RequestDirectory asks each client for its directory after the ack.
	RequestDirectory bool

	// Selection is sent to each client once its directory arrives.
	Selection *protocol.PeriodicCounterSelection

	// MaxCaptures bounds the captures a session retains (default: DefaultMaxCaptures).
	MaxCaptures int

	// Advertise publishes a tcp listener over mDNS.
	Advertise    bool
	InstanceName string

	// Advertiser replaces the mDNS advertiser (optional).
	Advertiser discovery.Advertiser

	// Capture receives protocol capture events (optional).
	Capture log.Logger

	// OnSession is called for every new session before it handshakes.
	OnSession func(s *Session)

	// OnCapture is called from the session's receive loop for every capture.
	OnCapture func(s *Session, c protocol.PeriodicCounterCapture)

	Logger *slog.Logger
}

// ConfigFromFile converts the server section of a configuration file.
func ConfigFromFile(c config.Server) Config {
	cfg := Config{
		Network:          c.Network,
		Address:          c.Address,
		MaxBodyLength:    c.MaxBodyLength,
		RequestDirectory: c.RequestDirectory,
		Advertise:        c.Advertise,
		InstanceName:     c.InstanceName,
	}
	if c.Selection != nil {
		cfg.Selection = &protocol.PeriodicCounterSelection{
			Period:     c.Selection.PeriodUs,
			CounterIDs: append([]uint16(nil), c.Selection.Counters...),
		}
	}
	return cfg
}

// Server accepts client connections and tracks their sessions.
type Server struct {
	config   Config
	listener *transport.Listener

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	changed  chan struct{}
	sessions []*Session
	active   map[string]*Session
}

// NewServer creates a server. Call Start to begin listening.
func NewServer(config Config) (*Server, error) {
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = DefaultReadTimeout
	}
	if config.MaxCaptures <= 0 {
		config.MaxCaptures = DefaultMaxCaptures
	}
	if config.InstanceName == "" {
		config.InstanceName = DefaultInstanceName
	}
	if config.Advertise && config.Network != "tcp" {
		return nil, fmt.Errorf("%w: advertise needs a tcp listener", ErrNoListener)
	}

	s := &Server{
		config:  config,
		changed: make(chan struct{}),
		active:  make(map[string]*Session),
	}
	l, err := transport.NewListener(transport.ListenerConfig{
		Network:       config.Network,
		Address:       config.Address,
		MaxBodyLength: config.MaxBodyLength,
		Logger:        config.Capture,
		OnConnect:     s.handleConnection,
		OnError: func(err error) {
			s.logWarn("accept failed", "error", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoListener, err)
	}
	s.listener = l
	return s, nil
}

// Start listens and, when configured, advertises the server.
func (s *Server) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	if err := s.listener.Start(s.ctx); err != nil {
		s.cancel()
		return err
	}
	s.running.Store(true)

	if s.config.Advertise {
		if err := s.advertise(ctx); err != nil {
			s.Stop()
			return err
		}
	}
	s.debugLog("listening", "network", s.config.Network, "addr", s.Addr())
	return nil
}

func (s *Server) advertise(ctx context.Context) error {
	if s.config.Advertiser == nil {
		s.config.Advertiser = discovery.NewMDNSAdvertiser(discovery.AdvertiserConfig{
			TTL:    discovery.DefaultAdvertiserConfig().TTL,
			Logger: s.config.Logger,
		})
	}
	port := 0
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		port = addr.Port
	}
	return s.config.Advertiser.Advertise(ctx, &discovery.ServerInfo{
		InstanceName:  s.config.InstanceName,
		Port:          uint16(port),
		MaxBodyLength: s.config.MaxBodyLength,
		ProcessName:   DefaultInstanceName,
	})
}

// Stop withdraws the advertisement and closes every session.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	if s.config.Advertise && s.config.Advertiser != nil {
		s.config.Advertiser.Stop()
	}
	s.cancel()
	_ = s.listener.Stop()
	s.debugLog("stopped")
}

// Addr returns the listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Sessions returns every session seen, oldest first.
func (s *Server) Sessions() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Session(nil), s.sessions...)
}

// ActiveSessions returns the sessions that are still connected.
func (s *Server) ActiveSessions() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.active))
	for _, sess := range s.sessions {
		if _, ok := s.active[sess.id]; ok {
			out = append(out, sess)
		}
	}
	return out
}

// Session returns a session by id.
func (s *Server) Session(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.id == id {
			return sess, true
		}
	}
	return nil, false
}

// WaitForSession blocks until at least one session exists and returns the
// newest.
func (s *Server) WaitForSession(ctx context.Context) (*Session, error) {
	for {
		s.mu.Lock()
		n := len(s.sessions)
		ch := s.changed
		var last *Session
		if n > 0 {
			last = s.sessions[n-1]
		}
		s.mu.Unlock()

		if last != nil {
			return last, nil
		}
		if !s.running.Load() {
			return nil, ErrNotRunning
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s *Server) handleConnection(conn *transport.StreamConnection) {
	sess := newSession(s, conn)

	s.mu.Lock()
	s.sessions = append(s.sessions, sess)
	s.active[sess.id] = sess
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()

	s.debugLog("session opened", "session", sess.id)
	if s.config.OnSession != nil {
		s.config.OnSession(sess)
	}

	sess.serve(s.ctx)

	s.mu.Lock()
	delete(s.active, sess.id)
	s.mu.Unlock()
}

func (s *Server) debugLog(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, args...)
	}
}

func (s *Server) logWarn(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Warn(msg, args...)
	}
}
