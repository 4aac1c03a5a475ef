package mockserver

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/pulse-protocol/pulse-go/pkg/command"
	"github.com/pulse-protocol/pulse-go/pkg/directory"
	"github.com/pulse-protocol/pulse-go/pkg/errdefs"
	"github.com/pulse-protocol/pulse-go/pkg/packet"
	"github.com/pulse-protocol/pulse-go/pkg/protocol"
	"github.com/pulse-protocol/pulse-go/pkg/transport"
	"github.com/pulse-protocol/pulse-go/pkg/wire"
)

// Session is one connected client.
type Session struct {
	id     string
	conn   *transport.StreamConnection
	server *Server
	logger *slog.Logger

	mu           sync.Mutex
	changed      chan struct{}
	metadata     *protocol.StreamMetadata
	dir          *directory.Snapshot
	selection    *protocol.PeriodicCounterSelection
	captures     []protocol.PeriodicCounterCapture
	captureCount uint64
	sentSel      bool
	closed       bool
	err          error

	done chan struct{}
}

func newSession(srv *Server, conn *transport.StreamConnection) *Session {
	return &Session{
		id:      conn.ConnID(),
		conn:    conn,
		server:  srv,
		logger:  srv.config.Logger,
		changed: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Endianness returns the byte order detected from the client.
func (s *Session) Endianness() wire.Endianness {
	return s.conn.Endianness()
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that ended the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Metadata returns the client's stream metadata.
func (s *Session) Metadata() (protocol.StreamMetadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.metadata == nil {
		return protocol.StreamMetadata{}, false
	}
	return *s.metadata, true
}

// Directory returns the last counter directory received.
func (s *Session) Directory() (directory.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir == nil {
		return directory.Snapshot{}, false
	}
	return *s.dir, true
}

// Selection returns the last counter selection received from the client.
func (s *Session) Selection() (protocol.PeriodicCounterSelection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selection == nil {
		return protocol.PeriodicCounterSelection{}, false
	}
	return *s.selection, true
}

// Captures returns the retained captures, oldest first.
func (s *Session) Captures() []protocol.PeriodicCounterCapture {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.PeriodicCounterCapture, len(s.captures))
	copy(out, s.captures)
	return out
}

// CaptureCount returns the number of captures received, including dropped ones.
func (s *Session) CaptureCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captureCount
}

// SendRequestCounterDirectory asks the client for its counter directory.
func (s *Session) SendRequestCounterDirectory() error {
	return s.send(packet.RequestCounterDirectoryHeader, nil)
}

// SendPeriodicCounterSelection asks the client to sample sel.
func (s *Session) SendPeriodicCounterSelection(sel protocol.PeriodicCounterSelection) error {
	return s.send(packet.PeriodicCounterSelectionHeader,
		protocol.EncodePeriodicCounterSelection(sel, s.conn.Endianness()))
}

// Close ends the session.
func (s *Session) Close() error {
	return s.conn.Close()
}

func (s *Session) send(header uint32, body []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}
	return s.conn.Send(header, body)
}

// WaitForDirectory blocks until a counter directory has been received.
func (s *Session) WaitForDirectory(ctx context.Context) (directory.Snapshot, error) {
	var snap directory.Snapshot
	err := s.waitFor(ctx, func() bool {
		if s.dir == nil {
			return false
		}
		snap = *s.dir
		return true
	})
	return snap, err
}

// WaitForSelection blocks until the client has echoed a selection.
func (s *Session) WaitForSelection(ctx context.Context) (protocol.PeriodicCounterSelection, error) {
	var sel protocol.PeriodicCounterSelection
	err := s.waitFor(ctx, func() bool {
		if s.selection == nil {
			return false
		}
		sel = *s.selection
		return true
	})
	return sel, err
}

// WaitForCapture blocks until at least n captures have been received and
// returns the retained ones.
func (s *Session) WaitForCapture(ctx context.Context, n int) ([]protocol.PeriodicCounterCapture, error) {
	var out []protocol.PeriodicCounterCapture
	err := s.waitFor(ctx, func() bool {
		if s.captureCount < uint64(n) {
			return false
		}
		out = make([]protocol.PeriodicCounterCapture, len(s.captures))
		copy(out, s.captures)
		return true
	})
	return out, err
}

// waitFor evaluates ready under the session lock after every change.
func (s *Session) waitFor(ctx context.Context, ready func() bool) error {
	for {
		s.mu.Lock()
		ok := ready()
		closed := s.closed
		ch := s.changed
		s.mu.Unlock()

		if ok {
			return nil
		}
		if closed {
			return ErrSessionClosed
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// update applies fn under the lock and wakes waiters.
func (s *Session) update(fn func()) {
	s.mu.Lock()
	fn()
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
}

// serve runs the session until the client leaves, a packet fails, or ctx
// ends. The listener closes the connection afterwards.
func (s *Session) serve(ctx context.Context) {
	err := s.run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		s.logWarn("session ended", "error", err)
	} else {
		s.debugLog("session ended")
	}
	s.update(func() {
		s.closed = true
		s.err = err
	})
	close(s.done)
}

func (s *Session) run(ctx context.Context) error {
	m, err := s.handshake(ctx)
	if err != nil {
		return err
	}

	receiver := command.NewReceiver(command.ReceiverConfig{
		Reader:      s.conn,
		Registry:    s.registry(),
		Resolver:    command.NewTableVersionResolver(m.PacketVersions),
		ReadTimeout: s.server.config.ReadTimeout,
		Logger:      s.logger,
	})
	receiver.Start()
	defer receiver.Stop()

	if s.server.config.RequestDirectory {
		if err := s.SendRequestCounterDirectory(); err != nil {
			return err
		}
	}

	select {
	case <-receiver.Done():
		err := receiver.Err()
		if errors.Is(err, transport.ErrClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handshake waits for the stream metadata and acknowledges it.
func (s *Session) handshake(ctx context.Context) (protocol.StreamMetadata, error) {
	for {
		if err := ctx.Err(); err != nil {
			return protocol.StreamMetadata{}, err
		}
		p, err := s.conn.ReadPacket(s.server.config.ReadTimeout)
		if errors.Is(err, errdefs.ErrTimeout) {
			continue
		}
		if err != nil {
			return protocol.StreamMetadata{}, err
		}
		if p.IsEmpty() {
			continue
		}
		if err := s.handleMetadata(p); err != nil {
			return protocol.StreamMetadata{}, err
		}
		m, _ := s.Metadata()
		return m, nil
	}
}

func (s *Session) debugLog(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, append([]any{"session", s.id}, args...)...)
	}
}

func (s *Session) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, append([]any{"session", s.id}, args...)...)
	}
}

