package client

import (
	"context"
	"os"
	"sync"

	"github.com/pulse-protocol/pulse-go/pkg/buffer"
	"github.com/pulse-protocol/pulse-go/pkg/capture"
	"github.com/pulse-protocol/pulse-go/pkg/command"
	"github.com/pulse-protocol/pulse-go/pkg/directory"
	"github.com/pulse-protocol/pulse-go/pkg/packet"
	"github.com/pulse-protocol/pulse-go/pkg/protocol"
	"github.com/pulse-protocol/pulse-go/pkg/sender"
	"github.com/pulse-protocol/pulse-go/pkg/transport"
	"github.com/pulse-protocol/pulse-go/pkg/version"
	"github.com/pulse-protocol/pulse-go/pkg/wire"
)

// Service is the runtime side of a pulse connection.
type Service struct {
	config Config

	mu      sync.Mutex
	state   State
	changed chan struct{}

	// lifecycle serializes Start, Stop and Reset.
	lifecycle sync.Mutex

	holder   *capture.Holder
	buffers  *buffer.Manager
	producer *sender.CounterPacketSender
	registry *command.Registry

	conn       transport.Connection
	sendThread *sender.SendThread
	receiver   *command.Receiver
	sampler    *capture.Sampler
}

// New creates a Service in the Uninitialised state.
func New(config Config) *Service {
	if config.PID == 0 {
		config.PID = uint32(os.Getpid())
	}
	if config.Factory == nil {
		config.Factory = SocketFactory{Address: transport.DefaultSocketAddress}
	}
	if config.Directory == nil {
		config.Directory = directory.New()
	}
	if config.IDs == nil {
		config.IDs = capture.NewIDMap()
	}
	if config.BufferCount <= 0 {
		config.BufferCount = DefaultBufferCount
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBufferSize
	}
	if config.MinCapturePeriod == 0 {
		config.MinCapturePeriod = DefaultMinCapturePeriod
	}

	s := &Service{
		config:  config,
		state:   StateUninitialised,
		changed: make(chan struct{}),
		holder:  &capture.Holder{},
	}
	s.buffers = buffer.NewManager(buffer.Config{
		Count:  config.BufferCount,
		Size:   config.BufferSize,
		Policy: config.BufferPolicy,
		Logger: config.Logger,
	})
	s.producer = sender.NewCounterPacketSender(s.buffers, config.Endianness)
	s.registry = s.newRegistry()
	s.sampler = capture.NewSampler(capture.SamplerConfig{
		Holder:   s.holder,
		Sender:   s.producer,
		Reader:   config.Counters,
		Backends: config.Backends,
		IDs:      config.IDs,
		Logger:   config.Logger,
	})
	return s
}

// Directory returns the counter directory advertised by the service.
func (s *Service) Directory() *directory.Directory {
	return s.config.Directory
}

// IDs returns the backend counter id map.
func (s *Service) IDs() *capture.IDMap {
	return s.config.IDs
}

// Capture returns the current capture configuration.
func (s *Service) Capture() capture.Config {
	return s.holder.Get()
}

// State returns the connection state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsActive reports whether the server has acknowledged the connection.
func (s *Service) IsActive() bool {
	return s.State() == StateActive
}

// IsSampling reports whether the sampler is running.
func (s *Service) IsSampling() bool {
	return s.sampler.IsRunning()
}

// WaitForState blocks until the service reaches want or ctx ends.
func (s *Service) WaitForState(ctx context.Context, want State) error {
	for {
		s.mu.Lock()
		cur, changed := s.state, s.changed
		s.mu.Unlock()
		if cur == want {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// Start opens the connection, starts the send thread and receive loop and
// sends the stream metadata. The service is WaitingForAck on return.
func (s *Service) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	switch s.State() {
	case StateUninitialised:
		s.setState(StateNotConnected)
	case StateNotConnected:
	default:
		return ErrAlreadyStarted
	}

	conn, err := s.config.Factory.NewConnection(ctx, s.config.Endianness)
	if err != nil {
		s.debugLog("connect failed", "error", err)
		return err
	}

	s.buffers.Reset()
	s.conn = conn
	s.sendThread = sender.NewSendThread(sender.SendThreadConfig{
		Buffers:      s.buffers,
		Writer:       conn,
		FlushTimeout: s.config.FlushTimeout,
		OnError:      func(err error) { s.linkLost(conn, err) },
		Logger:       s.config.Logger,
	})
	s.receiver = command.NewReceiver(command.ReceiverConfig{
		Reader:      conn,
		Registry:    s.registry,
		ReadTimeout: s.config.ReadTimeout,
		OnStop: func(err error) {
			if err != nil {
				s.linkLost(conn, err)
			}
		},
		Logger: s.config.Logger,
	})

	s.sendThread.Start()
	s.receiver.Start()
	s.setState(StateWaitingForAck)

	if err := s.producer.SendStreamMetadata(s.metadata()); err != nil {
		s.teardown()
		s.setState(StateNotConnected)
		return err
	}
	return nil
}

// Stop stops the sampler, the receive loop and the send thread and closes
// the connection. Stop is idempotent.
func (s *Service) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.teardown()
	if s.State() != StateUninitialised {
		s.setState(StateNotConnected)
	}
}

// Reset stops the service and clears the directory, the id map and the
// capture configuration.
func (s *Service) Reset() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.teardown()
	s.config.Directory.Clear()
	s.config.IDs.Reset()
	s.holder.Clear()
	s.setState(StateUninitialised)
}

// linkLost tears conn down after a background failure, unless a later
// Start has replaced it.
func (s *Service) linkLost(conn transport.Connection, err error) {
	if s.config.Logger != nil {
		s.config.Logger.Warn("connection lost", "error", err)
	}
	go func() {
		s.lifecycle.Lock()
		defer s.lifecycle.Unlock()
		if s.conn != conn {
			return
		}
		s.teardown()
		s.setState(StateNotConnected)
	}()
}

func (s *Service) teardown() {
	// Wake producers blocked in Reserve so the sampler and handlers can
	// return. Reset below reopens the pool.
	s.buffers.Close()
	if s.receiver != nil {
		s.receiver.Stop()
	}
	s.sampler.Stop()
	s.holder.Clear()
	if s.sendThread != nil {
		s.sendThread.Stop()
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.buffers.Reset()
}

func (s *Service) metadata() protocol.StreamMetadata {
	return protocol.StreamMetadata{
		Version:         version.MustParse(version.Current),
		PID:             s.config.PID,
		Info:            s.config.Info,
		HardwareVersion: s.config.HardwareVersion,
		SoftwareVersion: s.config.SoftwareVersion,
		ProcessName:     s.config.ProcessName,
		PacketVersions:  protocol.DefaultPacketVersions(),
	}
}

func (s *Service) setState(to State) {
	s.mu.Lock()
	from := s.state
	if from == to {
		s.mu.Unlock()
		return
	}
	s.state = to
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()

	s.debugLog("state change", "from", from.String(), "to", to.String())
	if n, ok := s.config.Backends.(capture.ProfilingNotifier); ok && (from == StateActive || to == StateActive) {
		n.ProfilingActive(to == StateActive)
	}
	if s.config.OnStateChange != nil {
		s.config.OnStateChange(from, to)
	}
}

// compareAndSetState moves from one state to another if the service is in from.
func (s *Service) compareAndSetState(from, to State) bool {
	s.mu.Lock()
	ok := s.state == from
	s.mu.Unlock()
	if ok {
		s.setState(to)
	}
	return ok
}

// Endianness returns the byte order of produced packets.
func (s *Service) Endianness() wire.Endianness {
	return s.producer.Endianness()
}

func (s *Service) newRegistry() *command.Registry {
	r := command.NewRegistry()
	v := command.DefaultVersion
	r.MustRegister(packet.FamilyControl, packet.IDConnectionAck, v, command.HandlerFunc(s.handleConnectionAck))
	r.MustRegister(packet.FamilyControl, packet.IDRequestCounterDirectory, v, command.HandlerFunc(s.handleRequestCounterDirectory))
	r.MustRegister(packet.FamilyControl, packet.IDPeriodicCounterSelection, v, command.HandlerFunc(s.handlePeriodicCounterSelection))
	return r
}

func (s *Service) debugLog(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, args...)
	}
}
