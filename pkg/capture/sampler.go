package capture

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pulse-protocol/pulse-go/pkg/command"
	"github.com/pulse-protocol/pulse-go/pkg/protocol"
)

// IdlePoll is how often an idle sampler re-reads its configuration.
const IdlePoll = 50 * time.Millisecond

// CaptureSender queues capture packets.
type CaptureSender interface {
	SendPeriodicCounterCapture(c protocol.PeriodicCounterCapture) error
}

// SamplerConfig configures a Sampler.
type SamplerConfig struct {
	Holder *Holder
	Sender CaptureSender

	// Reader supplies runtime-owned counter values (optional).
	Reader CounterValueReader

	// Backends and IDs supply backend counter values (optional).
	Backends BackendRegistry
	IDs      *IDMap

	// Now returns the capture timestamp. Defaults to monotonic nanoseconds
	// since the sampler was created.
	Now func() uint64

	// IdlePoll overrides IdlePoll.
	IdlePoll time.Duration

	Logger *slog.Logger
}

// Sampler periodically reads the selected counters and sends capture packets.
type Sampler struct {
	config SamplerConfig

	state atomic.Int32

	mu     sync.Mutex
	stopCh chan struct{}
	done   chan struct{}

	samples atomic.Uint64
	skipped atomic.Uint64
}

// NewSampler creates a stopped sampler.
func NewSampler(config SamplerConfig) *Sampler {
	if config.Holder == nil {
		config.Holder = &Holder{}
	}
	if config.IdlePoll <= 0 {
		config.IdlePoll = IdlePoll
	}
	if config.Now == nil {
		start := time.Now()
		config.Now = func() uint64 { return uint64(time.Since(start).Nanoseconds()) }
	}
	s := &Sampler{config: config}
	s.state.Store(int32(command.StateStopped))
	return s
}

// State returns the lifecycle state.
func (s *Sampler) State() command.State {
	return command.State(s.state.Load())
}

// IsRunning reports whether the worker is active.
func (s *Sampler) IsRunning() bool {
	st := s.State()
	return st == command.StateStarting || st == command.StateRunning
}

// Samples returns the number of capture packets sent.
func (s *Sampler) Samples() uint64 {
	return s.samples.Load()
}

// Skipped returns the number of counter reads that failed.
func (s *Sampler) Skipped() uint64 {
	return s.skipped.Load()
}

// Start spawns the worker. Starting a running sampler is a no-op.
func (s *Sampler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != command.StateStopped {
		return
	}
	s.state.Store(int32(command.StateStarting))
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.stopCh, s.done)
}

// Stop signals the worker and waits for it. Stop is idempotent and does
// nothing on a sampler that was never started.
func (s *Sampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done == nil {
		return
	}
	if s.state.CompareAndSwap(int32(command.StateRunning), int32(command.StateStopRequested)) ||
		s.state.CompareAndSwap(int32(command.StateStarting), int32(command.StateStopRequested)) {
		close(s.stopCh)
	}
	<-s.done
	s.done = nil
	s.state.Store(int32(command.StateStopped))
}

func (s *Sampler) run(stopCh, done chan struct{}) {
	defer close(done)
	s.state.CompareAndSwap(int32(command.StateStarting), int32(command.StateRunning))
	s.debugLog("sampler started")

	for {
		wait := s.config.IdlePoll
		if cfg := s.config.Holder.Get(); cfg.Period != 0 {
			s.sample(cfg)
			wait = time.Duration(cfg.Period) * time.Microsecond
		}

		select {
		case <-stopCh:
			s.debugLog("sampler stopped", "samples", s.samples.Load())
			return
		case <-time.After(wait):
		}
	}
}

// Sample takes one sample of cfg immediately.
func (s *Sampler) Sample(cfg Config) {
	s.sample(cfg)
}

func (s *Sampler) sample(cfg Config) {
	if s.config.Reader != nil && len(cfg.CounterIDs) > 0 {
		c := protocol.PeriodicCounterCapture{
			Timestamp: s.config.Now(),
			Values:    make([]protocol.CounterValue, 0, len(cfg.CounterIDs)),
		}
		for _, uid := range cfg.CounterIDs {
			if s.config.IDs != nil {
				if _, owned := s.config.IDs.BackendID(uid); owned {
					continue
				}
			}
			v, err := s.config.Reader.ReadCounterValue(uid)
			if err != nil {
				s.skipped.Add(1)
				s.debugLog("sampler: skip counter", "uid", uid, "error", err)
				continue
			}
			c.Values = append(c.Values, protocol.CounterValue{UID: uid, Value: v})
		}
		if len(c.Values) > 0 {
			s.send(c)
		}
	}

	if s.config.Backends == nil {
		return
	}
	for _, backend := range cfg.ActiveBackends {
		for _, ts := range s.config.Backends.ReportCounterValues(backend) {
			c := protocol.PeriodicCounterCapture{
				Timestamp: ts.Timestamp,
				Values:    make([]protocol.CounterValue, 0, len(ts.Values)),
			}
			for _, v := range ts.Values {
				uid, ok := s.globalID(v.LocalID, backend)
				if !ok {
					s.skipped.Add(1)
					s.debugLog("sampler: unmapped backend counter", "backend", backend, "local", v.LocalID)
					continue
				}
				c.Values = append(c.Values, protocol.CounterValue{UID: uid, Value: v.Value})
			}
			if len(c.Values) > 0 {
				s.send(c)
			}
		}
	}
}

func (s *Sampler) globalID(local uint16, backend string) (uint16, bool) {
	if s.config.IDs == nil {
		return 0, false
	}
	return s.config.IDs.GlobalID(local, backend)
}

func (s *Sampler) send(c protocol.PeriodicCounterCapture) {
	if err := s.config.Sender.SendPeriodicCounterCapture(c); err != nil {
		if s.config.Logger != nil {
			s.config.Logger.Warn("sampler: send capture failed", "error", err)
		}
		return
	}
	s.samples.Add(1)
}

func (s *Sampler) debugLog(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, args...)
	}
}
