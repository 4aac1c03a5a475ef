package main

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/pulse-protocol/pulse-go/pkg/capture"
	"github.com/pulse-protocol/pulse-go/pkg/config"
	"github.com/pulse-protocol/pulse-go/pkg/counters"
	"github.com/pulse-protocol/pulse-go/pkg/directory"
)

// npuBackendID names the simulated accelerator backend.
const npuBackendID = "npu"

func localID(n uint16) *uint16 { return &n }

// defaultDirectory is used when the configuration file defines no counters.
func defaultDirectory() config.Directory {
	return config.Directory{Categories: []config.Category{
		{
			Name: "Inference",
			Counters: []config.Counter{
				{Name: "Inferences", Description: "Completed inferences", Units: "runs", Class: "delta"},
				{Name: "Queue depth", Description: "Requests waiting", Class: "absolute", Interpolation: "linear"},
			},
		},
		{
			Name:   "Accelerator",
			Device: &config.Device{Name: "NPU0", Cores: 2},
			Counters: []config.Counter{
				{Name: "Busy cycles", Description: "Cycles spent executing", Units: "cycles",
					Backend: npuBackendID, LocalID: localID(0)},
			},
		},
	}}
}

// simulator feeds synthetic values into the runtime-owned counters.
type simulator struct {
	store *counters.Store
	dir   *directory.Directory
	rng   *rand.Rand
}

func newSimulator(store *counters.Store, dir *directory.Directory) *simulator {
	return &simulator{store: store, dir: dir, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// step advances every runtime-owned counter once.
func (s *simulator) step() {
	for uid, c := range s.dir.Counters() {
		if c.BackendID != "" {
			continue
		}
		if c.Class == directory.ClassDelta {
			_, _ = s.store.Add(uid, uint32(1+s.rng.Intn(5)))
		} else {
			_ = s.store.Set(uid, uint32(s.rng.Intn(16)))
		}
	}
}

func (s *simulator) run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.step()
		}
	}
}

// npuBackend is a simulated accelerator that reports its own counters.
type npuBackend struct {
	mu       sync.Mutex
	active   bool
	selected []uint16
	reports  uint32
	now      func() uint64
}

func newNPUBackend() *npuBackend {
	return &npuBackend{
		now: func() uint64 { return uint64(time.Now().UnixNano()) },
	}
}

// ActiveBackends implements capture.BackendRegistry.
func (b *npuBackend) ActiveBackends() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active || len(b.selected) == 0 {
		return nil
	}
	return []string{npuBackendID}
}

// ReportCounterValues implements capture.BackendRegistry. Each call reports
// the busy cycles of every selected core since the previous call.
func (b *npuBackend) ReportCounterValues(backend string) []capture.Timestamp {
	if backend != npuBackendID {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.reports++
	ts := capture.Timestamp{Timestamp: b.now()}
	for _, id := range b.selected {
		busy := 1000*(uint32(id)+1) + b.reports%100
		ts.Values = append(ts.Values, capture.LocalValue{LocalID: id, Value: busy})
	}
	return []capture.Timestamp{ts}
}

// ActivateCounters implements capture.CounterActivator.
func (b *npuBackend) ActivateCounters(backend string, _ uint32, ids []uint16) error {
	if backend != npuBackendID {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.selected = append([]uint16(nil), ids...)
	sort.Slice(b.selected, func(i, j int) bool { return b.selected[i] < b.selected[j] })
	return nil
}

// ProfilingActive implements capture.ProfilingNotifier.
func (b *npuBackend) ProfilingActive(active bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = active
	if !active {
		b.selected = nil
	}
}

var (
	_ capture.BackendRegistry   = (*npuBackend)(nil)
	_ capture.CounterActivator  = (*npuBackend)(nil)
	_ capture.ProfilingNotifier = (*npuBackend)(nil)
)
