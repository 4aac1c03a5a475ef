package capture

import (
	"slices"
	"sync"
)

// Config is the current capture configuration.
type Config struct {
	// Period is the sampling period in microseconds. Zero means idle.
	Period uint32

	// CounterIDs are the selected global UIDs.
	CounterIDs []uint16

	// ActiveBackends are the backends with selected counters.
	ActiveBackends []string
}

// Holder stores the capture configuration shared by the selection handler
// and the sampler. Get returns a copy.
type Holder struct {
	mu     sync.RWMutex
	config Config
}

// Set replaces the configuration.
func (h *Holder) Set(period uint32, ids []uint16, activeBackends []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.config = Config{
		Period:         period,
		CounterIDs:     slices.Clone(ids),
		ActiveBackends: slices.Clone(activeBackends),
	}
}

// Get returns a copy of the configuration.
func (h *Holder) Get() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Config{
		Period:         h.config.Period,
		CounterIDs:     slices.Clone(h.config.CounterIDs),
		ActiveBackends: slices.Clone(h.config.ActiveBackends),
	}
}

// Clear resets to the idle configuration.
func (h *Holder) Clear() {
	h.Set(0, nil, nil)
}
