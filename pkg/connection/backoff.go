package connection

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Retry schedule defaults.
const (
	InitialBackoff    = 500 * time.Millisecond
	MaxBackoff        = 10 * time.Second
	BackoffMultiplier = 2.0

	// JitterFactor is the largest extra delay as a fraction of the base delay.
	JitterFactor = 0.25
)

// BackoffConfig describes an exponential retry schedule.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// DefaultBackoffConfig returns the package defaults.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    InitialBackoff,
		Max:        MaxBackoff,
		Multiplier: BackoffMultiplier,
		Jitter:     JitterFactor,
	}
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	if c.Initial <= 0 {
		c.Initial = InitialBackoff
	}
	if c.Max <= 0 {
		c.Max = MaxBackoff
	}
	c.Max = max(c.Max, c.Initial)
	if c.Multiplier <= 1 {
		c.Multiplier = BackoffMultiplier
	}
	c.Jitter = max(c.Jitter, 0)
	return c
}

// Backoff hands out the delays of a BackoffConfig schedule. The n-th delay
// is Initial*Multiplier^n, capped at Max, plus up to Jitter of itself.
// Safe for concurrent use.
type Backoff struct {
	cfg BackoffConfig

	mu       sync.Mutex
	attempts int
}

// NewBackoff creates a Backoff with the default schedule.
func NewBackoff() *Backoff {
	return NewBackoffWithConfig(DefaultBackoffConfig())
}

// NewBackoffWithConfig creates a Backoff. Zero fields take the defaults and
// a negative Jitter disables jitter.
func NewBackoffWithConfig(cfg BackoffConfig) *Backoff {
	return &Backoff{cfg: cfg.withDefaults()}
}

// base returns the un-jittered delay for attempt n.
func (b *Backoff) base(n int) time.Duration {
	d := float64(b.cfg.Initial) * math.Pow(b.cfg.Multiplier, float64(n))
	if d >= float64(b.cfg.Max) {
		return b.cfg.Max
	}
	return time.Duration(d)
}

// Next returns the next delay and advances the schedule.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	d := b.base(b.attempts)
	b.attempts++
	b.mu.Unlock()

	if b.cfg.Jitter == 0 {
		return d
	}
	return d + time.Duration(float64(d)*b.cfg.Jitter*rand.Float64())
}

// Reset restarts the schedule. Call it after a successful connection.
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.attempts = 0
	b.mu.Unlock()
}

// Attempts returns the number of delays handed out since the last Reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Current returns the base delay the next call to Next starts from.
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.base(b.attempts)
}
