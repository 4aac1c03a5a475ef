package connection

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrNoSession is returned by NewKeeper when the session functions are missing.
var ErrNoSession = errors.New("connection: start and wait functions are required")

// StartFunc opens one session. It returns once the session is established
// or has failed.
type StartFunc func(ctx context.Context) error

// WaitFunc blocks for the lifetime of a session started by StartFunc. It
// returns nil when the session ends and an error when ctx is done.
type WaitFunc func(ctx context.Context) error

// KeeperConfig configures a Keeper.
type KeeperConfig struct {
	Start StartFunc
	Wait  WaitFunc

	// Stop tears a session down after Wait returns. Optional.
	Stop func()

	Backoff BackoffConfig

	// MaxAttempts bounds consecutive failed starts. Zero means unlimited.
	MaxAttempts int

	// OnRetry is called before each sleep. Optional.
	OnRetry func(attempt int, delay time.Duration, err error)

	Logger *slog.Logger
}

// Keeper restarts a session whenever it ends.
type Keeper struct {
	config  KeeperConfig
	backoff *Backoff
}

// NewKeeper creates a Keeper.
func NewKeeper(config KeeperConfig) (*Keeper, error) {
	if config.Start == nil || config.Wait == nil {
		return nil, ErrNoSession
	}
	return &Keeper{
		config:  config,
		backoff: NewBackoffWithConfig(config.Backoff),
	}, nil
}

// Backoff exposes the retry schedule.
func (k *Keeper) Backoff() *Backoff {
	return k.backoff
}

// Run starts sessions until ctx is done or MaxAttempts consecutive starts
// fail. It returns ctx.Err() or the last start error.
func (k *Keeper) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := k.config.Start(ctx)
		if err == nil {
			k.backoff.Reset()
			k.debugLog("session started")

			werr := k.config.Wait(ctx)
			if k.config.Stop != nil {
				k.config.Stop()
			}
			if werr != nil {
				return werr
			}
			k.debugLog("session ended")
			err = errors.New("session ended")
		} else if k.config.MaxAttempts > 0 && k.backoff.Attempts() >= k.config.MaxAttempts {
			return err
		}

		delay := k.backoff.Next()
		if k.config.OnRetry != nil {
			k.config.OnRetry(k.backoff.Attempts(), delay, err)
		}
		k.debugLog("retrying", "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (k *Keeper) debugLog(msg string, args ...any) {
	if k.config.Logger != nil {
		k.config.Logger.Debug("keeper: "+msg, args...)
	}
}
