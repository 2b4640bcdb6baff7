// Package ratelimit implements sliding-window counters and lockout records
// on top of the shared state store. A lockout strictly overrides window
// counting: while a lock record is alive every check for its key reports
// limited, whatever the counter says.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/btasarimambalaj-afk/adminara-sub000/internal/store"
)

const (
	lockPrefix = "lock:"
	ratePrefix = "rate:"

	// ReasonRateLimit marks a window overflow as opposed to an explicit lock.
	ReasonRateLimit = "rate_limit"
)

// Result is the outcome of a limit or lock probe.
type Result struct {
	Limited    bool
	RetryAfter time.Duration
	Reason     string
}

// RetryAfterSeconds rounds the wait up to whole seconds for HTTP headers
// and user-facing notices.
func (r Result) RetryAfterSeconds() int {
	if r.RetryAfter <= 0 {
		return 0
	}
	return int((r.RetryAfter + time.Second - 1) / time.Second)
}

// Limiter enforces per-key request budgets and explicit lockouts.
type Limiter struct {
	store  store.StateStore
	logger *zap.Logger
	stop   chan struct{}
	done   chan struct{}
}

// New constructs a limiter over the given store.
func New(st store.StateStore, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{store: st, logger: logger}
}

// Locked reports whether key is under an active lock record without touching
// any counter. OTP verification probes this before inspecting the challenge.
func (l *Limiter) Locked(ctx context.Context, key string) (Result, error) {
	reason, found, err := l.store.Get(ctx, lockPrefix+key)
	if err != nil {
		return Result{}, err
	}
	if !found {
		return Result{}, nil
	}
	ttl, err := l.store.RemainingTTL(ctx, lockPrefix+key)
	if err != nil {
		return Result{}, err
	}
	if ttl == store.TTLMissing {
		// The record expired between the two reads.
		return Result{}, nil
	}
	return Result{Limited: true, RetryAfter: ttl, Reason: reason}, nil
}

// Check applies the sliding-window budget for key: an active lock record
// wins outright; otherwise the counter is incremented and compared against
// limit. A limit of zero always reports limited.
func (l *Limiter) Check(ctx context.Context, key string, limit int64, window time.Duration) (Result, error) {
	locked, err := l.Locked(ctx, key)
	if err != nil {
		return Result{}, err
	}
	if locked.Limited {
		return locked, nil
	}

	if limit <= 0 {
		return Result{Limited: true, RetryAfter: window, Reason: ReasonRateLimit}, nil
	}

	count, err := l.store.IncrWithExpiry(ctx, ratePrefix+key, window)
	if err != nil {
		return Result{}, err
	}
	if count <= limit {
		return Result{}, nil
	}

	ttl, err := l.store.RemainingTTL(ctx, ratePrefix+key)
	if err != nil {
		return Result{}, err
	}
	if ttl == store.TTLMissing {
		ttl = window
	}
	return Result{Limited: true, RetryAfter: ttl, Reason: ReasonRateLimit}, nil
}

// Count increments the window counter for key without applying a limit,
// returning the new count. The OTP failure counter uses this directly.
func (l *Limiter) Count(ctx context.Context, key string, window time.Duration) (int64, error) {
	return l.store.IncrWithExpiry(ctx, ratePrefix+key, window)
}

// Lock writes a lock record for key lasting duration. The record outlives
// any window counter and is only cleared by its own TTL.
func (l *Limiter) Lock(ctx context.Context, key string, duration time.Duration, reason string) error {
	if err := l.store.SetWithExpiry(ctx, lockPrefix+key, reason, duration); err != nil {
		return fmt.Errorf("lock %s: %w", key, err)
	}
	l.logger.Warn("lockout engaged",
		zap.String("key", key),
		zap.String("reason", reason),
		zap.Duration("duration", duration))
	return nil
}

// ClearCounter resets the window counter for key, leaving any lock intact.
func (l *Limiter) ClearCounter(ctx context.Context, key string) error {
	return l.store.Delete(ctx, ratePrefix+key)
}

// StartSweep launches the periodic cleanup of expired in-memory entries.
// It is a no-op when the store expires keys natively (Redis).
func (l *Limiter) StartSweep(interval time.Duration) {
	sweeper, ok := l.store.(store.Sweeper)
	if !ok || l.stop != nil {
		return
	}
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if removed := sweeper.SweepExpired(); removed > 0 {
					l.logger.Debug("swept expired entries", zap.Int("removed", removed))
				}
			case <-l.stop:
				return
			}
		}
	}()
}

// StopSweep halts the background sweep and waits for it to exit.
func (l *Limiter) StopSweep() {
	if l.stop == nil {
		return
	}
	close(l.stop)
	<-l.done
	l.stop = nil
	l.done = nil
}
