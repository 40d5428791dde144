package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gallerist/token-ingest/internal/adapter"
	"github.com/gallerist/token-ingest/internal/config"
	"github.com/gallerist/token-ingest/internal/domain"
	"github.com/gallerist/token-ingest/internal/logger"
)

// Operation is a remote call executed under the limiter's pacing
type Operation func(ctx context.Context) (interface{}, error)

// Result describes the outcome of one ExecuteCall
type Result struct {
	Success    bool
	Value      interface{}
	Err        error
	Attempts   int
	FinalDelay time.Duration
}

// Limiter defines the interface for the adaptive rate limiter
//
//go:generate mockgen -source=limiter.go -destination=../mocks/ratelimit_limiter.go -package=mocks -mock_names=Limiter=MockLimiter
type Limiter interface {
	// ExecuteCall runs one operation with adaptive pre-call delay and bounded retries
	ExecuteCall(ctx context.Context, op Operation, label string) Result

	// ExecuteBatch runs operations sequentially in fixed-size batches with
	// latency-scaled pauses between batches
	ExecuteBatch(ctx context.Context, ops []Operation, label string) []Result

	// CurrentDelay exposes the adaptive delay for observability
	CurrentDelay() time.Duration
}

// AdaptiveLimiter paces calls against one upstream provider. Each ingestion
// session owns its own instance; instances are coupled only through the
// injected shared HitCounter.
type AdaptiveLimiter struct {
	cfg   config.RateLimiterConfig
	clock adapter.Clock
	hits  *HitCounter

	mu                   sync.Mutex
	currentDelay         time.Duration
	consecutiveSuccesses int
	consecutiveFailures  int
	responseTimes        []time.Duration
}

// NewAdaptiveLimiter creates a limiter. The shared hit counter must outlive
// the limiter; pass the same counter to every limiter in the process.
func NewAdaptiveLimiter(cfg config.RateLimiterConfig, clock adapter.Clock, hits *HitCounter) *AdaptiveLimiter {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 250 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.BackoffMultiplier <= 1 {
		cfg.BackoffMultiplier = 2.0
	}
	if cfg.DecreaseFactor <= 0 || cfg.DecreaseFactor >= 1 {
		cfg.DecreaseFactor = 0.75
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 10
	}
	if cfg.ResponseWindowSize <= 0 {
		cfg.ResponseWindowSize = 20
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.GlobalHitThreshold <= 0 {
		cfg.GlobalHitThreshold = 10
	}
	if cfg.GlobalPenaltyMultiplier <= 1 {
		cfg.GlobalPenaltyMultiplier = 1.5
	}

	return &AdaptiveLimiter{
		cfg:          cfg,
		clock:        clock,
		hits:         hits,
		currentDelay: cfg.BaseDelay,
	}
}

// CurrentDelay exposes the adaptive delay for observability
func (l *AdaptiveLimiter) CurrentDelay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentDelay
}

// ExecuteCall runs op with the adaptive delay applied before every attempt.
// Rate-limit failures increment the shared counter and back off with an
// attempt-scaled delay; other failures retry on the flat current delay.
// Exhausting retries returns a failure result rather than panicking or
// wrapping; the caller decides whether that is fatal.
func (l *AdaptiveLimiter) ExecuteCall(ctx context.Context, op Operation, label string) Result {
	var lastErr error

	for attempt := 1; attempt <= l.cfg.MaxRetries; attempt++ {
		l.applyGlobalPressure(label)

		if err := l.sleep(ctx, l.CurrentDelay()); err != nil {
			return Result{Err: err, Attempts: attempt, FinalDelay: l.CurrentDelay()}
		}

		start := l.clock.Now()
		value, err := op(ctx)
		if err == nil {
			l.recordSuccess(l.clock.Since(start))
			return Result{Success: true, Value: value, Attempts: attempt, FinalDelay: l.CurrentDelay()}
		}

		lastErr = err
		if domain.IsRateLimited(err) {
			l.hits.Increment()
			l.increaseDelay()
			logger.Warn("rate limited by provider",
				zap.String("label", label),
				zap.Int("attempt", attempt),
				zap.Duration("current_delay", l.CurrentDelay()),
				zap.Int("global_hits", l.hits.CountInWindow()))

			if attempt < l.cfg.MaxRetries {
				if err := l.sleep(ctx, l.backoffDelay(attempt)); err != nil {
					return Result{Err: err, Attempts: attempt, FinalDelay: l.CurrentDelay()}
				}
			}
			continue
		}

		// Non-throttling failures retry on the flat current delay, which the
		// next attempt's pre-call sleep already applies
		l.recordFailure()
		logger.Warn("provider call failed",
			zap.String("label", label),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	return Result{Err: lastErr, Attempts: l.cfg.MaxRetries, FinalDelay: l.CurrentDelay()}
}

// ExecuteBatch partitions ops into fixed-size batches, runs each operation
// sequentially through ExecuteCall, and pauses between batches scaled by the
// recent average response time. The scaling is linear with modest multipliers
// so a slow upstream lengthens pauses without runaway slowdown.
func (l *AdaptiveLimiter) ExecuteBatch(ctx context.Context, ops []Operation, label string) []Result {
	results := make([]Result, 0, len(ops))

	for i := 0; i < len(ops); i += l.cfg.BatchSize {
		end := min(i+l.cfg.BatchSize, len(ops))

		for _, op := range ops[i:end] {
			results = append(results, l.ExecuteCall(ctx, op, label))
			if ctx.Err() != nil {
				return results
			}
		}

		if end < len(ops) {
			if err := l.sleep(ctx, l.interBatchDelay()); err != nil {
				return results
			}
		}
	}

	return results
}

// Call runs fn through the limiter and returns a typed value
func Call[T any](ctx context.Context, l Limiter, label string, fn func(ctx context.Context) (T, error)) (T, Result) {
	res := l.ExecuteCall(ctx, func(ctx context.Context) (interface{}, error) {
		return fn(ctx)
	}, label)

	var zero T
	if !res.Success {
		return zero, res
	}
	v, ok := res.Value.(T)
	if !ok {
		return zero, res
	}
	return v, res
}

// applyGlobalPressure adds an extra multiplicative penalty when many limiter
// instances are being throttled simultaneously
func (l *AdaptiveLimiter) applyGlobalPressure(label string) {
	if l.hits.CountInWindow() <= l.cfg.GlobalHitThreshold {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	before := l.currentDelay
	l.currentDelay = l.clampDelay(time.Duration(float64(l.currentDelay) * l.cfg.GlobalPenaltyMultiplier))
	if l.currentDelay != before {
		logger.Debug("global throttling pressure detected, increasing delay",
			zap.String("label", label),
			zap.Duration("delay", l.currentDelay))
	}
}

func (l *AdaptiveLimiter) recordSuccess(latency time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.responseTimes = append(l.responseTimes, latency)
	if len(l.responseTimes) > l.cfg.ResponseWindowSize {
		l.responseTimes = l.responseTimes[1:]
	}

	l.consecutiveFailures = 0
	l.consecutiveSuccesses++

	// Reset the success counter after each decrease so a single long streak
	// cannot decay the delay without bound
	if l.consecutiveSuccesses >= l.cfg.SuccessThreshold {
		l.currentDelay = l.clampDelay(time.Duration(float64(l.currentDelay) * l.cfg.DecreaseFactor))
		l.consecutiveSuccesses = 0
	}
}

func (l *AdaptiveLimiter) recordFailure() {
	l.mu.Lock()
	l.consecutiveFailures++
	l.consecutiveSuccesses = 0
	l.mu.Unlock()
	l.increaseDelay()
}

func (l *AdaptiveLimiter) increaseDelay() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.currentDelay = l.clampDelay(time.Duration(float64(l.currentDelay) * l.cfg.BackoffMultiplier))
}

// backoffDelay computes the attempt-scaled retry delay for rate-limit failures
func (l *AdaptiveLimiter) backoffDelay(attempt int) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	scaled := float64(l.currentDelay) * math.Pow(l.cfg.BackoffMultiplier, float64(attempt))
	return l.clampDelay(time.Duration(scaled))
}

// interBatchDelay sizes the pause between batches by recent average latency
func (l *AdaptiveLimiter) interBatchDelay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.responseTimes) == 0 {
		return l.cfg.BaseDelay
	}

	var total time.Duration
	for _, rt := range l.responseTimes {
		total += rt
	}
	avg := total / time.Duration(len(l.responseTimes))

	return l.clampDelay(avg * 2)
}

func (l *AdaptiveLimiter) clampDelay(d time.Duration) time.Duration {
	if d < l.cfg.BaseDelay {
		return l.cfg.BaseDelay
	}
	if d > l.cfg.MaxDelay {
		return l.cfg.MaxDelay
	}
	return d
}

func (l *AdaptiveLimiter) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.clock.After(d):
		return nil
	}
}
