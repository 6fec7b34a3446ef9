package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/aman-churiwal/api-sentinel/internal/circuitbreaker"
	"github.com/aman-churiwal/api-sentinel/internal/config"
	"github.com/aman-churiwal/api-sentinel/internal/models"
	"github.com/aman-churiwal/api-sentinel/internal/storage"
	"go.uber.org/zap"
)

type DenyReason string

const (
	DenyOverLimit DenyReason = "over_limit"
	DenyOverBurst DenyReason = "over_burst"
)

// Result is one enforcement decision, carrying everything the caller needs
// for X-RateLimit-* headers and breach classification.
type Result struct {
	Allowed    bool          `json:"allowed"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	ResetTime  time.Time     `json:"reset_time"`
	BurstUsed  int           `json:"burst_used"`
	Tier       string        `json:"tier"`
	Reason     DenyReason    `json:"reason,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	FailedOpen bool          `json:"-"`
}

// Enforcer applies an effective tier with fixed-window counters in the shared
// store. A burst straddling a window boundary can pass at up to 2x the nominal
// rate; that is the accepted trade-off for O(1) counters.
type Enforcer struct {
	store       storage.CounterStore
	breaker     *circuitbreaker.CircuitBreaker
	decayFactor float64
	timeout     time.Duration
	logger      *zap.Logger

	now func() time.Time
}

func NewEnforcer(store storage.CounterStore, cfg *config.Config, logger *zap.Logger) *Enforcer {
	return &Enforcer{
		store: store,
		breaker: circuitbreaker.New(circuitbreaker.Config{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		}),
		decayFactor: cfg.RateLimit.BurstDecayFactor,
		timeout:     cfg.RateLimit.StoreTimeout(),
		logger:      logger,
		now:         time.Now,
	}
}

// Check counts the request against the tier. Any backing-store failure fails
// open: availability is prioritized over strict enforcement, and sustained
// abuse is still caught by the IP-level blocking path.
func (e *Enforcer) Check(ctx context.Context, req models.RequestContext, tier models.RateLimitTier) Result {
	now := e.now()
	window := tier.Window()

	if tier.Unlimited() {
		return Result{
			Allowed:   true,
			Limit:     models.UnlimitedRequests,
			Remaining: models.UnlimitedRequests,
			ResetTime: now.Add(window),
			Tier:      tier.Name,
		}
	}

	nowMs := now.UnixMilli()
	windowStart := nowMs - nowMs%tier.WindowMs
	resetTime := time.UnixMilli(windowStart + tier.WindowMs)

	key := fmt.Sprintf("ratelimit:%s:%s:%s:%d", req.Identifier(), req.Endpoint, req.Method, windowStart)

	count, err := e.incr(ctx, key, window)
	if err != nil {
		e.logger.Error("counter store unavailable, failing open",
			zap.String("key", key),
			zap.Error(err),
		)
		return Result{
			Allowed:    true,
			Limit:      tier.RequestsPerWindow,
			Remaining:  tier.RequestsPerWindow,
			ResetTime:  resetTime,
			Tier:       tier.Name,
			FailedOpen: true,
		}
	}

	result := Result{
		Allowed:   count <= int64(tier.RequestsPerWindow),
		Limit:     tier.RequestsPerWindow,
		Remaining: remaining(tier.RequestsPerWindow, count),
		ResetTime: resetTime,
		Tier:      tier.Name,
	}

	if tier.Features.BurstHandling && tier.BurstCapacity > 0 {
		result.BurstUsed = e.trackBurst(ctx, key, tier, window)
		// Burst exhaustion denies even when the primary window still has
		// room, so both limits are part of one decision.
		if result.Allowed && result.BurstUsed > tier.BurstCapacity {
			result.Allowed = false
			result.Reason = DenyOverBurst
		}
	}

	if !result.Allowed && result.Reason == "" {
		result.Reason = DenyOverLimit
	}
	if !result.Allowed {
		result.RetryAfter = resetTime.Sub(now)
	}

	return result
}

// trackBurst counts every request in a secondary window counter and applies a
// crude decay: once scaled usage passes capacity the counter is stepped back
// by one, which keeps it bounded near capacity/decayFactor while still
// letting sustained bursts register above capacity. Errors are swallowed;
// a lost burst count degrades to primary-window enforcement only.
func (e *Enforcer) trackBurst(ctx context.Context, key string, tier models.RateLimitTier, window time.Duration) int {
	burstKey := key + ":burst"

	used, err := e.incr(ctx, burstKey, window)
	if err != nil {
		e.logger.Warn("burst counter unavailable", zap.String("key", burstKey), zap.Error(err))
		return 0
	}

	if float64(used)*e.decayFactor > float64(tier.BurstCapacity) {
		opCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		// Bounds the stored counter; the decision still sees the real count.
		if _, err := e.store.Decr(opCtx, burstKey); err != nil {
			e.logger.Warn("burst decay failed", zap.String("key", burstKey), zap.Error(err))
		}
	}

	return int(used)
}

// incr wraps the atomic increment with a short timeout and a circuit breaker,
// so a dead store costs at most one round trip per breaker window instead of
// stalling every request.
func (e *Enforcer) incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var count int64

	err := e.breaker.Call(func() error {
		opCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		var err error
		count, err = e.store.IncrWithExpire(opCtx, key, ttl)
		return err
	})

	return count, err
}

func remaining(limit int, count int64) int {
	r := limit - int(count)
	if r < 0 {
		return 0
	}
	return r
}
