package abuse

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aman-churiwal/api-sentinel/internal/config"
	"github.com/aman-churiwal/api-sentinel/internal/ipblock"
	"github.com/aman-churiwal/api-sentinel/internal/models"
	"github.com/aman-churiwal/api-sentinel/internal/storage"
	"go.uber.org/zap"
)

// Tracker counts abuse signals per IP in sliding windows and escalates to an
// automatic block when a pattern's threshold is crossed. Tracking is
// best-effort: a store outage may under-count during the outage, it never
// fails the request that reported the signal.
type Tracker struct {
	store    storage.CounterStore
	registry *ipblock.Registry
	patterns map[models.AbusePatternType]models.AbusePattern
	logger   *zap.Logger

	ddosThreshold int
	ddosWindow    time.Duration

	now func() time.Time
}

func NewTracker(store storage.CounterStore, registry *ipblock.Registry, cfg *config.Config, logger *zap.Logger) *Tracker {
	patterns := make(map[models.AbusePatternType]models.AbusePattern, len(cfg.Abuse.Patterns))
	for _, p := range cfg.Abuse.Patterns {
		patterns[p.Type] = p
	}

	return &Tracker{
		store:         store,
		registry:      registry,
		patterns:      patterns,
		logger:        logger,
		ddosThreshold: cfg.Abuse.DDOSThreshold,
		ddosWindow:    cfg.Abuse.DDOSWindow(),
		now:           time.Now,
	}
}

// Record notes one occurrence of an abuse pattern for ip. When the windowed
// count reaches the pattern's threshold, the IP is auto-blocked with the
// pattern's severity; the registry's idempotency keeps further occurrences in
// the same window from extending or duplicating the block.
func (t *Tracker) Record(ctx context.Context, ip string, patternType models.AbusePatternType, evidence map[string]string) error {
	pattern, ok := t.patterns[patternType]
	if !ok {
		return fmt.Errorf("unknown abuse pattern %q", patternType)
	}

	// Whitelisted IPs bypass abuse tracking entirely.
	if whitelisted, err := t.registry.IsWhitelisted(ctx, ip); err == nil && whitelisted {
		return nil
	}

	nowMs := t.now().UnixMilli()
	windowStart := nowMs - nowMs%pattern.WindowMs
	key := fmt.Sprintf("abuse:%s:%s:%d", ip, patternType, windowStart)

	count, err := t.store.IncrWithExpire(ctx, key, pattern.Window())
	if err != nil {
		t.logger.Warn("abuse counter unavailable", zap.String("ip", ip), zap.Error(err))
		return nil
	}

	if count == int64(pattern.Threshold) {
		t.escalate(ctx, ip, pattern, count, evidence)
	}

	return nil
}

func (t *Tracker) escalate(ctx context.Context, ip string, pattern models.AbusePattern, count int64, evidence map[string]string) {
	merged := map[string]string{
		"pattern":   string(pattern.Type),
		"count":     strconv.FormatInt(count, 10),
		"threshold": strconv.Itoa(pattern.Threshold),
		"window_ms": strconv.FormatInt(pattern.WindowMs, 10),
	}
	for k, v := range evidence {
		merged[k] = v
	}

	reason := fmt.Sprintf("auto: %s threshold reached (%d in window)", pattern.Type, count)
	if _, err := t.registry.Block(ctx, ip, reason, pattern.Severity, true, merged); err != nil {
		t.logger.Error("auto-block failed",
			zap.String("ip", ip),
			zap.String("pattern", string(pattern.Type)),
			zap.Error(err),
		)
		return
	}

	t.logger.Warn("abuse threshold crossed, ip auto-blocked",
		zap.String("ip", ip),
		zap.String("pattern", string(pattern.Type)),
		zap.Int64("count", count),
	)
}

// AnalyzeDDOS runs a tight per-endpoint flood check, independent from both the
// rate limiter's windows and the coarser DDOS_PATTERN abuse counter. The
// request path calls it before resolution so a flood short-circuits with a
// generic response instead of consuming a full rate-limit cycle.
func (t *Tracker) AnalyzeDDOS(ctx context.Context, ip, endpoint, method string) bool {
	nowMs := t.now().UnixMilli()
	windowStart := nowMs - nowMs%t.ddosWindow.Milliseconds()
	key := fmt.Sprintf("abuse:ddos:%s:%s:%s:%d", ip, endpoint, method, windowStart)

	count, err := t.store.IncrWithExpire(ctx, key, t.ddosWindow)
	if err != nil {
		t.logger.Warn("ddos counter unavailable", zap.String("ip", ip), zap.Error(err))
		return false
	}

	return count > int64(t.ddosThreshold)
}
