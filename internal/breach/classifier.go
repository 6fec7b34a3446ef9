package breach

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aman-churiwal/api-sentinel/internal/config"
	"github.com/aman-churiwal/api-sentinel/internal/models"
	"github.com/aman-churiwal/api-sentinel/internal/ratelimit"
	"github.com/aman-churiwal/api-sentinel/internal/storage"
	"go.uber.org/zap"
)

const breachKeyPrefix = "breach:"

// shortUserAgentLen: clients sending no or a trivially short user-agent are
// overwhelmingly scripted, so their breaches are classified HIGH.
const shortUserAgentLen = 10

// Classifier turns denied requests into severity-tagged breach records and
// keeps the bounded breach history consumed by notifications and analytics.
type Classifier struct {
	store     storage.CounterStore
	retention time.Duration
	logger    *zap.Logger
}

func NewClassifier(store storage.CounterStore, cfg *config.Config, logger *zap.Logger) *Classifier {
	return &Classifier{
		store:     store,
		retention: time.Duration(cfg.Analytics.BreachRetentionDays) * 24 * time.Hour,
		logger:    logger,
	}
}

// Classify returns nil for allowed requests. For denied ones it builds,
// persists and returns the breach record.
func (c *Classifier) Classify(ctx context.Context, req models.RequestContext, tier models.RateLimitTier, result ratelimit.Result) (*models.RateLimitBreach, error) {
	if result.Allowed {
		return nil, nil
	}

	severity := models.SeverityLow
	switch {
	case tier.Name == models.TierBlocked:
		severity = models.SeverityCritical
	case len(req.UserAgent) < shortUserAgentLen:
		severity = models.SeverityHigh
	case tier.Priority <= 2:
		severity = models.SeverityMedium
	}

	breachType := models.BreachRateLimit
	if result.Reason == ratelimit.DenyOverBurst {
		breachType = models.BreachBurst
	}

	b := models.NewBreach(req.IP, req.Endpoint, req.Method, breachType, severity)
	b.UserID = req.UserID
	b.Details["tier"] = tier.Name
	b.Details["limit"] = strconv.Itoa(result.Limit)
	b.Details["reason"] = string(result.Reason)
	if req.UserAgent != "" {
		b.Details["user_agent"] = req.UserAgent
	}

	if err := c.Save(ctx, b); err != nil {
		return nil, err
	}

	return b, nil
}

// Save caches a breach for history queries, independent of whether any
// notification goes out for it.
func (c *Classifier) Save(ctx context.Context, b *models.RateLimitBreach) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return err
	}

	// Zero-padded millis keep lexical key order chronological.
	key := fmt.Sprintf("%s%013d:%s", breachKeyPrefix, b.Timestamp.UnixMilli(), b.ID)
	return c.store.Set(ctx, key, string(raw), c.retention)
}

// BreachesSince returns retained breaches with timestamps at or after since.
// Keys embed zero-padded millis, so the cutoff is a lexical comparison.
func (c *Classifier) BreachesSince(ctx context.Context, since time.Time) ([]models.RateLimitBreach, error) {
	keys, err := c.store.Keys(ctx, breachKeyPrefix+"*")
	if err != nil {
		return nil, err
	}

	cutoff := fmt.Sprintf("%s%013d", breachKeyPrefix, since.UnixMilli())

	var breaches []models.RateLimitBreach
	for _, key := range keys {
		if key < cutoff {
			continue
		}

		raw, err := c.store.Get(ctx, key)
		if err == storage.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}

		var b models.RateLimitBreach
		if err := json.Unmarshal([]byte(raw), &b); err != nil {
			continue
		}
		breaches = append(breaches, b)
	}

	return breaches, nil
}

// GetBreachHistory returns retained breaches newest-first.
func (c *Classifier) GetBreachHistory(ctx context.Context, limit, offset int) ([]models.RateLimitBreach, error) {
	keys, err := c.store.Keys(ctx, breachKeyPrefix+"*")
	if err != nil {
		return nil, err
	}

	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	if offset >= len(keys) {
		return nil, nil
	}
	keys = keys[offset:]
	if limit > 0 && limit < len(keys) {
		keys = keys[:limit]
	}

	breaches := make([]models.RateLimitBreach, 0, len(keys))
	for _, key := range keys {
		raw, err := c.store.Get(ctx, key)
		if err == storage.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}

		var b models.RateLimitBreach
		if err := json.Unmarshal([]byte(raw), &b); err != nil {
			c.logger.Warn("corrupt breach record skipped", zap.String("key", key), zap.Error(err))
			continue
		}
		breaches = append(breaches, b)
	}

	return breaches, nil
}
