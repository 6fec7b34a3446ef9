package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/aman-churiwal/api-sentinel/internal/config"
	"github.com/aman-churiwal/api-sentinel/internal/models"
	"github.com/aman-churiwal/api-sentinel/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	metricKeyPrefix = "metrics:"
	topN            = 10
)

// BreachSource provides the retained breaches for roll-up.
type BreachSource interface {
	BreachesSince(ctx context.Context, since time.Time) ([]models.RateLimitBreach, error)
}

type EndpointStats struct {
	Endpoint string `json:"endpoint"`
	Requests int64  `json:"requests"`
	Blocked  int64  `json:"blocked"`
}

type IPStats struct {
	IP       string `json:"ip"`
	Requests int64  `json:"requests"`
	Blocked  int64  `json:"blocked"`
}

type BreachSummary struct {
	Total      int64            `json:"total"`
	ByType     map[string]int64 `json:"by_type"`
	BySeverity map[string]int64 `json:"by_severity"`
}

type Summary struct {
	WindowStart      time.Time        `json:"window_start"`
	WindowEnd        time.Time        `json:"window_end"`
	TotalRequests    int64            `json:"total_requests"`
	BlockedRequests  int64            `json:"blocked_requests"`
	TopEndpoints     []EndpointStats  `json:"top_endpoints"`
	TopIPs           []IPStats        `json:"top_ips"`
	TierDistribution map[string]int64 `json:"tier_distribution"`
	BreachSummary    BreachSummary    `json:"breach_summary"`
}

// Aggregator rolls the raw metric stream up at read time. There are no
// pre-aggregated buckets, so cost grows with the number of metrics in the
// window; callers bound the window accordingly.
type Aggregator struct {
	store     storage.CounterStore
	breaches  BreachSource
	retention time.Duration
	logger    *zap.Logger

	now func() time.Time
}

func NewAggregator(store storage.CounterStore, breaches BreachSource, cfg *config.Config, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		store:     store,
		breaches:  breaches,
		retention: time.Duration(cfg.Analytics.RetentionDays) * 24 * time.Hour,
		logger:    logger,
		now:       time.Now,
	}
}

// RecordMetric appends one evaluated-request record to the stream. Metrics
// are a write-only stream on the request path, so failures are logged and
// swallowed.
func (a *Aggregator) RecordMetric(ctx context.Context, metric models.RateLimitMetric) {
	raw, err := json.Marshal(metric)
	if err != nil {
		return
	}

	key := fmt.Sprintf("%s%013d:%s", metricKeyPrefix, metric.Timestamp.UnixMilli(), uuid.New().String())
	if err := a.store.Set(ctx, key, string(raw), a.retention); err != nil {
		a.logger.Warn("failed to record rate limit metric", zap.Error(err))
	}
}

// GetAnalytics aggregates the metrics and breaches of the trailing window.
func (a *Aggregator) GetAnalytics(ctx context.Context, window time.Duration) (*Summary, error) {
	end := a.now()
	start := end.Add(-window)

	metrics, err := a.metricsSince(ctx, start)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		WindowStart:      start,
		WindowEnd:        end,
		TierDistribution: make(map[string]int64),
	}

	byEndpoint := make(map[string]*EndpointStats)
	byIP := make(map[string]*IPStats)

	for _, m := range metrics {
		summary.TotalRequests++
		if m.Blocked {
			summary.BlockedRequests++
		}
		summary.TierDistribution[m.Tier]++

		ep, ok := byEndpoint[m.Endpoint]
		if !ok {
			ep = &EndpointStats{Endpoint: m.Endpoint}
			byEndpoint[m.Endpoint] = ep
		}
		ep.Requests++
		if m.Blocked {
			ep.Blocked++
		}

		ip, ok := byIP[m.IP]
		if !ok {
			ip = &IPStats{IP: m.IP}
			byIP[m.IP] = ip
		}
		ip.Requests++
		if m.Blocked {
			ip.Blocked++
		}
	}

	summary.TopEndpoints = topEndpoints(byEndpoint)
	summary.TopIPs = topIPs(byIP)

	breaches, err := a.breaches.BreachesSince(ctx, start)
	if err != nil {
		return nil, err
	}

	summary.BreachSummary = BreachSummary{
		ByType:     make(map[string]int64),
		BySeverity: make(map[string]int64),
	}
	for _, b := range breaches {
		summary.BreachSummary.Total++
		summary.BreachSummary.ByType[string(b.BreachType)]++
		summary.BreachSummary.BySeverity[string(b.Severity)]++
	}

	return summary, nil
}

func (a *Aggregator) metricsSince(ctx context.Context, since time.Time) ([]models.RateLimitMetric, error) {
	keys, err := a.store.Keys(ctx, metricKeyPrefix+"*")
	if err != nil {
		return nil, err
	}

	cutoff := fmt.Sprintf("%s%013d", metricKeyPrefix, since.UnixMilli())

	var metrics []models.RateLimitMetric
	for _, key := range keys {
		if key < cutoff {
			continue
		}

		raw, err := a.store.Get(ctx, key)
		if err == storage.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}

		var m models.RateLimitMetric
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			a.logger.Warn("corrupt metric record skipped", zap.String("key", key), zap.Error(err))
			continue
		}
		metrics = append(metrics, m)
	}

	return metrics, nil
}

// Ranking sorts by request count descending with a lexical pre-sort so that
// ties break stably regardless of map iteration order.
func topEndpoints(stats map[string]*EndpointStats) []EndpointStats {
	out := make([]EndpointStats, 0, len(stats))
	for _, s := range stats {
		out = append(out, *s)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Requests > out[j].Requests })

	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

func topIPs(stats map[string]*IPStats) []IPStats {
	out := make([]IPStats, 0, len(stats))
	for _, s := range stats {
		out = append(out, *s)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].IP < out[j].IP })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Requests > out[j].Requests })

	if len(out) > topN {
		out = out[:topN]
	}
	return out
}
