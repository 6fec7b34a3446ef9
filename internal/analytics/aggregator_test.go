package analytics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aman-churiwal/api-sentinel/internal/config"
	"github.com/aman-churiwal/api-sentinel/internal/models"
	"github.com/aman-churiwal/api-sentinel/internal/storage"
)

type fakeBreaches struct {
	breaches []models.RateLimitBreach
}

func (f *fakeBreaches) BreachesSince(ctx context.Context, since time.Time) ([]models.RateLimitBreach, error) {
	var out []models.RateLimitBreach
	for _, b := range f.breaches {
		if !b.Timestamp.Before(since) {
			out = append(out, b)
		}
	}
	return out, nil
}

func newTestAggregator(t *testing.T, breaches *fakeBreaches) (*Aggregator, *time.Time) {
	t.Helper()

	now := time.Unix(1_700_000_000, 0).UTC()
	store := storage.NewMemoryStore()

	cfg := &config.Config{
		Analytics: config.AnalyticsConfig{RetentionDays: 7, BreachRetentionDays: 30},
	}

	a := NewAggregator(store, breaches, cfg, zap.NewNop())
	a.now = func() time.Time { return now }

	return a, &now
}

func metric(ip, endpoint, tier string, blocked bool, ts time.Time) models.RateLimitMetric {
	return models.RateLimitMetric{
		IP:        ip,
		Endpoint:  endpoint,
		Method:    "GET",
		Timestamp: ts,
		Blocked:   blocked,
		Tier:      tier,
	}
}

func TestGetAnalyticsAggregatesTotals(t *testing.T) {
	ctx := context.Background()
	a, now := newTestAggregator(t, &fakeBreaches{})
	base := *now

	a.RecordMetric(ctx, metric("203.0.113.1", "/api/data", "FREE", false, base.Add(-time.Minute)))
	a.RecordMetric(ctx, metric("203.0.113.1", "/api/data", "FREE", true, base.Add(-time.Minute)))
	a.RecordMetric(ctx, metric("203.0.113.2", "/api/other", "PRO", false, base.Add(-2*time.Minute)))

	// Outside the window, must be excluded.
	a.RecordMetric(ctx, metric("203.0.113.3", "/api/old", "FREE", false, base.Add(-2*time.Hour)))

	summary, err := a.GetAnalytics(ctx, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, int64(3), summary.TotalRequests)
	assert.Equal(t, int64(1), summary.BlockedRequests)
	assert.Equal(t, map[string]int64{"FREE": 2, "PRO": 1}, summary.TierDistribution)

	require.Len(t, summary.TopEndpoints, 2)
	assert.Equal(t, "/api/data", summary.TopEndpoints[0].Endpoint)
	assert.Equal(t, int64(2), summary.TopEndpoints[0].Requests)
	assert.Equal(t, int64(1), summary.TopEndpoints[0].Blocked)

	require.Len(t, summary.TopIPs, 2)
	assert.Equal(t, "203.0.113.1", summary.TopIPs[0].IP)
}

func TestGetAnalyticsTopTenOfFifteen(t *testing.T) {
	ctx := context.Background()
	a, now := newTestAggregator(t, &fakeBreaches{})
	base := now.Add(-time.Minute)

	// 15 endpoints with distinct request counts: /api/ep-15 busiest.
	for i := 1; i <= 15; i++ {
		endpoint := fmt.Sprintf("/api/ep-%02d", i)
		for j := 0; j < i; j++ {
			a.RecordMetric(ctx, metric("203.0.113.1", endpoint, "FREE", false, base))
		}
	}

	summary, err := a.GetAnalytics(ctx, time.Hour)
	require.NoError(t, err)

	require.Len(t, summary.TopEndpoints, 10)
	assert.Equal(t, "/api/ep-15", summary.TopEndpoints[0].Endpoint)
	assert.Equal(t, int64(15), summary.TopEndpoints[0].Requests)
	assert.Equal(t, "/api/ep-06", summary.TopEndpoints[9].Endpoint)

	for i := 1; i < len(summary.TopEndpoints); i++ {
		assert.GreaterOrEqual(t,
			summary.TopEndpoints[i-1].Requests,
			summary.TopEndpoints[i].Requests,
			"ranking must be descending")
	}
}

func TestGetAnalyticsTieBreakIsStable(t *testing.T) {
	ctx := context.Background()
	a, now := newTestAggregator(t, &fakeBreaches{})
	base := now.Add(-time.Minute)

	for _, endpoint := range []string{"/api/c", "/api/a", "/api/b"} {
		a.RecordMetric(ctx, metric("203.0.113.1", endpoint, "FREE", false, base))
	}

	for i := 0; i < 5; i++ {
		summary, err := a.GetAnalytics(ctx, time.Hour)
		require.NoError(t, err)
		require.Len(t, summary.TopEndpoints, 3)
		assert.Equal(t, "/api/a", summary.TopEndpoints[0].Endpoint)
		assert.Equal(t, "/api/b", summary.TopEndpoints[1].Endpoint)
		assert.Equal(t, "/api/c", summary.TopEndpoints[2].Endpoint)
	}
}

func TestGetAnalyticsBreachSummary(t *testing.T) {
	ctx := context.Background()

	now := time.Unix(1_700_000_000, 0).UTC()
	breaches := &fakeBreaches{}
	for i := 0; i < 3; i++ {
		b := models.NewBreach("203.0.113.1", "/api/data", "GET", models.BreachRateLimit, models.SeverityLow)
		b.Timestamp = now.Add(-time.Minute)
		breaches.breaches = append(breaches.breaches, *b)
	}
	ddos := models.NewBreach("203.0.113.2", "/api/data", "GET", models.BreachDDOS, models.SeverityCritical)
	ddos.Timestamp = now.Add(-time.Minute)
	breaches.breaches = append(breaches.breaches, *ddos)

	a, _ := newTestAggregator(t, breaches)

	summary, err := a.GetAnalytics(ctx, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, int64(4), summary.BreachSummary.Total)
	assert.Equal(t, int64(3), summary.BreachSummary.ByType["RATE_LIMIT"])
	assert.Equal(t, int64(1), summary.BreachSummary.ByType["DDOS"])
	assert.Equal(t, int64(3), summary.BreachSummary.BySeverity["LOW"])
	assert.Equal(t, int64(1), summary.BreachSummary.BySeverity["CRITICAL"])
}
