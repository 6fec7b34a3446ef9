package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aman-churiwal/api-sentinel/internal/abuse"
	"github.com/aman-churiwal/api-sentinel/internal/analytics"
	"github.com/aman-churiwal/api-sentinel/internal/breach"
	"github.com/aman-churiwal/api-sentinel/internal/config"
	"github.com/aman-churiwal/api-sentinel/internal/ipblock"
	"github.com/aman-churiwal/api-sentinel/internal/models"
	"github.com/aman-churiwal/api-sentinel/internal/notify"
	"github.com/aman-churiwal/api-sentinel/internal/ratelimit"
	"github.com/aman-churiwal/api-sentinel/internal/service"
	"github.com/aman-churiwal/api-sentinel/internal/storage"
)

func pipelineConfig() *config.Config {
	return &config.Config{
		RateLimit: config.RateLimitConfig{
			DefaultTier: "FREE",
			Tiers: []models.RateLimitTier{
				// Hour-long window so a boundary cannot land mid-test.
				{Name: "FREE", RequestsPerWindow: 100, WindowMs: 3_600_000, Priority: 1},
			},
			RoleMultipliers:   map[string]float64{},
			MethodMultipliers: map[string]float64{},
			BurstDecayFactor:  0.8,
			StoreTimeoutMs:    250,
		},
		Abuse: config.AbuseConfig{
			Patterns:      models.DefaultAbusePatterns(),
			DDOSThreshold: 1000,
			DDOSWindowMs:  3_600_000,
		},
		Blocking: config.BlockingConfig{AuditMaxEntries: 100, AuditRetentionDays: 30},
		Notifications: config.NotificationConfig{
			Global:            models.NotificationPreference{Enabled: false},
			CooldownMinutes:   15,
			DispatchTimeoutMs: 1000,
			MaxConcurrent:     4,
		},
		Analytics: config.AnalyticsConfig{RetentionDays: 7, BreachRetentionDays: 30},
	}
}

type pipelineFixture struct {
	router     *gin.Engine
	registry   *ipblock.Registry
	classifier *breach.Classifier
	metrics    *analytics.Aggregator
}

func newPipelineFixture(t *testing.T, cfg *config.Config) *pipelineFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := storage.NewMemoryStore()
	logger := zap.NewNop()

	registry := ipblock.NewRegistry(store, cfg, logger)
	tracker := abuse.NewTracker(store, registry, cfg, logger)
	classifier := breach.NewClassifier(store, cfg, logger)
	dispatcher := notify.NewDispatcher(store, nil, cfg, logger)
	aggregator := analytics.NewAggregator(store, classifier, cfg, logger)

	p := &Pipeline{
		Profiles:   service.NewProfileService(nil, store, cfg, logger),
		Registry:   registry,
		Tracker:    tracker,
		Resolver:   ratelimit.NewResolver(cfg),
		Enforcer:   ratelimit.NewEnforcer(store, cfg, logger),
		Classifier: classifier,
		Dispatcher: dispatcher,
		Metrics:    aggregator,
		Logger:     logger,
	}

	router := gin.New()
	router.Use(p.Admit())
	router.GET("/api/data", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return &pipelineFixture{
		router:     router,
		registry:   registry,
		classifier: classifier,
		metrics:    aggregator,
	}
}

func (f *pipelineFixture) get(ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	req.RemoteAddr = ip + ":51234"
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestAdmitAllowsUpToLimitThenDenies(t *testing.T) {
	f := newPipelineFixture(t, pipelineConfig())

	for i := 1; i <= 100; i++ {
		w := f.get("203.0.113.9")
		require.Equal(t, http.StatusOK, w.Code, "request %d", i)

		remaining, err := strconv.Atoi(w.Header().Get("X-RateLimit-Remaining"))
		require.NoError(t, err)
		assert.Equal(t, 100-i, remaining)
		assert.Equal(t, "100", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "FREE", w.Header().Get("X-RateLimit-Tier"))
	}

	w := f.get("203.0.113.9")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "Rate limit exceeded")

	// Exactly one breach is recorded for the denied request.
	assert.Eventually(t, func() bool {
		history, err := f.classifier.GetBreachHistory(context.Background(), 0, 0)
		return err == nil && len(history) == 1
	}, time.Second, 10*time.Millisecond)

	history, err := f.classifier.GetBreachHistory(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.BreachRateLimit, history[0].BreachType)
	assert.Equal(t, "203.0.113.9", history[0].IP)
}

func TestAdmitOtherClientsUnaffected(t *testing.T) {
	cfg := pipelineConfig()
	cfg.RateLimit.Tiers[0].RequestsPerWindow = 2
	f := newPipelineFixture(t, cfg)

	f.get("203.0.113.9")
	f.get("203.0.113.9")
	require.Equal(t, http.StatusTooManyRequests, f.get("203.0.113.9").Code)

	assert.Equal(t, http.StatusOK, f.get("203.0.113.10").Code)
}

func TestAdmitRejectsHardBlockedIP(t *testing.T) {
	f := newPipelineFixture(t, pipelineConfig())

	_, err := f.registry.Block(context.Background(), "203.0.113.9", "manual review", models.SeverityHigh, false, nil)
	require.NoError(t, err)

	w := f.get("203.0.113.9")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "Access blocked")

	assert.Equal(t, http.StatusOK, f.get("203.0.113.10").Code)
}

func TestAdmitWhitelistBypassesBlock(t *testing.T) {
	f := newPipelineFixture(t, pipelineConfig())
	ctx := context.Background()

	// Block first, then whitelist: the whitelist wins at admission time.
	_, err := f.registry.Block(ctx, "203.0.113.9", "manual review", models.SeverityHigh, false, nil)
	require.NoError(t, err)
	require.NoError(t, f.registry.Whitelist(ctx, "203.0.113.9"))

	assert.Equal(t, http.StatusOK, f.get("203.0.113.9").Code)
}

func TestAdmitDetectsRequestFlood(t *testing.T) {
	cfg := pipelineConfig()
	cfg.Abuse.DDOSThreshold = 3
	f := newPipelineFixture(t, cfg)

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, f.get("203.0.113.9").Code)
	}

	w := f.get("203.0.113.9")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Suspicious activity detected")

	// The flood lands in analytics as a DDOS breach.
	assert.Eventually(t, func() bool {
		history, err := f.classifier.GetBreachHistory(context.Background(), 0, 0)
		if err != nil {
			return false
		}
		for _, b := range history {
			if b.BreachType == models.BreachDDOS {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestAdmitRecordsMetrics(t *testing.T) {
	f := newPipelineFixture(t, pipelineConfig())

	f.get("203.0.113.9")
	f.get("203.0.113.10")

	assert.Eventually(t, func() bool {
		summary, err := f.metrics.GetAnalytics(context.Background(), time.Hour)
		return err == nil && summary.TotalRequests == 2
	}, time.Second, 10*time.Millisecond)

	summary, err := f.metrics.GetAnalytics(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(0), summary.BlockedRequests)
	assert.Equal(t, int64(2), summary.TierDistribution["FREE"])
}
