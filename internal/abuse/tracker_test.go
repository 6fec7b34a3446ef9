package abuse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aman-churiwal/api-sentinel/internal/config"
	"github.com/aman-churiwal/api-sentinel/internal/ipblock"
	"github.com/aman-churiwal/api-sentinel/internal/models"
	"github.com/aman-churiwal/api-sentinel/internal/storage"
)

func newTestTracker(t *testing.T) (*Tracker, *ipblock.Registry, *time.Time) {
	t.Helper()

	now := time.Unix(1_700_000_000, 0).UTC()
	store := storage.NewMemoryStore()
	store.Now = func() time.Time { return now }

	cfg := &config.Config{
		Abuse: config.AbuseConfig{
			Patterns:      models.DefaultAbusePatterns(),
			DDOSThreshold: 5,
			DDOSWindowMs:  10_000,
		},
		Blocking: config.BlockingConfig{AuditMaxEntries: 100, AuditRetentionDays: 30},
	}

	registry := ipblock.NewRegistry(store, cfg, zap.NewNop())
	tracker := NewTracker(store, registry, cfg, zap.NewNop())
	tracker.now = func() time.Time { return now }

	return tracker, registry, &now
}

func TestRecordUnknownPattern(t *testing.T) {
	tracker, _, _ := newTestTracker(t)

	err := tracker.Record(context.Background(), "203.0.113.5", "NOT_A_PATTERN", nil)
	assert.Error(t, err)
}

func TestRecordEscalatesAtThreshold(t *testing.T) {
	ctx := context.Background()
	tracker, registry, _ := newTestTracker(t)

	// FAILED_AUTH escalates at 20 occurrences with MEDIUM severity.
	for i := 0; i < 19; i++ {
		require.NoError(t, tracker.Record(ctx, "203.0.113.5", models.AbuseFailedAuth, nil))

		rec, err := registry.IsBlocked(ctx, "203.0.113.5")
		require.NoError(t, err)
		require.Nil(t, rec, "should not be blocked after %d signals", i+1)
	}

	require.NoError(t, tracker.Record(ctx, "203.0.113.5", models.AbuseFailedAuth, map[string]string{"endpoint": "/auth/login"}))

	rec, err := registry.IsBlocked(ctx, "203.0.113.5")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.SeverityMedium, rec.Severity)
	assert.True(t, rec.AutoBlock)
	assert.Equal(t, "FAILED_AUTH", rec.Evidence["pattern"])
	assert.Equal(t, "20", rec.Evidence["count"])
	assert.Equal(t, "/auth/login", rec.Evidence["endpoint"])
}

func TestRecordEscalatesOnlyOncePerWindow(t *testing.T) {
	ctx := context.Background()
	tracker, registry, _ := newTestTracker(t)

	for i := 0; i < 25; i++ {
		require.NoError(t, tracker.Record(ctx, "203.0.113.5", models.AbuseFailedAuth, nil))
	}

	rec, err := registry.IsBlocked(ctx, "203.0.113.5")
	require.NoError(t, err)
	require.NotNil(t, rec)

	// Signals past the threshold neither extend nor duplicate the block.
	entries, err := registry.AuditLog(ctx, time.Now())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRecordWindowsAreIndependent(t *testing.T) {
	ctx := context.Background()
	tracker, registry, now := newTestTracker(t)

	// MALICIOUS_PAYLOAD escalates at 5 in an hour.
	for i := 0; i < 4; i++ {
		require.NoError(t, tracker.Record(ctx, "203.0.113.5", models.AbuseMaliciousPayload, nil))
	}

	*now = now.Add(2 * time.Hour)

	require.NoError(t, tracker.Record(ctx, "203.0.113.5", models.AbuseMaliciousPayload, nil))

	rec, err := registry.IsBlocked(ctx, "203.0.113.5")
	require.NoError(t, err)
	assert.Nil(t, rec, "count must restart in a new window")
}

func TestRecordSkipsWhitelistedIP(t *testing.T) {
	ctx := context.Background()
	tracker, registry, _ := newTestTracker(t)

	require.NoError(t, registry.Whitelist(ctx, "203.0.113.5"))

	for i := 0; i < 30; i++ {
		require.NoError(t, tracker.Record(ctx, "203.0.113.5", models.AbuseFailedAuth, nil))
	}

	rec, err := registry.IsBlocked(ctx, "203.0.113.5")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestAnalyzeDDOS(t *testing.T) {
	ctx := context.Background()
	tracker, _, now := newTestTracker(t)

	for i := 0; i < 5; i++ {
		assert.False(t, tracker.AnalyzeDDOS(ctx, "203.0.113.5", "/api/data", "GET"))
	}
	assert.True(t, tracker.AnalyzeDDOS(ctx, "203.0.113.5", "/api/data", "GET"))

	// Another endpoint has its own counter.
	assert.False(t, tracker.AnalyzeDDOS(ctx, "203.0.113.5", "/api/other", "GET"))

	// The flood signal clears with the window.
	*now = now.Add(11 * time.Second)
	assert.False(t, tracker.AnalyzeDDOS(ctx, "203.0.113.5", "/api/data", "GET"))
}
