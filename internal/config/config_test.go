package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-churiwal/api-sentinel/internal/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{}`))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.GetRedisAddr())
	assert.Equal(t, "FREE", cfg.RateLimit.DefaultTier)
	assert.Len(t, cfg.RateLimit.Tiers, 5)
	assert.InDelta(t, 0.8, cfg.RateLimit.BurstDecayFactor, 0.0001)
	assert.Equal(t, 100, cfg.Abuse.DDOSThreshold)
	assert.Equal(t, 15, cfg.Notifications.CooldownMinutes)
	assert.Equal(t, 30, cfg.Analytics.BreachRetentionDays)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("POSTGRES_DSN", "host=db")

	cfg, err := Load(writeConfig(t, `{}`))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, "host=db", cfg.Postgres.DSN)
}

func TestLoadPreservesEndpointRuleOrder(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{
		"rate_limit": {
			"endpoint_rules": [
				{"endpoint": "/api/a", "tier": "PRO"},
				{"endpoint": "/api/b", "tier": "FREE"},
				{"endpoint": "/api/a", "tier": "FREE"}
			]
		}
	}`))
	require.NoError(t, err)

	require.Len(t, cfg.RateLimit.EndpointRules, 3)
	assert.Equal(t, "/api/a", cfg.RateLimit.EndpointRules[0].Endpoint)
	assert.Equal(t, "PRO", cfg.RateLimit.EndpointRules[0].Tier)
	assert.Equal(t, "FREE", cfg.RateLimit.EndpointRules[2].Tier)
}

func TestValidateRejectsUnknownDefaultTier(t *testing.T) {
	_, err := Load(writeConfig(t, `{"rate_limit": {"default_tier": "GOLD"}}`))
	assert.ErrorContains(t, err, "default tier")
}

func TestValidateRejectsRuleWithUnknownTier(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"rate_limit": {"endpoint_rules": [{"endpoint": "/api/a", "tier": "GOLD"}]}
	}`))
	assert.ErrorContains(t, err, "unknown tier")
}

func TestValidateRejectsGlobEndpointRule(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"rate_limit": {"endpoint_rules": [{"endpoint": "/api/export/*", "tier": "PRO"}]}
	}`))
	assert.ErrorContains(t, err, "glob")
}

func TestValidateRejectsNonPositiveMultiplier(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"rate_limit": {"role_multipliers": {"ADMIN": 0}}
	}`))
	assert.ErrorContains(t, err, "must be positive")
}

func TestValidateRejectsBadDecayFactor(t *testing.T) {
	_, err := Load(writeConfig(t, `{"rate_limit": {"burst_decay_factor": 1.5}}`))
	assert.ErrorContains(t, err, "burst_decay_factor")
}

func TestValidateRejectsBadChannelType(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"notifications": {"global": {"enabled": true, "channels": [
			{"type": "carrier-pigeon", "enabled": true, "min_severity": "LOW"}
		]}}
	}`))
	assert.ErrorContains(t, err, "channel type")
}

func TestValidateRejectsBadQuietHours(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"notifications": {"global": {"enabled": true, "quiet_hours": {"start_hour": 25, "end_hour": 6}}}
	}`))
	assert.ErrorContains(t, err, "quiet hours")
}

func TestValidateRejectsBadAbusePattern(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"abuse": {"patterns": [{"type": "FAILED_AUTH", "severity": "MEDIUM", "threshold": 0, "window_ms": 1000}]}
	}`))
	assert.ErrorContains(t, err, "threshold")
}

func TestTierByName(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{}`))
	require.NoError(t, err)

	tier, ok := cfg.TierByName("ENTERPRISE")
	require.True(t, ok)
	assert.Equal(t, 100000, tier.RequestsPerWindow)
	assert.True(t, tier.Features.CustomRules)

	unlimited, ok := cfg.TierByName(models.TierUnlimited)
	require.True(t, ok)
	assert.True(t, unlimited.Unlimited())

	_, ok = cfg.TierByName("GOLD")
	assert.False(t, ok)
}
