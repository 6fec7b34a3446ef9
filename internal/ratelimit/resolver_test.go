package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-churiwal/api-sentinel/internal/config"
	"github.com/aman-churiwal/api-sentinel/internal/models"
)

func resolverConfig() *config.Config {
	return &config.Config{
		RateLimit: config.RateLimitConfig{
			DefaultTier: "FREE",
			Tiers: []models.RateLimitTier{
				{Name: "FREE", RequestsPerWindow: 10, WindowMs: 60_000, Priority: 1},
				{Name: "PRO", RequestsPerWindow: 100, WindowMs: 60_000, BurstCapacity: 20, Priority: 3,
					Features: models.TierFeatures{BurstHandling: true, CustomRules: true}},
				{Name: models.TierUnlimited, RequestsPerWindow: models.UnlimitedRequests, WindowMs: 60_000, Priority: 5},
			},
			EndpointRules: []models.EndpointRule{
				{Endpoint: "/api/export", Method: "GET", Tier: "PRO"},
				{Endpoint: "/api/search", Tier: "", CustomLimit: intPtr(30), WindowMs: int64Ptr(10_000)},
			},
			RoleMultipliers:   map[string]float64{"ADMIN": 2.0},
			MethodMultipliers: map[string]float64{"POST": 1.5},
			BurstDecayFactor:  0.8,
			StoreTimeoutMs:    250,
		},
	}
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func TestResolveDefaultTierForAnonymous(t *testing.T) {
	r := NewResolver(resolverConfig())

	tier := r.Resolve(models.RequestContext{IP: "1.2.3.4", Endpoint: "/api/data", Method: "GET"}, nil)

	assert.Equal(t, "FREE", tier.Name)
	assert.Equal(t, 10, tier.RequestsPerWindow)
}

func TestResolveBlacklistWinsOverWhitelist(t *testing.T) {
	r := NewResolver(resolverConfig())
	profile := &models.UserRateLimitProfile{UserID: "u1", Tier: "PRO", Blacklist: true, Whitelist: true}

	tier := r.Resolve(models.RequestContext{UserID: "u1", Endpoint: "/api/data", Method: "GET"}, profile)

	assert.Equal(t, models.TierBlocked, tier.Name)
	assert.Equal(t, 0, tier.RequestsPerWindow)
}

func TestResolveWhitelistGetsUnlimited(t *testing.T) {
	r := NewResolver(resolverConfig())
	profile := &models.UserRateLimitProfile{UserID: "u1", Tier: "FREE", Whitelist: true}

	tier := r.Resolve(models.RequestContext{UserID: "u1", Endpoint: "/api/data", Method: "GET"}, profile)

	assert.Equal(t, models.TierUnlimited, tier.Name)
	assert.True(t, tier.Unlimited())
}

func TestResolveUnknownProfileTierFallsBackToDefault(t *testing.T) {
	r := NewResolver(resolverConfig())
	profile := &models.UserRateLimitProfile{UserID: "u1", Tier: "GONE"}

	tier := r.Resolve(models.RequestContext{UserID: "u1", Endpoint: "/api/data", Method: "GET"}, profile)

	assert.Equal(t, "FREE", tier.Name)
}

func TestResolveMultipliersComposeAndFloor(t *testing.T) {
	r := NewResolver(resolverConfig())

	// 10 * 2.0 (ADMIN) * 1.5 (POST) = 30
	tier := r.Resolve(models.RequestContext{IP: "1.2.3.4", Endpoint: "/api/data", Method: "POST", Role: "ADMIN"}, nil)
	assert.Equal(t, 30, tier.RequestsPerWindow)

	// Unknown role and method multiply by 1.0.
	tier = r.Resolve(models.RequestContext{IP: "1.2.3.4", Endpoint: "/api/data", Method: "DELETE", Role: "VIEWER"}, nil)
	assert.Equal(t, 10, tier.RequestsPerWindow)
}

func TestResolveEndpointRuleSubstitutesTier(t *testing.T) {
	r := NewResolver(resolverConfig())

	tier := r.Resolve(models.RequestContext{IP: "1.2.3.4", Endpoint: "/api/export", Method: "GET"}, nil)

	assert.Equal(t, "PRO", tier.Name)
	assert.Equal(t, 100, tier.RequestsPerWindow)

	// Method mismatch leaves the base tier in place.
	tier = r.Resolve(models.RequestContext{IP: "1.2.3.4", Endpoint: "/api/export", Method: "POST"}, nil)
	assert.Equal(t, "FREE", tier.Name)
}

func TestResolveEndpointRuleNumericOverrides(t *testing.T) {
	r := NewResolver(resolverConfig())

	tier := r.Resolve(models.RequestContext{IP: "1.2.3.4", Endpoint: "/api/search", Method: "GET"}, nil)

	assert.Equal(t, "FREE", tier.Name)
	assert.Equal(t, 30, tier.RequestsPerWindow)
	assert.Equal(t, int64(10_000), tier.WindowMs)
}

func TestResolveProfileCustomLimitsGatedOnFeature(t *testing.T) {
	r := NewResolver(resolverConfig())

	// PRO has the custom-rules capability, so the override applies.
	pro := &models.UserRateLimitProfile{
		UserID:       "u1",
		Tier:         "PRO",
		CustomLimits: map[string]int{"/api/data": 7},
	}
	tier := r.Resolve(models.RequestContext{UserID: "u1", Endpoint: "/api/data", Method: "GET"}, pro)
	assert.Equal(t, 7, tier.RequestsPerWindow)

	// FREE does not, so the same override is ignored.
	free := &models.UserRateLimitProfile{
		UserID:       "u2",
		Tier:         "FREE",
		CustomLimits: map[string]int{"/api/data": 7},
	}
	tier = r.Resolve(models.RequestContext{UserID: "u2", Endpoint: "/api/data", Method: "GET"}, free)
	assert.Equal(t, 10, tier.RequestsPerWindow)
}

func TestResolveIsDeterministic(t *testing.T) {
	r := NewResolver(resolverConfig())
	req := models.RequestContext{UserID: "u1", Endpoint: "/api/export", Method: "GET", Role: "ADMIN"}
	profile := &models.UserRateLimitProfile{UserID: "u1", Tier: "PRO"}

	first := r.Resolve(req, profile)
	for i := 0; i < 5; i++ {
		require.Equal(t, first, r.Resolve(req, profile))
	}
}
