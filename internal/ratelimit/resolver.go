package ratelimit

import (
	"math"
	"time"

	"github.com/aman-churiwal/api-sentinel/internal/config"
	"github.com/aman-churiwal/api-sentinel/internal/models"
)

// softBlockWindow is the window of the synthetic BLOCKED tier handed to
// blacklisted profiles. This is a request-level soft block, distinct from an
// IP-level hard block: it still flows through the enforcer so the caller gets
// a consistent denied response and a breach record.
const softBlockWindow = time.Hour

// Resolver computes the effective tier for one request. Resolution is a pure
// function of (request, profile, static config): no hidden state, so identical
// inputs always yield identical tiers within one config epoch.
type Resolver struct {
	cfg *config.Config
}

func NewResolver(cfg *config.Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// BlockedTier is the synthetic zero-quota tier for blacklisted identities.
func BlockedTier() models.RateLimitTier {
	return models.RateLimitTier{
		Name:              models.TierBlocked,
		RequestsPerWindow: 0,
		WindowMs:          softBlockWindow.Milliseconds(),
		Priority:          0,
	}
}

func (r *Resolver) unlimitedTier() models.RateLimitTier {
	if tier, ok := r.cfg.TierByName(models.TierUnlimited); ok {
		return tier
	}
	// Config replaced the default tier table without an UNLIMITED entry.
	return models.RateLimitTier{
		Name:              models.TierUnlimited,
		RequestsPerWindow: models.UnlimitedRequests,
		WindowMs:          softBlockWindow.Milliseconds(),
		Priority:          5,
	}
}

// Resolve composes tier, endpoint rules and multipliers into the tier the
// enforcer will apply. profile may be nil for anonymous callers.
func (r *Resolver) Resolve(req models.RequestContext, profile *models.UserRateLimitProfile) models.RateLimitTier {
	// Blacklist wins over everything, including the whitelist flag.
	if profile != nil && profile.Blacklist {
		return BlockedTier()
	}
	if profile != nil && profile.Whitelist {
		return r.unlimitedTier()
	}

	tier, ok := models.RateLimitTier{}, false
	if profile != nil {
		tier, ok = r.cfg.TierByName(profile.Tier)
	}
	if !ok {
		tier, _ = r.cfg.TierByName(r.cfg.RateLimit.DefaultTier)
	}

	if tier.Unlimited() {
		return tier
	}

	// First matching endpoint rule wins; declaration order is significant.
	for _, rule := range r.cfg.RateLimit.EndpointRules {
		if !rule.Matches(req.Endpoint, req.Method, req.Role) {
			continue
		}
		if rule.Tier != "" {
			if sub, ok := r.cfg.TierByName(rule.Tier); ok {
				tier = sub
			}
		}
		if rule.CustomLimit != nil {
			tier.RequestsPerWindow = *rule.CustomLimit
		}
		if rule.WindowMs != nil {
			tier.WindowMs = *rule.WindowMs
		}
		if rule.BurstCapacity != nil {
			tier.BurstCapacity = *rule.BurstCapacity
		}
		break
	}

	// Per-profile endpoint overrides apply on top of static rules, gated on
	// the tier's custom-rules capability.
	if profile != nil && tier.Features.CustomRules {
		if limit, ok := profile.CustomLimits[req.Endpoint]; ok {
			tier.RequestsPerWindow = limit
		}
	}

	roleMult := multiplier(r.cfg.RateLimit.RoleMultipliers, req.Role)
	methodMult := multiplier(r.cfg.RateLimit.MethodMultipliers, req.Method)

	if !tier.Unlimited() {
		tier.RequestsPerWindow = int(math.Floor(float64(tier.RequestsPerWindow) * roleMult * methodMult))
	}
	if tier.BurstCapacity > 0 {
		tier.BurstCapacity = int(math.Floor(float64(tier.BurstCapacity) * roleMult * methodMult))
	}

	return tier
}

func multiplier(table map[string]float64, key string) float64 {
	if m, ok := table[key]; ok {
		return m
	}
	return 1.0
}
