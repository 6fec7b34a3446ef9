package models

import "time"

// UnlimitedRequests marks a tier with no per-window cap.
const UnlimitedRequests = -1

// TierFeatures are the capabilities a tier grants. They gate optional
// behavior (burst counting, breach alerting, ...) per subscription level.
type TierFeatures struct {
	BurstHandling    bool `json:"burst_handling"`
	Analytics        bool `json:"analytics"`
	CustomRules      bool `json:"custom_rules"`
	EndpointSpecific bool `json:"endpoint_specific"`
	MethodSpecific   bool `json:"method_specific"`
	RoleBased        bool `json:"role_based"`
	BreachAlerts     bool `json:"breach_alerts"`
}

// RateLimitTier is a named quota profile. Tiers are loaded from config and
// never mutated at runtime; the resolver copies one before applying overrides.
type RateLimitTier struct {
	Name              string       `json:"name"`
	RequestsPerWindow int          `json:"requests_per_window"` // UnlimitedRequests = no cap
	WindowMs          int64        `json:"window_ms"`
	BurstCapacity     int          `json:"burst_capacity,omitempty"`
	Priority          int          `json:"priority"` // lower = more restricted
	Features          TierFeatures `json:"features"`
}

func (t RateLimitTier) Window() time.Duration {
	return time.Duration(t.WindowMs) * time.Millisecond
}

func (t RateLimitTier) Unlimited() bool {
	return t.RequestsPerWindow == UnlimitedRequests
}

// Reserved tier names produced by the resolver rather than configured.
const (
	TierBlocked   = "BLOCKED"
	TierUnlimited = "UNLIMITED"
)

// EndpointRule overrides tier selection for an exact path/method/role match.
// Rules are evaluated in declaration order; the first match wins.
type EndpointRule struct {
	Endpoint      string `json:"endpoint"`
	Method        string `json:"method,omitempty"`
	UserRole      string `json:"user_role,omitempty"`
	Tier          string `json:"tier"`
	CustomLimit   *int   `json:"custom_limit,omitempty"`
	WindowMs      *int64 `json:"window_ms,omitempty"`
	BurstCapacity *int   `json:"burst_capacity,omitempty"`
}

// Matches reports whether the rule applies to the given request shape.
// Unset method/role on the rule match anything.
func (r EndpointRule) Matches(path, method, role string) bool {
	if r.Endpoint != path {
		return false
	}
	if r.Method != "" && r.Method != method {
		return false
	}
	if r.UserRole != "" && r.UserRole != role {
		return false
	}
	return true
}
