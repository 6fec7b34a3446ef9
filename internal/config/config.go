package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aman-churiwal/api-sentinel/internal/models"
)

type Config struct {
	Server        ServerConfig       `json:"server"`
	Redis         RedisConfig        `json:"redis"`
	Postgres      PostgresConfig     `json:"postgres"`
	RateLimit     RateLimitConfig    `json:"rate_limit"`
	Abuse         AbuseConfig        `json:"abuse"`
	Blocking      BlockingConfig     `json:"blocking"`
	Notifications NotificationConfig `json:"notifications"`
	Analytics     AnalyticsConfig    `json:"analytics"`
	JWT           JWTConfig          `json:"jwt"`
}

type ServerConfig struct {
	Port        string `json:"port"`
	Environment string `json:"environment"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

func (r RedisConfig) GetRedisAddr() string {
	return r.Host + ":" + r.Port
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type RateLimitConfig struct {
	DefaultTier       string                 `json:"default_tier"`
	Tiers             []models.RateLimitTier `json:"tiers"`
	EndpointRules     []models.EndpointRule  `json:"endpoint_rules"`
	RoleMultipliers   map[string]float64     `json:"role_multipliers"`
	MethodMultipliers map[string]float64     `json:"method_multipliers"`
	BurstDecayFactor  float64                `json:"burst_decay_factor"`
	StoreTimeoutMs    int                    `json:"store_timeout_ms"`
}

func (r RateLimitConfig) StoreTimeout() time.Duration {
	return time.Duration(r.StoreTimeoutMs) * time.Millisecond
}

type AbuseConfig struct {
	Patterns      []models.AbusePattern `json:"patterns"`
	DDOSThreshold int                   `json:"ddos_threshold"`
	DDOSWindowMs  int64                 `json:"ddos_window_ms"`
}

func (a AbuseConfig) DDOSWindow() time.Duration {
	return time.Duration(a.DDOSWindowMs) * time.Millisecond
}

type BlockingConfig struct {
	AuditMaxEntries    int `json:"audit_max_entries"`
	AuditRetentionDays int `json:"audit_retention_days"`
}

type NotificationConfig struct {
	Global            models.NotificationPreference `json:"global"`
	CooldownMinutes   int                           `json:"cooldown_minutes"`
	DispatchTimeoutMs int                           `json:"dispatch_timeout_ms"`
	MaxConcurrent     int                           `json:"max_concurrent"`
}

func (n NotificationConfig) Cooldown() time.Duration {
	return time.Duration(n.CooldownMinutes) * time.Minute
}

func (n NotificationConfig) DispatchTimeout() time.Duration {
	return time.Duration(n.DispatchTimeoutMs) * time.Millisecond
}

type AnalyticsConfig struct {
	RetentionDays       int `json:"retention_days"`
	BreachRetentionDays int `json:"breach_retention_days"`
}

type JWTConfig struct {
	Secret      string `json:"-"`
	ExpiryHours int    `json:"expiry_hours"`
}

// DefaultTiers are the built-in quota profiles, used when the config file
// does not define its own tier table.
func DefaultTiers() []models.RateLimitTier {
	fifteenMin := int64(15 * time.Minute / time.Millisecond)
	return []models.RateLimitTier{
		{
			Name: "FREE", RequestsPerWindow: 100, WindowMs: fifteenMin, Priority: 1,
			Features: models.TierFeatures{},
		},
		{
			Name: "BASIC", RequestsPerWindow: 1000, WindowMs: fifteenMin, BurstCapacity: 50, Priority: 2,
			Features: models.TierFeatures{BurstHandling: true, EndpointSpecific: true},
		},
		{
			Name: "PRO", RequestsPerWindow: 10000, WindowMs: fifteenMin, BurstCapacity: 500, Priority: 3,
			Features: models.TierFeatures{
				BurstHandling: true, Analytics: true, EndpointSpecific: true,
				MethodSpecific: true, BreachAlerts: true,
			},
		},
		{
			Name: "ENTERPRISE", RequestsPerWindow: 100000, WindowMs: fifteenMin, BurstCapacity: 5000, Priority: 4,
			Features: models.TierFeatures{
				BurstHandling: true, Analytics: true, CustomRules: true, EndpointSpecific: true,
				MethodSpecific: true, RoleBased: true, BreachAlerts: true,
			},
		},
		{
			Name: models.TierUnlimited, RequestsPerWindow: models.UnlimitedRequests, WindowMs: fifteenMin, Priority: 5,
			Features: models.TierFeatures{
				BurstHandling: true, Analytics: true, CustomRules: true, EndpointSpecific: true,
				MethodSpecific: true, RoleBased: true, BreachAlerts: true,
			},
		},
	}
}

func Load(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()
	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Redis.Host == "" {
		c.Redis.Host = "localhost"
	}
	if c.Redis.Port == "" {
		c.Redis.Port = "6379"
	}
	if len(c.RateLimit.Tiers) == 0 {
		c.RateLimit.Tiers = DefaultTiers()
	}
	if c.RateLimit.DefaultTier == "" {
		c.RateLimit.DefaultTier = "FREE"
	}
	if c.RateLimit.RoleMultipliers == nil {
		c.RateLimit.RoleMultipliers = map[string]float64{"ADMIN": 2.0, "SERVICE": 1.5}
	}
	if c.RateLimit.MethodMultipliers == nil {
		c.RateLimit.MethodMultipliers = map[string]float64{}
	}
	if c.RateLimit.BurstDecayFactor == 0 {
		c.RateLimit.BurstDecayFactor = 0.8
	}
	if c.RateLimit.StoreTimeoutMs == 0 {
		c.RateLimit.StoreTimeoutMs = 250
	}
	if len(c.Abuse.Patterns) == 0 {
		c.Abuse.Patterns = models.DefaultAbusePatterns()
	}
	if c.Abuse.DDOSThreshold == 0 {
		c.Abuse.DDOSThreshold = 100
	}
	if c.Abuse.DDOSWindowMs == 0 {
		c.Abuse.DDOSWindowMs = 10_000
	}
	if c.Blocking.AuditMaxEntries == 0 {
		c.Blocking.AuditMaxEntries = 1000
	}
	if c.Blocking.AuditRetentionDays == 0 {
		c.Blocking.AuditRetentionDays = 30
	}
	if c.Notifications.CooldownMinutes == 0 {
		c.Notifications.CooldownMinutes = 15
	}
	if c.Notifications.DispatchTimeoutMs == 0 {
		c.Notifications.DispatchTimeoutMs = 10_000
	}
	if c.Notifications.MaxConcurrent == 0 {
		c.Notifications.MaxConcurrent = 4
	}
	if c.Analytics.RetentionDays == 0 {
		c.Analytics.RetentionDays = 7
	}
	if c.Analytics.BreachRetentionDays == 0 {
		c.Analytics.BreachRetentionDays = 30
	}
	if c.JWT.ExpiryHours == 0 {
		c.JWT.ExpiryHours = 24
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.JWT.Secret = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
}

// Validate rejects configurations that would otherwise degrade silently at
// request time. Called at load; a failure here prevents startup.
func (c *Config) Validate() error {
	tiers := make(map[string]bool, len(c.RateLimit.Tiers))
	for _, tier := range c.RateLimit.Tiers {
		if tier.Name == "" {
			return fmt.Errorf("config: tier with empty name")
		}
		if tier.WindowMs <= 0 {
			return fmt.Errorf("config: tier %q has non-positive window", tier.Name)
		}
		if tier.RequestsPerWindow < 0 && tier.RequestsPerWindow != models.UnlimitedRequests {
			return fmt.Errorf("config: tier %q has invalid requests_per_window %d", tier.Name, tier.RequestsPerWindow)
		}
		tiers[tier.Name] = true
	}

	if !tiers[c.RateLimit.DefaultTier] {
		return fmt.Errorf("config: default tier %q is not defined", c.RateLimit.DefaultTier)
	}

	for i, rule := range c.RateLimit.EndpointRules {
		if rule.Endpoint == "" {
			return fmt.Errorf("config: endpoint rule %d has empty endpoint", i)
		}
		if strings.ContainsAny(rule.Endpoint, "*?") {
			return fmt.Errorf("config: endpoint rule %q looks like a glob; endpoints match exactly", rule.Endpoint)
		}
		if rule.Tier != "" && !tiers[rule.Tier] {
			return fmt.Errorf("config: endpoint rule %q references unknown tier %q", rule.Endpoint, rule.Tier)
		}
	}

	for role, mult := range c.RateLimit.RoleMultipliers {
		if mult <= 0 {
			return fmt.Errorf("config: role multiplier for %q must be positive", role)
		}
	}
	for method, mult := range c.RateLimit.MethodMultipliers {
		if mult <= 0 {
			return fmt.Errorf("config: method multiplier for %q must be positive", method)
		}
	}

	if c.RateLimit.BurstDecayFactor <= 0 || c.RateLimit.BurstDecayFactor > 1 {
		return fmt.Errorf("config: burst_decay_factor must be in (0, 1]")
	}

	for _, pattern := range c.Abuse.Patterns {
		if pattern.Threshold <= 0 {
			return fmt.Errorf("config: abuse pattern %s has non-positive threshold", pattern.Type)
		}
		if pattern.WindowMs <= 0 {
			return fmt.Errorf("config: abuse pattern %s has non-positive window", pattern.Type)
		}
		if _, err := models.ParseSeverity(string(pattern.Severity)); err != nil {
			return fmt.Errorf("config: abuse pattern %s: %w", pattern.Type, err)
		}
	}

	for _, ch := range c.Notifications.Global.Channels {
		if _, err := models.ParseChannelType(string(ch.Type)); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if _, err := models.ParseSeverity(string(ch.MinSeverity)); err != nil {
			return fmt.Errorf("config: channel %s: %w", ch.Type, err)
		}
	}
	if qh := c.Notifications.Global.QuietHours; qh != nil {
		if qh.StartHour < 0 || qh.StartHour > 23 || qh.EndHour < 0 || qh.EndHour > 23 {
			return fmt.Errorf("config: quiet hours must be within 0-23")
		}
	}

	return nil
}

// TierByName returns the configured tier, or false when unknown.
func (c *Config) TierByName(name string) (models.RateLimitTier, bool) {
	for _, tier := range c.RateLimit.Tiers {
		if tier.Name == name {
			return tier, true
		}
	}
	return models.RateLimitTier{}, false
}
