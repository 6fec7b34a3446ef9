package models

import (
	"time"

	"gorm.io/gorm"
)

// UserRateLimitProfile is the per-identity state consulted on every request.
// Created lazily with the default tier on first sight of a user; mutated only
// through the admin surface. Read-mostly, so callers cache it with a short TTL.
type UserRateLimitProfile struct {
	UserID       string            `gorm:"primaryKey" json:"user_id"`
	Tier         string            `gorm:"not null;default:'FREE'" json:"tier"`
	CustomLimits map[string]int    `gorm:"serializer:json" json:"custom_limits,omitempty"`
	Whitelist    bool              `gorm:"default:false" json:"whitelist"`
	Blacklist    bool              `gorm:"default:false" json:"blacklist"`
	Metadata     map[string]string `gorm:"serializer:json" json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func (p *UserRateLimitProfile) BeforeCreate(tx *gorm.DB) error {
	if p.Tier == "" {
		p.Tier = "FREE"
	}
	return nil
}

func (UserRateLimitProfile) TableName() string {
	return "user_rate_limit_profiles"
}
