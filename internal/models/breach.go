package models

import (
	"time"

	"github.com/google/uuid"
)

type BreachType string

const (
	BreachRateLimit  BreachType = "RATE_LIMIT"
	BreachBurst      BreachType = "BURST"
	BreachSuspicious BreachType = "SUSPICIOUS"
	BreachDDOS       BreachType = "DDOS"
)

// RateLimitBreach records one denied request. Breaches feed the notification
// dispatcher and the analytics aggregator, and expire after the configured
// retention window.
type RateLimitBreach struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id,omitempty"`
	IP         string            `json:"ip"`
	Endpoint   string            `json:"endpoint"`
	Method     string            `json:"method"`
	BreachType BreachType        `json:"breach_type"`
	Severity   Severity          `json:"severity"`
	Timestamp  time.Time         `json:"timestamp"`
	Details    map[string]string `json:"details,omitempty"`
	Resolved   bool              `json:"resolved"`
}

func NewBreach(ip, endpoint, method string, breachType BreachType, severity Severity) *RateLimitBreach {
	return &RateLimitBreach{
		ID:         uuid.New().String(),
		IP:         ip,
		Endpoint:   endpoint,
		Method:     method,
		BreachType: breachType,
		Severity:   severity,
		Timestamp:  time.Now().UTC(),
		Details:    make(map[string]string),
	}
}

// RateLimitMetric is one record per evaluated request. Write-only stream,
// retained for the analytics window then expired by the store.
type RateLimitMetric struct {
	UserID    string    `json:"user_id,omitempty"`
	IP        string    `json:"ip"`
	Endpoint  string    `json:"endpoint"`
	Method    string    `json:"method"`
	Timestamp time.Time `json:"timestamp"`
	Blocked   bool      `json:"blocked"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"reset_time"`
	Tier      string    `json:"tier"`
}
