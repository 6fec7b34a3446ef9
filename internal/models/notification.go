package models

import (
	"fmt"

	"gorm.io/gorm"
)

type ChannelType string

const (
	ChannelEmail     ChannelType = "email"
	ChannelSlack     ChannelType = "slack"
	ChannelPagerDuty ChannelType = "pagerduty"
	ChannelWebhook   ChannelType = "webhook"
	ChannelSMS       ChannelType = "sms"
)

func ParseChannelType(raw string) (ChannelType, error) {
	switch ChannelType(raw) {
	case ChannelEmail, ChannelSlack, ChannelPagerDuty, ChannelWebhook, ChannelSMS:
		return ChannelType(raw), nil
	}
	return "", fmt.Errorf("unknown notification channel type %q", raw)
}

// NotificationChannel is one configured delivery target. Config keys are
// channel-specific: recipients/smtp settings for email, webhook_url for
// slack/webhook, integration_key for pagerduty, api_url/recipients for sms.
type NotificationChannel struct {
	Type        ChannelType       `json:"type"`
	Config      map[string]string `json:"config"`
	Enabled     bool              `json:"enabled"`
	MinSeverity Severity          `json:"min_severity"`
}

// QuietHours suppresses notifications between StartHour and EndHour (local
// hour of day). A window wrapping midnight (e.g. 22 -> 6) is supported.
type QuietHours struct {
	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`
}

func (q QuietHours) Contains(hour int) bool {
	if q.StartHour == q.EndHour {
		return false
	}
	if q.StartHour < q.EndHour {
		return hour >= q.StartHour && hour < q.EndHour
	}
	return hour >= q.StartHour || hour < q.EndHour
}

// NotificationPreference is the global or per-user fan-out policy.
type NotificationPreference struct {
	UserID          string                `gorm:"primaryKey" json:"user_id"` // "" = global
	Channels        []NotificationChannel `gorm:"serializer:json" json:"channels"`
	BreachThreshold int                   `json:"breach_threshold"`
	QuietHours      *QuietHours           `gorm:"serializer:json" json:"quiet_hours,omitempty"`
	Enabled         bool                  `gorm:"default:true" json:"enabled"`
}

func (p *NotificationPreference) BeforeSave(tx *gorm.DB) error {
	for _, ch := range p.Channels {
		if _, err := ParseChannelType(string(ch.Type)); err != nil {
			return err
		}
	}
	return nil
}

func (NotificationPreference) TableName() string {
	return "notification_preferences"
}
