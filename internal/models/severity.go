package models

import (
	"fmt"
	"time"
)

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank makes severities comparable: higher rank = more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

func ParseSeverity(raw string) (Severity, error) {
	switch Severity(raw) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(raw), nil
	}
	return "", fmt.Errorf("unknown severity %q", raw)
}

// BlockDuration is the single severity -> block duration policy shared by
// auto-blocking and manual blocking. CRITICAL is 30 days for both paths.
func (s Severity) BlockDuration() time.Duration {
	switch s {
	case SeverityLow:
		return 15 * time.Minute
	case SeverityMedium:
		return time.Hour
	case SeverityHigh:
		return 24 * time.Hour
	case SeverityCritical:
		return 30 * 24 * time.Hour
	default:
		return 15 * time.Minute
	}
}
