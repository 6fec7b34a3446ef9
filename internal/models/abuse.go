package models

import "time"

type AbusePatternType string

const (
	AbuseRateLimitBreach  AbusePatternType = "RATE_LIMIT_BREACH"
	AbuseFailedAuth       AbusePatternType = "FAILED_AUTH"
	AbuseMaliciousPayload AbusePatternType = "MALICIOUS_PAYLOAD"
	AbuseDDOSPattern      AbusePatternType = "DDOS_PATTERN"
)

// AbusePattern configures one abuse-signal type: how many occurrences within
// the window escalate to an automatic IP block of the given severity.
type AbusePattern struct {
	Type      AbusePatternType `json:"type"`
	Severity  Severity         `json:"severity"`
	Threshold int              `json:"threshold"`
	WindowMs  int64            `json:"window_ms"`
}

func (p AbusePattern) Window() time.Duration {
	return time.Duration(p.WindowMs) * time.Millisecond
}

// DefaultAbusePatterns mirror the thresholds used in production before they
// were made configurable.
func DefaultAbusePatterns() []AbusePattern {
	return []AbusePattern{
		{Type: AbuseRateLimitBreach, Severity: SeverityLow, Threshold: 10, WindowMs: int64(5 * time.Minute / time.Millisecond)},
		{Type: AbuseFailedAuth, Severity: SeverityMedium, Threshold: 20, WindowMs: int64(10 * time.Minute / time.Millisecond)},
		{Type: AbuseMaliciousPayload, Severity: SeverityHigh, Threshold: 5, WindowMs: int64(time.Hour / time.Millisecond)},
		{Type: AbuseDDOSPattern, Severity: SeverityCritical, Threshold: 100, WindowMs: int64(time.Minute / time.Millisecond)},
	}
}
