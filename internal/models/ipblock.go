package models

import (
	"time"

	"github.com/google/uuid"
)

// IPBlockRecord is an active block on one IP. At most one active record
// exists per IP; blocking an already-blocked IP returns the existing record.
type IPBlockRecord struct {
	IP        string            `json:"ip"`
	Reason    string            `json:"reason"`
	Severity  Severity          `json:"severity"`
	BlockedAt time.Time         `json:"blocked_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	Evidence  map[string]string `json:"evidence,omitempty"`
	AutoBlock bool              `json:"auto_block"`
}

func (r IPBlockRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// BlockAuditEntry is one line in the per-day forensic audit log, appended on
// every successful block.
type BlockAuditEntry struct {
	ID        string    `json:"id"`
	IP        string    `json:"ip"`
	Reason    string    `json:"reason"`
	Severity  Severity  `json:"severity"`
	AutoBlock bool      `json:"auto_block"`
	ExpiresAt time.Time `json:"expires_at"`
	Timestamp time.Time `json:"timestamp"`
}

func NewBlockAuditEntry(rec *IPBlockRecord) BlockAuditEntry {
	return BlockAuditEntry{
		ID:        uuid.New().String(),
		IP:        rec.IP,
		Reason:    rec.Reason,
		Severity:  rec.Severity,
		AutoBlock: rec.AutoBlock,
		ExpiresAt: rec.ExpiresAt,
		Timestamp: time.Now().UTC(),
	}
}
