package ipblock

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/aman-churiwal/api-sentinel/internal/config"
	"github.com/aman-churiwal/api-sentinel/internal/models"
	"github.com/aman-churiwal/api-sentinel/internal/storage"
	"go.uber.org/zap"
)

const (
	blockKeyPrefix = "ipblock:addr:"
	whitelistKey   = "ipblock:whitelist"
	auditKeyPrefix = "ipblock:audit:"

	// WildcardIP in the whitelist bypasses blocking for every address.
	WildcardIP = "*"
)

// Registry owns block records and the whitelist. No other component writes
// block records; auto-blocks from the abuse tracker and manual admin blocks
// both land here.
type Registry struct {
	store    storage.CounterStore
	logger   *zap.Logger
	auditMax int64
	auditTTL time.Duration

	now func() time.Time
}

func NewRegistry(store storage.CounterStore, cfg *config.Config, logger *zap.Logger) *Registry {
	return &Registry{
		store:    store,
		logger:   logger,
		auditMax: int64(cfg.Blocking.AuditMaxEntries),
		auditTTL: time.Duration(cfg.Blocking.AuditRetentionDays) * 24 * time.Hour,
		now:      time.Now,
	}
}

func blockKey(ip string) string {
	return blockKeyPrefix + ip
}

func validateIP(ip string) error {
	if net.ParseIP(ip) == nil {
		return fmt.Errorf("invalid IP address %q", ip)
	}
	return nil
}

// IsBlocked returns the active block record for ip, or nil. Expired records
// are deleted on read (lazy expiry) so a stale record never blocks traffic
// past its expiresAt even if the store's own TTL lagged.
func (r *Registry) IsBlocked(ctx context.Context, ip string) (*models.IPBlockRecord, error) {
	raw, err := r.store.Get(ctx, blockKey(ip))
	if err == storage.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec models.IPBlockRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("corrupt block record for %s: %w", ip, err)
	}

	if rec.Expired(r.now()) {
		if err := r.store.Del(ctx, blockKey(ip)); err != nil {
			r.logger.Warn("failed to delete expired block record", zap.String("ip", ip), zap.Error(err))
		}
		return nil, nil
	}

	return &rec, nil
}

// Block creates a time-bounded block for ip. Idempotent: if an active record
// already exists it is returned unchanged, so repeated escalations never
// extend a block's duration.
func (r *Registry) Block(ctx context.Context, ip, reason string, severity models.Severity, auto bool, evidence map[string]string) (*models.IPBlockRecord, error) {
	if err := validateIP(ip); err != nil {
		return nil, err
	}
	if !auto && strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("manual block requires a reason")
	}

	if whitelisted, err := r.IsWhitelisted(ctx, ip); err != nil {
		return nil, err
	} else if whitelisted {
		return nil, fmt.Errorf("ip %s is whitelisted", ip)
	}

	if existing, err := r.IsBlocked(ctx, ip); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	now := r.now().UTC()
	duration := severity.BlockDuration()
	rec := &models.IPBlockRecord{
		IP:        ip,
		Reason:    reason,
		Severity:  severity,
		BlockedAt: now,
		ExpiresAt: now.Add(duration),
		Evidence:  evidence,
		AutoBlock: auto,
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	if err := r.store.Set(ctx, blockKey(ip), string(raw), duration); err != nil {
		return nil, err
	}

	r.appendAudit(ctx, rec)
	r.logger.Info("ip blocked",
		zap.String("ip", ip),
		zap.String("severity", string(severity)),
		zap.Bool("auto", auto),
		zap.Time("expires_at", rec.ExpiresAt),
	)

	return rec, nil
}

// Unblock removes an active block early. Returns false if nothing was blocked.
func (r *Registry) Unblock(ctx context.Context, ip string) (bool, error) {
	if err := validateIP(ip); err != nil {
		return false, err
	}

	rec, err := r.IsBlocked(ctx, ip)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}

	if err := r.store.Del(ctx, blockKey(ip)); err != nil {
		return false, err
	}

	r.logger.Info("ip unblocked", zap.String("ip", ip))
	return true, nil
}

func (r *Registry) IsWhitelisted(ctx context.Context, ip string) (bool, error) {
	if ok, err := r.store.SIsMember(ctx, whitelistKey, WildcardIP); err != nil || ok {
		return ok, err
	}
	return r.store.SIsMember(ctx, whitelistKey, ip)
}

func (r *Registry) Whitelist(ctx context.Context, ip string) error {
	if ip != WildcardIP {
		if err := validateIP(ip); err != nil {
			return err
		}
	}
	return r.store.SAdd(ctx, whitelistKey, ip)
}

func (r *Registry) RemoveWhitelist(ctx context.Context, ip string) error {
	return r.store.SRem(ctx, whitelistKey, ip)
}

func (r *Registry) WhitelistEntries(ctx context.Context) ([]string, error) {
	return r.store.SMembers(ctx, whitelistKey)
}

// ListBlocked returns active blocks ordered newest-first, lazily expiring
// stale records as it scans. Admin/dashboard use only.
func (r *Registry) ListBlocked(ctx context.Context, limit, offset int) ([]models.IPBlockRecord, error) {
	keys, err := r.store.Keys(ctx, blockKeyPrefix+"*")
	if err != nil {
		return nil, err
	}

	records := make([]models.IPBlockRecord, 0, len(keys))
	for _, key := range keys {
		rec, err := r.IsBlocked(ctx, strings.TrimPrefix(key, blockKeyPrefix))
		if err != nil {
			return nil, err
		}
		if rec != nil {
			records = append(records, *rec)
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].BlockedAt.After(records[j].BlockedAt)
	})

	if offset >= len(records) {
		return nil, nil
	}
	records = records[offset:]
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}

	return records, nil
}

// AuditLog returns the bounded audit entries recorded on the given day,
// newest first.
func (r *Registry) AuditLog(ctx context.Context, day time.Time) ([]models.BlockAuditEntry, error) {
	raws, err := r.store.ListRange(ctx, auditKey(day), 0, -1)
	if err != nil {
		return nil, err
	}

	entries := make([]models.BlockAuditEntry, 0, len(raws))
	for _, raw := range raws {
		var entry models.BlockAuditEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

func auditKey(day time.Time) string {
	return auditKeyPrefix + day.UTC().Format("2006-01-02")
}

// Audit append is best-effort: losing a forensic entry must never fail the
// block itself.
func (r *Registry) appendAudit(ctx context.Context, rec *models.IPBlockRecord) {
	entry := models.NewBlockAuditEntry(rec)
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}

	if err := r.store.PushCapped(ctx, auditKey(r.now()), string(raw), r.auditMax, r.auditTTL); err != nil {
		r.logger.Warn("failed to append block audit entry", zap.String("ip", rec.IP), zap.Error(err))
	}
}
