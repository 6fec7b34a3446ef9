package notify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aman-churiwal/api-sentinel/internal/config"
	"github.com/aman-churiwal/api-sentinel/internal/models"
	"github.com/aman-churiwal/api-sentinel/internal/storage"
	"go.uber.org/zap"
)

const cooldownKeyPrefix = "notify:cooldown:"

// PreferenceSource loads per-user notification preferences. Implemented by
// the preference repository; nil results mean "no user preference".
type PreferenceSource interface {
	UserPreference(ctx context.Context, userID string) (*models.NotificationPreference, error)
}

// Dispatcher fans a breach out to every eligible channel. Each channel send
// is independent and best-effort: one failing SMTP server never blocks the
// pager. Callers on the request path run Notify in its own goroutine.
type Dispatcher struct {
	store    storage.CounterStore
	prefs    PreferenceSource
	global   models.NotificationPreference
	senders  map[models.ChannelType]Sender
	cooldown time.Duration
	timeout  time.Duration
	sem      chan struct{}
	logger   *zap.Logger

	now func() time.Time
}

func NewDispatcher(store storage.CounterStore, prefs PreferenceSource, cfg *config.Config, logger *zap.Logger) *Dispatcher {
	client := &http.Client{Timeout: cfg.Notifications.DispatchTimeout()}

	return &Dispatcher{
		store:    store,
		prefs:    prefs,
		global:   cfg.Notifications.Global,
		senders:  defaultSenders(client),
		cooldown: cfg.Notifications.Cooldown(),
		timeout:  cfg.Notifications.DispatchTimeout(),
		sem:      make(chan struct{}, cfg.Notifications.MaxConcurrent),
		logger:   logger,
		now:      time.Now,
	}
}

// SetSender swaps the sender for a channel type. Used by tests and by
// deployments that route a type through a custom transport.
func (d *Dispatcher) SetSender(s Sender) {
	d.senders[s.Type()] = s
}

// Notify delivers breach to all eligible global channels, then to the
// breach's user-specific channels if any. Returns after every send finished;
// individual failures are logged, never returned.
func (d *Dispatcher) Notify(ctx context.Context, breach *models.RateLimitBreach) {
	channels := d.eligibleChannels(d.global, breach)

	if breach.UserID != "" && d.prefs != nil {
		if pref, err := d.prefs.UserPreference(ctx, breach.UserID); err != nil {
			d.logger.Warn("failed to load user notification preference",
				zap.String("user_id", breach.UserID), zap.Error(err))
		} else if pref != nil && d.meetsBreachThreshold(ctx, breach.UserID, pref.BreachThreshold) {
			channels = append(channels, d.eligibleChannels(*pref, breach)...)
		}
	}

	var wg sync.WaitGroup
	for _, channel := range channels {
		wg.Add(1)
		go func(channel models.NotificationChannel) {
			defer wg.Done()

			d.sem <- struct{}{}
			defer func() { <-d.sem }()

			d.dispatch(ctx, channel, breach)
		}(channel)
	}
	wg.Wait()
}

// meetsBreachThreshold counts the user's recent breaches so a per-user
// preference can stay silent until repeated offenses. Threshold <= 1 means
// notify on every breach.
func (d *Dispatcher) meetsBreachThreshold(ctx context.Context, userID string, threshold int) bool {
	if threshold <= 1 {
		return true
	}

	count, err := d.store.IncrWithExpire(ctx, "notify:breachcount:"+userID, time.Hour)
	if err != nil {
		return true
	}
	return count >= int64(threshold)
}

func (d *Dispatcher) eligibleChannels(pref models.NotificationPreference, breach *models.RateLimitBreach) []models.NotificationChannel {
	if !pref.Enabled {
		return nil
	}
	if pref.QuietHours != nil && pref.QuietHours.Contains(d.now().Hour()) {
		return nil
	}

	var eligible []models.NotificationChannel
	for _, ch := range pref.Channels {
		if !ch.Enabled {
			continue
		}
		if !breach.Severity.AtLeast(ch.MinSeverity) {
			continue
		}
		eligible = append(eligible, ch)
	}
	return eligible
}

func (d *Dispatcher) dispatch(ctx context.Context, channel models.NotificationChannel, breach *models.RateLimitBreach) {
	sender, ok := d.senders[channel.Type]
	if !ok {
		d.logger.Warn("no sender for channel type", zap.String("type", string(channel.Type)))
		return
	}

	if d.onCooldown(ctx, channel.Type, breach) {
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := sender.Send(sendCtx, channel, breach); err != nil {
		d.logger.Error("notification channel send failed",
			zap.String("type", string(channel.Type)),
			zap.String("breach_id", breach.ID),
			zap.Error(err),
		)
		return
	}

	d.stampCooldown(ctx, channel.Type, breach)
	d.logger.Info("breach notification sent",
		zap.String("type", string(channel.Type)),
		zap.String("severity", string(breach.Severity)),
		zap.String("ip", breach.IP),
	)
}

// onCooldown suppresses repeat identical alerts per (channel type, message)
// within the cooldown window. A plain last-sent stamp, not a counting
// suppressor: the first successful send wins the window, the rest are dropped.
func (d *Dispatcher) onCooldown(ctx context.Context, channelType models.ChannelType, breach *models.RateLimitBreach) bool {
	_, err := d.store.Get(ctx, cooldownKey(channelType, breach))
	if err == storage.ErrNotFound {
		return false
	}
	// Store trouble must not silence alerts.
	return err == nil
}

// stampCooldown records a delivery. Only called after the send succeeded, so
// a failing channel does not eat the next alert for the whole cooldown.
func (d *Dispatcher) stampCooldown(ctx context.Context, channelType models.ChannelType, breach *models.RateLimitBreach) {
	key := cooldownKey(channelType, breach)
	if err := d.store.Set(ctx, key, d.now().UTC().Format(time.RFC3339), d.cooldown); err != nil {
		d.logger.Warn("failed to stamp notification cooldown", zap.Error(err))
	}
}

func cooldownKey(channelType models.ChannelType, breach *models.RateLimitBreach) string {
	msg := fmt.Sprintf("%s|%s|%s|%s|%s", breach.IP, breach.Endpoint, breach.Method, breach.BreachType, breach.Severity)
	sum := sha256.Sum256([]byte(msg))
	return cooldownKeyPrefix + string(channelType) + ":" + hex.EncodeToString(sum[:8])
}
