package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aman-churiwal/api-sentinel/internal/abuse"
	"github.com/aman-churiwal/api-sentinel/internal/analytics"
	"github.com/aman-churiwal/api-sentinel/internal/breach"
	"github.com/aman-churiwal/api-sentinel/internal/ipblock"
	"github.com/aman-churiwal/api-sentinel/internal/models"
	"github.com/aman-churiwal/api-sentinel/internal/notify"
	"github.com/aman-churiwal/api-sentinel/internal/ratelimit"
	"github.com/aman-churiwal/api-sentinel/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// asyncTimeout bounds the post-decision work (metrics, classification,
// notification, abuse tracking) that runs detached from the request.
const asyncTimeout = 30 * time.Second

// Pipeline wires the admission-control loop into one middleware:
// blocklist -> ddos analysis -> resolve -> enforce -> classify/notify/track.
type Pipeline struct {
	Profiles   *service.ProfileService
	Registry   *ipblock.Registry
	Tracker    *abuse.Tracker
	Resolver   *ratelimit.Resolver
	Enforcer   *ratelimit.Enforcer
	Classifier *breach.Classifier
	Dispatcher *notify.Dispatcher
	Metrics    *analytics.Aggregator
	Logger     *zap.Logger
}

func (p *Pipeline) Admit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ip := c.ClientIP()

		whitelisted, err := p.Registry.IsWhitelisted(ctx, ip)
		if err != nil {
			p.Logger.Error("whitelist lookup failed", zap.String("ip", ip), zap.Error(err))
		}

		// Whitelisted IPs bypass the hard-block check and abuse analysis;
		// tier enforcement still applies through the profile flags.
		if !whitelisted {
			if blocked := p.checkBlocked(c, ip); blocked {
				return
			}
			if flooding := p.checkDDOS(c, ip); flooding {
				return
			}
		}

		req := models.RequestContext{
			UserID:    c.GetString("user_id"),
			IP:        ip,
			Endpoint:  c.Request.URL.Path,
			Method:    c.Request.Method,
			Role:      c.GetString("role"),
			UserAgent: c.Request.UserAgent(),
		}

		profile, err := p.Profiles.Get(ctx, req.UserID)
		if err != nil {
			// Profile storage trouble degrades to default-tier treatment.
			p.Logger.Error("profile lookup failed", zap.String("user_id", req.UserID), zap.Error(err))
			profile = nil
		}

		tier := p.Resolver.Resolve(req, profile)
		result := p.Enforcer.Check(ctx, req, tier)

		setRateLimitHeaders(c, result)

		go p.recordMetric(req, result)

		if !result.Allowed {
			go p.handleDenied(req, tier, result)

			status := http.StatusTooManyRequests
			message := "Rate limit exceeded"
			if tier.Name == models.TierBlocked {
				status = http.StatusForbidden
				message = "Access blocked"
			}

			retryAfter := int(result.RetryAfter.Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))

			c.JSON(status, gin.H{
				"error":       message,
				"tier":        result.Tier,
				"limit":       result.Limit,
				"retry_after": result.ResetTime.Unix(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// checkBlocked short-circuits requests from hard-blocked IPs before any
// resolution work happens.
func (p *Pipeline) checkBlocked(c *gin.Context, ip string) bool {
	rec, err := p.Registry.IsBlocked(c.Request.Context(), ip)
	if err != nil {
		// Blocking is best-effort during a store outage; let the request
		// proceed to normal enforcement.
		p.Logger.Error("block lookup failed", zap.String("ip", ip), zap.Error(err))
		return false
	}
	if rec == nil {
		return false
	}

	retryAfter := int(time.Until(rec.ExpiresAt).Seconds())
	if retryAfter < 0 {
		retryAfter = 0
	}

	c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
	c.JSON(http.StatusForbidden, gin.H{
		"error":       "Access blocked",
		"reason":      rec.Reason,
		"retry_after": rec.ExpiresAt.Unix(),
	})
	c.Abort()
	return true
}

// checkDDOS rejects request floods with a generic response before they
// consume a full rate-limit cycle.
func (p *Pipeline) checkDDOS(c *gin.Context, ip string) bool {
	endpoint := c.Request.URL.Path
	method := c.Request.Method

	if !p.Tracker.AnalyzeDDOS(c.Request.Context(), ip, endpoint, method) {
		return false
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), asyncTimeout)
		defer cancel()

		b := models.NewBreach(ip, endpoint, method, models.BreachDDOS, models.SeverityCritical)
		b.Details["source"] = "ddos_analyzer"
		if err := p.Classifier.Save(ctx, b); err != nil {
			p.Logger.Warn("failed to persist ddos breach", zap.Error(err))
		} else {
			p.Dispatcher.Notify(ctx, b)
		}

		p.Tracker.Record(ctx, ip, models.AbuseDDOSPattern, map[string]string{
			"endpoint": endpoint,
			"method":   method,
		})
	}()

	c.JSON(http.StatusForbidden, gin.H{
		"error": "Suspicious activity detected",
	})
	c.Abort()
	return true
}

// handleDenied runs the breach path off the request goroutine: classify,
// notify, and feed the abuse tracker.
func (p *Pipeline) handleDenied(req models.RequestContext, tier models.RateLimitTier, result ratelimit.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), asyncTimeout)
	defer cancel()

	b, err := p.Classifier.Classify(ctx, req, tier, result)
	if err != nil {
		p.Logger.Error("breach classification failed", zap.String("ip", req.IP), zap.Error(err))
	} else if b != nil {
		p.Dispatcher.Notify(ctx, b)
	}

	if err := p.Tracker.Record(ctx, req.IP, models.AbuseRateLimitBreach, map[string]string{
		"endpoint": req.Endpoint,
		"tier":     tier.Name,
	}); err != nil {
		p.Logger.Warn("abuse record failed", zap.String("ip", req.IP), zap.Error(err))
	}
}

func (p *Pipeline) recordMetric(req models.RequestContext, result ratelimit.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), asyncTimeout)
	defer cancel()

	p.Metrics.RecordMetric(ctx, models.RateLimitMetric{
		UserID:    req.UserID,
		IP:        req.IP,
		Endpoint:  req.Endpoint,
		Method:    req.Method,
		Timestamp: time.Now().UTC(),
		Blocked:   !result.Allowed,
		Remaining: result.Remaining,
		ResetTime: result.ResetTime,
		Tier:      result.Tier,
	})
}

func setRateLimitHeaders(c *gin.Context, result ratelimit.Result) {
	c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", result.Limit))
	c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", result.Remaining))
	c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", result.ResetTime.Unix()))
	c.Header("X-RateLimit-Tier", result.Tier)
	if result.BurstUsed > 0 {
		c.Header("X-RateLimit-Burst", fmt.Sprintf("%d", result.BurstUsed))
	}
}
