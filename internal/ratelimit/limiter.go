package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nmkhang/authcore/internal/common"
	"github.com/nmkhang/authcore/internal/config"
	"github.com/nmkhang/authcore/internal/store"
	"github.com/nmkhang/authcore/params"
)

// Quota tiers resolved by the caller, not by the limiter.
const (
	TierAnonymous = "anonymous"
	TierStandard  = "standard"
	TierPremium   = "premium"
	TierAdmin     = "admin"
)

// Limiter is a fixed-window counter keyed by (identity, action, window id).
// Window rollover is implicit: the key changes every window and stale keys
// expire on their own.
type Limiter struct {
	storage store.Storage
	cfg     config.RateLimitConfig
	nowFunc func() time.Time
}

func NewLimiter(storage store.Storage, cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		storage: store.StorageWithPrefix(storage, params.RateWindowKeyPrefix),
		cfg:     cfg,
		nowFunc: time.Now,
	}
}

func (l *Limiter) quota(action, tier string) int {
	if tiers, ok := l.cfg.Quotas[action]; ok {
		if q, ok := tiers[tier]; ok {
			return q
		}
	}
	return l.cfg.DefaultQuota
}

// Allow records one request and reports whether the quota still holds.
// Exceeding the quota is a soft failure: the returned error carries the
// retry-after hint and must never feed the lockout tracker. A storage outage
// fails open.
func (l *Limiter) Allow(ctx context.Context, identity, action, tier string) error {
	ctx, cancel := context.WithTimeout(ctx, params.StoreCallTimeout)
	defer cancel()

	now := l.nowFunc()
	windowID := now.Unix() / int64(l.cfg.Window.Seconds())
	key := fmt.Sprintf("%s:%s:%d", common.SanitizeKeySegment(action), common.SanitizeKeySegment(identity), windowID)

	count, err := l.storage.IncrAttr(ctx, key, "count", 1)
	if err != nil {
		slog.Warn("Rate limit counter unavailable, failing open", "action", action, "error", err)
		return nil
	}
	if count == 1 {
		// two windows keeps the counter alive through the rollover boundary
		if err := l.storage.Expire(ctx, key, now.Add(2*l.cfg.Window)); err != nil {
			slog.Warn("Failed to expire rate limit counter", "action", action, "error", err)
		}
	}

	if int(count) <= l.quota(action, tier) {
		return nil
	}
	windowEnd := time.Unix((windowID+1)*int64(l.cfg.Window.Seconds()), 0)
	return &RateLimitExceededError{
		Action:     action,
		RetryAfter: windowEnd.Sub(now),
	}
}
