package ratelimit

import (
	"context"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/bursar/internal/config"
	"go.uber.org/zap"
)

const (
	defaultPromptsPerMinute = 6
	defaultPromptBurst      = 3
	defaultCallbackLockTTL  = 30 * time.Second
)

// MobileMoneyLimiter throttles payment prompts per phone number and
// serializes callback handling per transaction. A nil limiter allows everything.
type MobileMoneyLimiter struct {
	prompts   *PromptThrottle
	callbacks *CallbackLock
}

// NewRedisClient returns nil when redis is not configured.
func NewRedisClient(cfg config.Config) *redis.Client {
	if !cfg.Redis.Enabled() {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.Redis.Addr),
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})
}

func NewMobileMoneyLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) *MobileMoneyLimiter {
	if client == nil {
		return nil
	}
	mm := cfg.MobileMoney
	perMinute := mm.InitiateRatePerMinute
	if perMinute <= 0 {
		perMinute = defaultPromptsPerMinute
	}
	burst := mm.InitiateBurst
	if burst <= 0 {
		burst = defaultPromptBurst
	}
	ttl := time.Duration(mm.CallbackLockTTL) * time.Second
	if ttl <= 0 {
		ttl = defaultCallbackLockTTL
	}

	prompts, err := NewPromptThrottle(client, perMinute, burst)
	if err != nil {
		log.Warn("mobile money prompt throttle disabled", zap.Error(err))
		return nil
	}
	callbacks, err := NewCallbackLock(client, ttl)
	if err != nil {
		log.Warn("mobile money callback lock disabled", zap.Error(err))
		return nil
	}
	return &MobileMoneyLimiter{prompts: prompts, callbacks: callbacks}
}

func (l *MobileMoneyLimiter) Enabled() bool {
	return l != nil && l.prompts != nil && l.callbacks != nil
}

func (l *MobileMoneyLimiter) AllowInitiate(ctx context.Context, schoolID, phoneNumber string) (PromptDecision, error) {
	if !l.Enabled() {
		return PromptDecision{Allowed: true}, nil
	}
	return l.prompts.Allow(ctx, schoolID, phoneNumber)
}

// LockCallback returns a zero Lease and true when no limiter is configured.
func (l *MobileMoneyLimiter) LockCallback(ctx context.Context, transactionID string) (Lease, bool, error) {
	if !l.Enabled() {
		return Lease{}, true, nil
	}
	return l.callbacks.Acquire(ctx, transactionID)
}
