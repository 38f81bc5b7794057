package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// GCRA over a single key holding the theoretical arrival time in unix ms.
// Returns {allowed, retry_after_ms}.
const promptThrottleScript = `
local interval = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])

local clock = redis.call("TIME")
local now = (clock[1] * 1000) + math.floor(clock[2] / 1000)

local tat = tonumber(redis.call("GET", KEYS[1]))
if tat == nil or tat < now then
  tat = now
end

local next_tat = tat + interval
local allow_at = next_tat - (interval * burst)
if now < allow_at then
  return {0, allow_at - now}
end

redis.call("SET", KEYS[1], next_tat, "PX", next_tat - now)
return {1, 0}
`

const keyPromptThrottle = "mobile-money:prompt:%s:%s"

// PromptDecision reports whether another payment prompt may be pushed to a phone.
type PromptDecision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// PromptThrottle spaces out payment prompts sent to the same phone number.
// Up to burst prompts pass back to back, then one per interval.
type PromptThrottle struct {
	client   *redis.Client
	script   *redis.Script
	interval time.Duration
	burst    int
}

func NewPromptThrottle(client *redis.Client, perMinute float64, burst int) (*PromptThrottle, error) {
	if client == nil {
		return nil, errors.New("prompt throttle requires a redis client")
	}
	if perMinute <= 0 {
		return nil, fmt.Errorf("prompt rate must be positive, got %v", perMinute)
	}
	if burst <= 0 {
		return nil, fmt.Errorf("prompt burst must be positive, got %d", burst)
	}
	return &PromptThrottle{
		client:   client,
		script:   redis.NewScript(promptThrottleScript),
		interval: time.Duration(float64(time.Minute) / perMinute),
		burst:    burst,
	}, nil
}

func (p *PromptThrottle) Allow(ctx context.Context, schoolID, phoneNumber string) (PromptDecision, error) {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" {
		return PromptDecision{}, errors.New("prompt throttle phone number is empty")
	}
	key := fmt.Sprintf(keyPromptThrottle, strings.TrimSpace(schoolID), phoneNumber)

	res, err := p.script.Run(ctx, p.client, []string{key}, p.interval.Milliseconds(), p.burst).Int64Slice()
	if err != nil {
		return PromptDecision{}, err
	}
	if len(res) != 2 {
		return PromptDecision{}, fmt.Errorf("prompt throttle returned %d values", len(res))
	}
	return PromptDecision{
		Allowed:    res[0] == 1,
		RetryAfter: time.Duration(res[1]) * time.Millisecond,
	}, nil
}
