package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const callbackReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const keyCallbackLock = "mobile-money:callback:%s"

// CallbackLock lets one worker at a time apply a callback to a transaction.
type CallbackLock struct {
	client  *redis.Client
	release *redis.Script
	ttl     time.Duration
}

// Lease is a held CallbackLock. The zero Lease releases nothing.
type Lease struct {
	lock  *CallbackLock
	key   string
	token string
}

func NewCallbackLock(client *redis.Client, ttl time.Duration) (*CallbackLock, error) {
	if client == nil {
		return nil, errors.New("callback lock requires a redis client")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("callback lock ttl must be positive, got %s", ttl)
	}
	return &CallbackLock{
		client:  client,
		release: redis.NewScript(callbackReleaseScript),
		ttl:     ttl,
	}, nil
}

// Acquire reports false without error when another worker holds the transaction.
func (l *CallbackLock) Acquire(ctx context.Context, transactionID string) (Lease, bool, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return Lease{}, false, errors.New("callback lock transaction id is empty")
	}
	key := fmt.Sprintf(keyCallbackLock, transactionID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil || !ok {
		return Lease{}, false, err
	}
	return Lease{lock: l, key: key, token: token}, true, nil
}

// Release deletes the key only while the lease still owns it.
func (l Lease) Release(ctx context.Context) error {
	if l.lock == nil || l.token == "" {
		return nil
	}
	return l.lock.release.Run(ctx, l.lock.client, []string{l.key}, l.token).Err()
}
