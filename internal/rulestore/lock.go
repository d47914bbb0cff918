package rulestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only while it still holds our token.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`

// Mutex is a Redis lock that serialises rule pushes across pricectl invocations.
type Mutex struct {
	Client       *redis.Client
	Key          string
	TTL          time.Duration
	RetryBackoff time.Duration
}

// Do runs fn while holding the lock. Without a Redis client fn runs unguarded.
func (m Mutex) Do(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return errors.New("rulestore: lock callback not provided")
	}
	if m.Client == nil {
		return fn(ctx)
	}
	key := m.Key
	if key == "" {
		key = "pricecore:rules:lock"
	}
	ttl := m.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	retry := m.RetryBackoff
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	token := uuid.NewString()

	for {
		ok, err := m.Client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			defer m.release(context.WithoutCancel(ctx), key, token)
			return fn(ctx)
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (m Mutex) release(ctx context.Context, key, token string) {
	if err := m.Client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
		// Redis deployments without scripting still get the lock back.
		if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
			_ = m.Client.Del(ctx, key).Err()
		}
	}
}
