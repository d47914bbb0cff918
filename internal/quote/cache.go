package quote

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/pricecore/internal/common"
)

// Cache stores computed breakdowns as JSON in Redis. A nil client disables it.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewCache constructs a cache helper.
func NewCache(client *redis.Client, ttl time.Duration, prefix string) *Cache {
	return &Cache{client: client, ttl: ttl, prefix: prefix}
}

// Key derives the cache key for a canonical request priced against a rule table. Both the
// version label and the content fingerprint take part: editing a rate without bumping the
// version still misses, and a relabelled table does not report the old version.
func (c *Cache) Key(ruleVersion, rulesFingerprint string, canonical []byte) string {
	if !c.enabled() {
		return ""
	}
	return c.prefix + common.Fingerprint([]byte(ruleVersion), []byte(rulesFingerprint), canonical)
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if !c.enabled() || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if !c.enabled() || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}
