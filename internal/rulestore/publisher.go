package rulestore

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/pricecore/internal/rates"
)

// Replacer stores a complete snapshot, replacing whatever was there.
type Replacer interface {
	Replace(ctx context.Context, snap Snapshot) error
}

// Publisher pushes a rule snapshot to the shared store and tells running reloaders about it.
type Publisher struct {
	Store   Replacer
	Redis   *redis.Client
	Channel string
	Lock    Mutex
	Logger  zerolog.Logger
}

// Push validates snap exactly as a Reloader would, stores it under the push lock and
// publishes the new version. Nothing is stored when validation fails.
func (p *Publisher) Push(ctx context.Context, snap Snapshot) (*rates.Table, error) {
	table, err := Build(snap)
	if err != nil {
		return nil, err
	}
	if p.Store == nil && p.Redis == nil {
		return nil, errors.New("rulestore: publisher needs a store or a redis client")
	}
	// Store what the table resolved: defaulted IDs, upper-case regions and day-truncated windows.
	stored := Snapshot{Version: table.Version(), Rules: table.Rules()}
	err = p.Lock.Do(ctx, func(ctx context.Context) error {
		if p.Store != nil {
			if err := p.Store.Replace(ctx, stored); err != nil {
				return err
			}
		}
		return Publish(ctx, p.Redis, p.Channel, table.Version())
	})
	if err != nil {
		p.Logger.Error().Err(err).Str("version", table.Version()).Msg("rule push failed")
		return nil, err
	}
	p.Logger.Info().Str("version", table.Version()).Int("rules", table.Len()).Msg("rule table pushed")
	return table, nil
}
