package rulestore

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/pricecore/internal/common"
	"github.com/noah-isme/pricecore/internal/obs"
	"github.com/noah-isme/pricecore/internal/rates"
)

// Reload triggers, used as the metric label.
const (
	TriggerStartup  = "startup"
	TriggerInterval = "interval"
	TriggerNotify   = "notify"
	TriggerManual   = "manual"
)

// Build validates snap into a table and rejects it when any two rules for the same category
// and region have overlapping windows. A table that passes never raises AmbiguousRate.
func Build(snap Snapshot) (*rates.Table, error) {
	table, err := snap.Table()
	if err != nil {
		return nil, err
	}
	conflicts := table.Overlaps()
	if len(conflicts) == 0 {
		return table, nil
	}
	first := conflicts[0]
	return nil, &common.Error{
		Kind:   common.KindAmbiguousRate,
		Field:  "rules",
		Reason: fmt.Sprintf("%d overlapping rule window(s)", len(conflicts)),
		Value:  lo.Map(conflicts, func(c rates.Conflict, _ int) string { return c.String() }),
		Rule: &common.RuleQuery{
			Category: string(first.First.Category),
			Region:   string(first.First.Region),
			AsOf:     rates.Day(laterStart(first)).Format(rates.DateLayout),
			Matches:  []string{first.First.ID, first.Second.ID},
		},
	}
}

func laterStart(c rates.Conflict) time.Time {
	if c.Second.EffectiveFrom.After(c.First.EffectiveFrom) {
		return c.Second.EffectiveFrom
	}
	return c.First.EffectiveFrom
}

// Reloader keeps a Resolver's table in step with a Source. A snapshot that fails to build is
// logged and counted, and the current table stays in place.
type Reloader struct {
	Source   Source
	Resolver *rates.Resolver
	// Redis and Channel enable reload-on-notify. Either may be empty.
	Redis    *redis.Client
	Channel  string
	Interval time.Duration
	// StartAttempts and RetryBase bound the retries Start makes before giving up.
	StartAttempts int
	RetryBase     time.Duration
	Logger        zerolog.Logger
}

// Start performs the initial load, retrying with exponential backoff so a rule store that
// comes up a little after pricectl does not fail the process.
func (r *Reloader) Start(ctx context.Context) (*rates.Table, error) {
	attempts := r.StartAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		table, err := r.Reload(ctx, TriggerStartup)
		if err == nil {
			return table, nil
		}
		lastErr = err
		// Invalid rules will not fix themselves.
		if common.IsPricingError(err) || attempt == attempts {
			break
		}
		timer := time.NewTimer(backoff(r.RetryBase, attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

// backoff doubles base per attempt with up to 20% jitter either way.
func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	d := base << (attempt - 1)
	jitter := (rand.Float64()*2 - 1) * 0.2 * float64(d)
	return d + time.Duration(jitter)
}

// Reload loads, validates and swaps in a new table, returning it.
func (r *Reloader) Reload(ctx context.Context, trigger string) (*rates.Table, error) {
	ctx, span := otel.Tracer("rulestore").Start(ctx, "rulestore.reload")
	defer span.End()
	span.SetAttributes(attribute.String("reload.trigger", trigger))

	snap, err := r.Source.Load(ctx)
	var table *rates.Table
	if err == nil {
		table, err = Build(snap)
	}
	if err != nil {
		obs.ObserveRuleReload(trigger, err, "", 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.Logger.Error().Err(err).Str("trigger", trigger).Str("active_version", r.Resolver.Current().Version()).Msg("rule reload rejected")
		return nil, err
	}

	prev := r.Resolver.Swap(table)
	obs.ObserveRuleReload(trigger, nil, table.Version(), table.Len())
	span.SetAttributes(attribute.String("rules.version", table.Version()), attribute.Int("rules.count", table.Len()))
	level := zerolog.InfoLevel
	if prev.Version() == table.Version() {
		level = zerolog.DebugLevel
	}
	r.Logger.WithLevel(level).Str("trigger", trigger).Str("version", table.Version()).Str("previous_version", prev.Version()).Int("rules", table.Len()).Msg("rule table loaded")
	return table, nil
}

// Run reloads on every interval tick and every notification until ctx is done. It returns
// ctx.Err() on shutdown, or an error when the subscription cannot be established.
func (r *Reloader) Run(ctx context.Context) error {
	var ticks <-chan time.Time
	if r.Interval > 0 {
		ticker := time.NewTicker(r.Interval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	var notes <-chan *redis.Message
	if r.Redis != nil && r.Channel != "" {
		sub := r.Redis.Subscribe(ctx, r.Channel)
		defer sub.Close()
		if _, err := sub.Receive(ctx); err != nil {
			return fmt.Errorf("rulestore: subscribe %s: %w", r.Channel, err)
		}
		notes = sub.Channel()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticks:
			_, _ = r.Reload(ctx, TriggerInterval)
		case msg, ok := <-notes:
			if !ok {
				notes = nil
				continue
			}
			r.Logger.Debug().Str("announced_version", msg.Payload).Msg("rule reload requested")
			_, _ = r.Reload(ctx, TriggerNotify)
		}
	}
}

// Publish announces that a new rule version is available to every subscribed Reloader.
func Publish(ctx context.Context, client *redis.Client, channel, version string) error {
	if client == nil || channel == "" {
		return nil
	}
	if err := client.Publish(ctx, channel, version).Err(); err != nil {
		return fmt.Errorf("rulestore: publish reload: %w", err)
	}
	return nil
}
