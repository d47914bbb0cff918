package quote

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/pricecore/internal/common"
	"github.com/noah-isme/pricecore/internal/discount"
	"github.com/noah-isme/pricecore/internal/obs"
	"github.com/noah-isme/pricecore/internal/pricing"
	"github.com/noah-isme/pricecore/internal/rates"
)

// Quote is a priced request as handed to presentation layers.
type Quote struct {
	ID        string            `json:"quote_id"`
	Cached    bool              `json:"cached"`
	Breakdown pricing.Breakdown `json:"breakdown"`
}

// Service prices requests against the live rule table, with logging, tracing, metrics and an
// optional breakdown cache around the pure engine.
type Service struct {
	engine   *pricing.Engine
	resolver *rates.Resolver
	cache    *Cache
	logger   zerolog.Logger
	newID    func() string
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Resolver *rates.Resolver
	Cache    *Cache
	Logger   zerolog.Logger
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Resolver == nil {
		return nil, errors.New("quote: rate resolver is required")
	}
	engine, err := pricing.NewEngine(pricing.EngineDeps{Resolver: cfg.Resolver})
	if err != nil {
		return nil, err
	}
	return &Service{
		engine:   engine,
		resolver: cfg.Resolver,
		cache:    cfg.Cache,
		logger:   cfg.Logger,
		newID:    uuid.NewString,
	}, nil
}

// Quote prices one input. Pricing errors are returned unchanged so callers can match them
// against the common sentinels.
func (s *Service) Quote(ctx context.Context, in Input) (Quote, error) {
	ctx, span := otel.Tracer("quote").Start(ctx, "quote.calculate")
	defer span.End()

	id := s.newID()
	span.SetAttributes(attribute.String("quote.id", id), attribute.Int("quote.items", len(in.Items)))
	logger := s.logger.With().Str("quote_id", id).Str("region", in.Region).Logger()

	req, err := in.Request()
	if err != nil {
		return Quote{}, s.fail(span, logger, in.Region, err, 0)
	}

	// One snapshot serves both the cache key and the calculation.
	table := s.resolver.Current()
	span.SetAttributes(attribute.String("rules.version", table.Version()))

	var key string
	if canonical, err := in.canonical(); err == nil {
		key = s.cache.Key(table.Version(), table.Fingerprint(), canonical)
	}
	var cached pricing.Breakdown
	hit, err := s.cache.GetJSON(ctx, key, &cached)
	switch {
	case err != nil:
		obs.ObserveQuoteCache("error")
		logger.Warn().Err(err).Msg("quote cache read failed")
	case hit:
		obs.ObserveQuoteCache("hit")
		span.SetAttributes(attribute.Bool("quote.cached", true))
		logger.Debug().Str("rule_version", table.Version()).Msg("quote served from cache")
		return Quote{ID: id, Cached: true, Breakdown: cached}, nil
	case key != "" && s.cache.enabled():
		obs.ObserveQuoteCache("miss")
	}

	start := time.Now()
	breakdown, err := s.engine.CalculateWith(table, req)
	elapsed := time.Since(start)
	if err != nil {
		return Quote{}, s.fail(span, logger, in.Region, err, elapsed)
	}
	obs.ObserveCalculation(string(breakdown.Region), "", elapsed)

	if err := s.cache.SetJSON(ctx, key, breakdown); err != nil {
		logger.Warn().Err(err).Msg("quote cache write failed")
	}

	skipped := lo.CountBy(breakdown.Applied, func(a discount.Application) bool { return a.Status != discount.StatusApplied })
	logger.Info().
		Str("rule_version", breakdown.RuleVersion).
		Str("total", breakdown.Total.String()).
		Str("currency", breakdown.Currency).
		Int("items", len(breakdown.PerItem)).
		Int("modifiers_skipped", skipped).
		Dur("elapsed", elapsed).
		Msg("quote calculated")
	return Quote{ID: id, Breakdown: breakdown}, nil
}

// QuoteAll prices each input independently. errs[i] is set when inputs[i] failed.
func (s *Service) QuoteAll(ctx context.Context, inputs []Input) ([]Quote, []error) {
	quotes := make([]Quote, len(inputs))
	errs := make([]error, len(inputs))
	lo.ForEach(inputs, func(in Input, i int) {
		quotes[i], errs[i] = s.Quote(ctx, in)
	})
	return quotes, errs
}

func (s *Service) fail(span trace.Span, logger zerolog.Logger, region string, err error, elapsed time.Duration) error {
	kind := common.KindOf(err)
	label := string(kind)
	if label == "" {
		label = "internal"
	}
	obs.ObserveCalculation(string(rates.NormalizeRegion(region)), label, elapsed)
	span.RecordError(err)
	span.SetStatus(codes.Error, label)
	logger.Warn().Err(err).Str("kind", label).Msg("quote rejected")
	return err
}
