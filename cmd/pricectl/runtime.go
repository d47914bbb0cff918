package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/pricecore/internal/config"
	"github.com/noah-isme/pricecore/internal/obs"
	"github.com/noah-isme/pricecore/internal/quote"
	"github.com/noah-isme/pricecore/internal/rates"
	"github.com/noah-isme/pricecore/internal/rulestore"
)

// runtime holds the collaborators a command needs. Optional ones are nil when unconfigured.
type runtime struct {
	cfg      *config.Config
	logger   zerolog.Logger
	redis    *redis.Client
	pool     *pgxpool.Pool
	store    *rulestore.PostgresStore
	source   rulestore.Source
	resolver *rates.Resolver
	closers  []func(context.Context) error
}

func bootstrap(cmd *cobra.Command) (*runtime, error) {
	ctx := cmd.Context()
	if rules, _ := cmd.Flags().GetString("rules"); rules != "" {
		if err := os.Setenv("RULES_FILE", rules); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		cfg:      cfg,
		logger:   obs.Component(obs.NewLoggerTo(os.Stderr, cfg.LogFormat, cfg.LogLevel), "pricectl"),
		resolver: rates.NewResolver(nil),
	}
	obs.MustRegisterPricingMetrics(cfg.MetricsNamespace, prometheus.DefaultRegisterer)

	shutdownTracer, err := obs.InitTracer(ctx, obs.TracingConfig{
		Enabled:        cfg.EnableTracing,
		ServiceName:    "pricectl",
		ServiceVersion: version,
		Endpoint:       cfg.OTLPEndpoint,
		SamplingRatio:  cfg.TraceSampleRatio,
		Environment:    cfg.AppEnv,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	rt.closers = append(rt.closers, shutdownTracer)

	if cfg.RedisURL != "" {
		if err := rt.connectRedis(ctx); err != nil {
			rt.close()
			return nil, err
		}
	}
	if cfg.DatabaseURL != "" {
		pool, err := rulestore.OpenPool(ctx, cfg.DatabaseURL)
		if err != nil {
			rt.close()
			return nil, err
		}
		rt.pool = pool
		rt.store = rulestore.NewPostgresStore(pool)
		rt.closers = append(rt.closers, func(context.Context) error { pool.Close(); return nil })
	}

	if cfg.RulesFromDatabase() {
		rt.source = rt.store
	} else {
		rt.source = rulestore.FileSource{Path: cfg.RulesFile}
	}
	return rt, nil
}

func (rt *runtime) connectRedis(ctx context.Context) error {
	opts, err := redis.ParseURL(rt.cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		rt.logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("ping redis: %w", err)
	}
	rt.redis = client
	rt.closers = append(rt.closers, func(context.Context) error { return client.Close() })
	return nil
}

// reloader returns a Reloader bound to the runtime's source and resolver.
func (rt *runtime) reloader() *rulestore.Reloader {
	// A missing rules file will not appear by waiting.
	attempts := 1
	if rt.cfg.RulesFromDatabase() {
		attempts = rt.cfg.RulesStartAttempts
	}
	return &rulestore.Reloader{
		Source:        rt.source,
		Resolver:      rt.resolver,
		Redis:         rt.redis,
		Channel:       rt.cfg.RulesReloadChannel,
		Interval:      rt.cfg.RulesReloadInterval,
		StartAttempts: attempts,
		Logger:        obs.Component(rt.logger, "rulestore"),
	}
}

// service loads the rule table and returns a quote service over it.
func (rt *runtime) service(ctx context.Context) (*quote.Service, error) {
	if _, err := rt.reloader().Start(ctx); err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return quote.NewService(quote.ServiceConfig{
		Resolver: rt.resolver,
		Cache:    quote.NewCache(rt.redis, rt.cfg.QuoteCacheTTL, rt.cfg.QuoteCachePrefix),
		Logger:   obs.Component(rt.logger, "quote"),
	})
}

func (rt *runtime) close() {
	ctx := context.Background()
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i](ctx))
	}
	if err := errors.Join(errs...); err != nil {
		rt.logger.Error().Err(err).Msg("shutdown")
	}
}

// writeMetrics dumps the registry in the node_exporter textfile format when path is set.
func writeMetrics(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
