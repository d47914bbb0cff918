package rulestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/pricecore/internal/common"
	"github.com/noah-isme/pricecore/internal/money"
	"github.com/noah-isme/pricecore/internal/obs"
	"github.com/noah-isme/pricecore/internal/rates"
)

const unversioned = "unversioned"

var ruleColumns = []string{"id", "category", "region", "rate_percent", "effective_from", "effective_to", "description"}

// OpenPool connects to Postgres with query tracing enabled.
func OpenPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// PostgresStore keeps the rule table in the tax_rules table created by Migrate.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an open pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

type ruleRow struct {
	ID            string
	Category      string
	Region        string
	RatePercent   string
	EffectiveFrom time.Time
	EffectiveTo   *time.Time
	Description   string
}

// Load implements Source.
func (s *PostgresStore) Load(ctx context.Context) (Snapshot, error) {
	ctx, span := otel.Tracer("rulestore").Start(ctx, "rulestore.postgres.load")
	defer span.End()

	var version string
	err := s.pool.QueryRow(ctx, `SELECT version FROM tax_rule_versions`).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		version = unversioned
	} else if err != nil {
		return Snapshot{}, fmt.Errorf("rulestore: load version: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, category, trim(region), rate_percent::text, effective_from, effective_to, description
		FROM tax_rules
		ORDER BY id`)
	if err != nil {
		return Snapshot{}, fmt.Errorf("rulestore: query rules: %w", err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToStructByPos[ruleRow])
	if err != nil {
		return Snapshot{}, fmt.Errorf("rulestore: scan rules: %w", err)
	}
	rules, err := rowsToRules(records)
	if err != nil {
		return Snapshot{}, err
	}
	span.SetAttributes(attribute.String("rules.version", version), attribute.Int("rules.count", len(rules)))
	return Snapshot{Version: version, Rules: rules}, nil
}

// Replace swaps the stored rules for snap in one transaction.
func (s *PostgresStore) Replace(ctx context.Context, snap Snapshot) error {
	ctx, span := otel.Tracer("rulestore").Start(ctx, "rulestore.postgres.replace")
	defer span.End()

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM tax_rules`); err != nil {
			return fmt.Errorf("rulestore: clear rules: %w", err)
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"tax_rules"}, ruleColumns, pgx.CopyFromSlice(len(snap.Rules), func(i int) ([]any, error) {
			r := snap.Rules[i]
			return []any{r.ID, string(r.Category), string(r.Region), numeric(r.RatePercent), r.EffectiveFrom, r.EffectiveTo, r.Description}, nil
		})); err != nil {
			return fmt.Errorf("rulestore: copy rules: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO tax_rule_versions (singleton, version, updated_at) VALUES (TRUE, $1, now())
			ON CONFLICT (singleton) DO UPDATE SET version = EXCLUDED.version, updated_at = EXCLUDED.updated_at`,
			snap.Version); err != nil {
			return fmt.Errorf("rulestore: store version: %w", err)
		}
		return nil
	})
}

func rowsToRules(records []ruleRow) ([]rates.TaxRule, error) {
	rules := make([]rates.TaxRule, 0, len(records))
	for i, rec := range records {
		rate, err := money.ParsePercent(rec.RatePercent)
		if err != nil {
			return nil, withIndex(&common.Error{Kind: common.KindValidationFailed, Field: "rate_percent", Reason: "invalid rate", Value: rec.RatePercent, Err: err}, i)
		}
		rules = append(rules, rates.TaxRule{
			ID:            rec.ID,
			Category:      rates.Category(rec.Category),
			Region:        rates.NormalizeRegion(rec.Region),
			RatePercent:   rate,
			EffectiveFrom: rec.EffectiveFrom,
			EffectiveTo:   rec.EffectiveTo,
			Description:   rec.Description,
		})
	}
	return rules, nil
}

func numeric(p money.Percent) pgtype.Numeric {
	d := p.Decimal()
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}
