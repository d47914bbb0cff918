package obs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewLoggerToWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(NewLoggerTo(&buf, "json", "debug"), "quote")
	logger.Info().Str("quote_id", "q-1").Msg("calculated")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "quote", entry["component"])
	require.Equal(t, "q-1", entry["quote_id"])
	require.Equal(t, "calculated", entry["message"])
	require.NotEmpty(t, entry["time"])
}

func TestNewLoggerToConsole(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "console", "bogus")
	logger.Info().Msg("hello")
	require.True(t, strings.Contains(buf.String(), "hello"))
	require.False(t, json.Valid(buf.Bytes()))
}

func TestPricingMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustRegisterPricingMetrics("test", reg)
	// Second call is a no-op.
	MustRegisterPricingMetrics("test", reg)

	ObserveCalculation("IN", "", time.Millisecond)
	ObserveCalculation("IN", "AmbiguousRate", time.Millisecond)
	require.Equal(t, 1.0, testutil.ToFloat64(CalculationsTotal.WithLabelValues("IN", "ok", "")))
	require.Equal(t, 1.0, testutil.ToFloat64(CalculationsTotal.WithLabelValues("IN", "error", "AmbiguousRate")))

	ObserveRuleReload("interval", nil, "v2", 12)
	ObserveRuleReload("interval", errors.New("boom"), "v3", 0)
	require.Equal(t, 12.0, testutil.ToFloat64(ActiveRules.WithLabelValues("v2")))
	require.Equal(t, 1.0, testutil.ToFloat64(RuleReloadsTotal.WithLabelValues("interval", "error")))

	ObserveQuoteCache("hit")
	require.Equal(t, 1.0, testutil.ToFloat64(QuoteCacheTotal.WithLabelValues("hit")))
}

func TestInitTracerDisabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), TracingConfig{})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitTracerRequiresEndpoint(t *testing.T) {
	_, err := InitTracer(context.Background(), TracingConfig{Enabled: true})
	require.Error(t, err)
}

func TestTraceSampler(t *testing.T) {
	require.Contains(t, traceSampler(0).Description(), "AlwaysOnSampler")
	require.Contains(t, traceSampler(1.5).Description(), "AlwaysOnSampler")
	require.Contains(t, traceSampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}

// recordSpans swaps in a recording tracer provider for the duration of the test.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return recorder
}

func attrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestPGXTracerQuerySpans(t *testing.T) {
	recorder := recordSpans(t)
	var tracer PGXTracer

	ctx := tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "delete from tax_rules", Args: []any{}})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{CommandTag: pgconn.NewCommandTag("DELETE 14")})

	ctx = tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "SELECT version FROM tax_rule_versions"})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{Err: errors.New("relation does not exist")})

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	require.Equal(t, "rulestore.delete", spans[0].Name())
	got := attrs(spans[0])
	require.Equal(t, "DELETE", got["db.operation"].AsString())
	require.Equal(t, int64(14), got["db.rows_affected"].AsInt64())

	require.Equal(t, "rulestore.select", spans[1].Name())
	require.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestPGXTracerCopySpan(t *testing.T) {
	recorder := recordSpans(t)
	var tracer PGXTracer

	ctx := tracer.TraceCopyFromStart(context.Background(), nil, pgx.TraceCopyFromStartData{
		TableName:   pgx.Identifier{"tax_rules"},
		ColumnNames: []string{"id", "rate_percent"},
	})
	tracer.TraceCopyFromEnd(ctx, nil, pgx.TraceCopyFromEndData{CommandTag: pgconn.NewCommandTag("COPY 2")})

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "rulestore.copy", spans[0].Name())
	got := attrs(spans[0])
	require.Equal(t, `"tax_rules"`, got["db.sql.table"].AsString())
	require.Equal(t, int64(2), got["db.rows_affected"].AsInt64())
}

func TestSQLOperation(t *testing.T) {
	require.Equal(t, "INSERT", sqlOperation("  insert into tax_rule_versions"))
	require.Equal(t, "QUERY", sqlOperation("   "))
}

func TestTruncateSQL(t *testing.T) {
	long := strings.Repeat("x", maxStatementLen+10)
	require.Len(t, truncateSQL(long), maxStatementLen+3)
	require.Equal(t, "SELECT 1", truncateSQL("  SELECT 1 "))
}
