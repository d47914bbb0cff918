package obs

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	pgxTracerName   = "rulestore.pgx"
	maxStatementLen = 300
)

// PGXTracer traces rule store round trips: plain queries and the CopyFrom bulk load used
// when a rule table is replaced. Spans become children of the reload or push that issued them.
type PGXTracer struct{}

var (
	_ pgx.QueryTracer    = PGXTracer{}
	_ pgx.CopyFromTracer = PGXTracer{}
)

// TraceQueryStart opens a span named after the statement's leading keyword.
func (PGXTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	op := sqlOperation(data.SQL)
	ctx, _ = otel.Tracer(pgxTracerName).Start(ctx, "rulestore."+strings.ToLower(op),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", op),
			attribute.String("db.statement", truncateSQL(data.SQL)),
			attribute.Int("db.args", len(data.Args)),
		))
	return ctx
}

// TraceQueryEnd closes the span opened by TraceQueryStart.
func (PGXTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	finishSpan(trace.SpanFromContext(ctx), data.CommandTag.RowsAffected(), data.Err)
}

// TraceCopyFromStart opens a span for a bulk rule load into table.
func (PGXTracer) TraceCopyFromStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceCopyFromStartData) context.Context {
	ctx, _ = otel.Tracer(pgxTracerName).Start(ctx, "rulestore.copy",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "COPY"),
			attribute.String("db.sql.table", data.TableName.Sanitize()),
			attribute.StringSlice("db.columns", data.ColumnNames),
		))
	return ctx
}

// TraceCopyFromEnd closes the span opened by TraceCopyFromStart.
func (PGXTracer) TraceCopyFromEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceCopyFromEndData) {
	finishSpan(trace.SpanFromContext(ctx), data.CommandTag.RowsAffected(), data.Err)
}

func finishSpan(span trace.Span, rows int64, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int64("db.rows_affected", rows))
	}
	span.End()
}

// sqlOperation returns the upper-cased first keyword of sql, or "QUERY" when there is none.
func sqlOperation(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "QUERY"
	}
	return strings.ToUpper(fields[0])
}

func truncateSQL(sql string) string {
	trimmed := strings.TrimSpace(sql)
	if len(trimmed) > maxStatementLen {
		return trimmed[:maxStatementLen] + "..."
	}
	return trimmed
}
