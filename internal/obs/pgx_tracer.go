package obs

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PGXTracer emits a span per SQL statement executed through the pool.
type PGXTracer struct{}

// TraceQueryStart opens the statement span. The span travels on the returned
// context, which pgx hands back to TraceQueryEnd.
func (PGXTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	ctx, span := otel.Tracer("backend-mall/db").Start(ctx, "sql."+queryVerb(data.SQL))
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.statement", compactSQL(data.SQL)),
	)
	return ctx
}

// TraceQueryEnd closes the span, recording the error or the row count.
func (PGXTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span := trace.SpanFromContext(ctx)
	if data.Err != nil {
		span.RecordError(data.Err)
	} else {
		span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
	}
	span.End()
}

func queryVerb(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "query"
	}
	return strings.ToLower(fields[0])
}

// compactSQL collapses whitespace so multi-line statements stay readable as
// a single span attribute, capped to keep exports small.
func compactSQL(sql string) string {
	flat := strings.Join(strings.Fields(sql), " ")
	if len(flat) > 256 {
		return flat[:256]
	}
	return flat
}
