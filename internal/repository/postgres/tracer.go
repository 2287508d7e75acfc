package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var mQueryDur = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "db_query_duration_seconds",
	Help:    "Postgres query latency by statement verb.",
	Buckets: prometheus.DefBuckets,
}, []string{"verb", "result"})

type queryStartKey struct{}

type queryStart struct {
	verb string
	at   time.Time
}

// queryTracer opens a span per statement and records its latency.
type queryTracer struct {
	tr trace.Tracer
}

func newQueryTracer() *queryTracer {
	return &queryTracer{tr: otel.Tracer("postgres")}
}

func (q *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	verb := statementVerb(data.SQL)
	ctx, _ = q.tr.Start(ctx, "postgres."+verb,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.system", "postgresql")),
	)
	return context.WithValue(ctx, queryStartKey{}, queryStart{verb: verb, at: time.Now()})
}

func (q *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	result := "ok"
	if data.Err != nil && !errors.Is(data.Err, pgx.ErrNoRows) {
		result = "error"
		span.RecordError(data.Err)
		span.SetStatus(codes.Error, data.Err.Error())
	}
	if st, ok := ctx.Value(queryStartKey{}).(queryStart); ok {
		mQueryDur.WithLabelValues(st.verb, result).Observe(time.Since(st.at).Seconds())
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
}

// statementVerb is the first keyword of the statement, lowercased; CTEs
// report as "with".
func statementVerb(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToLower(fields[0])
}
