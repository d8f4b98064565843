package query

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/starford/lifelog/internal/apperr"
)

var tracer = otel.Tracer("lifelog.query")

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lifelog_query_requests_total",
		Help: "Query engine requests by operation, entity and outcome.",
	}, []string{"op", "entity", "outcome"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lifelog_query_duration_seconds",
		Help:    "Wall time of query engine requests.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"op", "entity"})

	statementsPerRequest = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lifelog_query_statements",
		Help:    "SQL statements issued per request.",
		Buckets: []float64{0, 1, 2, 3, 4, 6, 8, 12, 16, 32},
	}, []string{"op"})

	rowsReturned = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lifelog_query_rows",
		Help:    "Rows returned per request.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	}, []string{"op"})
)

// outcome classifies err for the requests counter.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperr.ErrValidation):
		return "invalid"
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "error"
}

func recordRequest(op, entity string, started time.Time, stats Stats, rows int, err error) {
	requestsTotal.WithLabelValues(op, entity, outcome(err)).Inc()
	requestDuration.WithLabelValues(op, entity).Observe(time.Since(started).Seconds())
	if err == nil {
		statementsPerRequest.WithLabelValues(op).Observe(float64(stats.Queries))
		rowsReturned.WithLabelValues(op).Observe(float64(rows))
	}
}

// startRequestSpan creates a span for one engine operation.
func startRequestSpan(ctx context.Context, op, entity string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Engine."+op,
		trace.WithAttributes(
			attribute.String("query.entity", entity),
		),
	)
}

// endRequestSpan sets result attributes and ends span.
func endRequestSpan(span trace.Span, stats Stats, rows int, err error) {
	span.SetAttributes(
		attribute.Int("query.statements", stats.Queries),
		attribute.Int("query.rows", rows),
	)
	if err != nil {
		span.SetStatus(codes.Error, outcome(err))
	}
	span.End()
}
