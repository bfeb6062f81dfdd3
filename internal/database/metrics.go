package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dejobratic/shopdash/internal/orders/ports"
)

type Metrics struct {
	queryDuration metric.Float64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.queryDuration, err = meter.Float64Histogram(
		"db_query_duration_seconds",
		metric.WithDescription("Database query duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create db_query_duration histogram: %w", err)
	}

	return m, nil
}

// RecordQuery records one store call. Lookups that miss and lost races are
// expected outcomes, not failures.
func (m *Metrics) RecordQuery(ctx context.Context, operation string, durationSeconds float64, err error) {
	m.queryDuration.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", queryStatus(err)),
	))
}

func queryStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ports.ErrNotFound), errors.Is(err, ports.ErrClaimNotFound):
		return "not_found"
	case errors.Is(err, ports.ErrConflict), errors.Is(err, ports.ErrClaimLost):
		return "conflict"
	default:
		return "error"
	}
}

// ObservePool exports pgxpool connection counts as gauges.
func ObservePool(meter metric.Meter, pool *pgxpool.Pool) error {
	acquired, err := meter.Int64ObservableGauge(
		"db_pool_acquired_connections",
		metric.WithDescription("Connections currently checked out of the pool"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return fmt.Errorf("create db_pool_acquired_connections gauge: %w", err)
	}

	idle, err := meter.Int64ObservableGauge(
		"db_pool_idle_connections",
		metric.WithDescription("Idle connections held by the pool"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return fmt.Errorf("create db_pool_idle_connections gauge: %w", err)
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stat := pool.Stat()
		o.ObserveInt64(acquired, int64(stat.AcquiredConns()))
		o.ObserveInt64(idle, int64(stat.IdleConns()))
		return nil
	}, acquired, idle)
	if err != nil {
		return fmt.Errorf("register pool callback: %w", err)
	}

	return nil
}
