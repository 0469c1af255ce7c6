package storage

import (
	"context"

	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/haken/internal/telemetry"
)

// RegisterPoolMetrics exports pgxpool statistics as observable gauges.
// Call after telemetry.Init so the real meter provider is installed.
func (db *DB) RegisterPoolMetrics() {
	meter := telemetry.Meter("haken/storage")

	total, _ := meter.Int64ObservableGauge("haken.db.pool.total_conns",
		metric.WithDescription("Connections currently held by the pool"))
	idle, _ := meter.Int64ObservableGauge("haken.db.pool.idle_conns",
		metric.WithDescription("Idle connections in the pool"))
	acquired, _ := meter.Int64ObservableGauge("haken.db.pool.acquired_conns",
		metric.WithDescription("Connections checked out of the pool"))
	waits, _ := meter.Int64ObservableCounter("haken.db.pool.empty_acquire_count",
		metric.WithDescription("Acquires that had to wait for a connection"))

	_, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := db.pool.Stat()
		o.ObserveInt64(total, int64(s.TotalConns()))
		o.ObserveInt64(idle, int64(s.IdleConns()))
		o.ObserveInt64(acquired, int64(s.AcquiredConns()))
		o.ObserveInt64(waits, s.EmptyAcquireCount())
		return nil
	}, total, idle, acquired, waits)
	if err != nil {
		db.logger.Warn("storage: register pool metrics", "error", err)
	}
}
