// Package retention expires old selection audit records on a schedule.
package retention

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/haken/internal/storage"
	"github.com/ashita-ai/haken/internal/telemetry"
)

// Purger deletes records written before a cutoff. *storage.DB implements it.
type Purger interface {
	PurgeExpired(ctx context.Context, before time.Time, batchSize int) (storage.PurgeCount, error)
}

// Config controls how long records live and how often they are swept.
type Config struct {
	MaxAge    time.Duration
	Interval  time.Duration
	BatchSize int
}

// Worker runs PurgeExpired on a ticker until stopped.
type Worker struct {
	store  Purger
	logger *slog.Logger
	cfg    Config
	now    func() time.Time

	deleted metric.Int64Counter

	started    atomic.Bool
	cancelLoop context.CancelFunc
	done       chan struct{}
	once       sync.Once
}

// New creates a retention worker. Call Start to begin sweeping.
func New(store Purger, logger *slog.Logger, cfg Config) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	deleted, _ := telemetry.Meter("haken/retention").Int64Counter("haken.retention.deleted",
		metric.WithDescription("Rows removed by retention sweeps"))
	return &Worker{
		store:   store,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
		deleted: deleted,
		done:    make(chan struct{}),
	}
}

// RunOnce purges everything older than MaxAge.
func (w *Worker) RunOnce(ctx context.Context) (storage.PurgeCount, error) {
	cutoff := w.now().Add(-w.cfg.MaxAge)
	counts, err := w.store.PurgeExpired(ctx, cutoff, w.cfg.BatchSize)
	if counts.SelectionLogs > 0 {
		w.deleted.Add(ctx, counts.SelectionLogs, metric.WithAttributes(attribute.String("table", "selection_logs")))
	}
	if counts.TaskMetadata > 0 {
		w.deleted.Add(ctx, counts.TaskMetadata, metric.WithAttributes(attribute.String("table", "task_metadata")))
	}
	return counts, err
}

// Start begins the background sweep loop. Only the first call has any effect.
func (w *Worker) Start(ctx context.Context) {
	if !w.started.CompareAndSwap(false, true) {
		w.logger.Warn("retention: Start called more than once, ignoring")
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	w.cancelLoop = cancel
	go w.loop(loopCtx)
}

// Stop ends the sweep loop and waits for an in-flight sweep to return, or for
// ctx to expire. Safe to call without Start.
func (w *Worker) Stop(ctx context.Context) {
	if !w.started.Load() {
		return
	}
	w.cancelLoop()
	select {
	case <-w.done:
	case <-ctx.Done():
		w.logger.Warn("retention: stop timed out")
	}
}

func (w *Worker) loop(ctx context.Context) {
	defer w.once.Do(func() { close(w.done) })

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Worker) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, w.cfg.Interval)
	defer cancel()

	start := time.Now()
	counts, err := w.RunOnce(sweepCtx)
	if err != nil {
		w.logger.Error("retention: sweep failed", "error", err,
			"selection_logs", counts.SelectionLogs, "task_metadata", counts.TaskMetadata)
		return
	}
	if counts.SelectionLogs > 0 || counts.TaskMetadata > 0 {
		w.logger.Info("retention: sweep complete",
			"selection_logs", counts.SelectionLogs,
			"task_metadata", counts.TaskMetadata,
			"duration_ms", time.Since(start).Milliseconds())
	}
}
