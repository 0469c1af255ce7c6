// Package selection records why delegates were accepted, rejected or chosen
// for a task, and replays that record as an enriched narrative.
//
// A scheduler builds one Batch per evaluation pass and hands it to Save.
// Concurrent passes over the same task need no coordination: Save merges
// each entry into storage with set-union semantics, so the stored record per
// category converges to the union of everything any pass submitted.
package selection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/haken/internal/model"
	"github.com/ashita-ai/haken/internal/storage"
	"github.com/ashita-ai/haken/internal/telemetry"
)

// Store persists selection logs and task metadata. *storage.DB implements it.
type Store interface {
	MergeSelectionLog(ctx context.Context, l model.SelectionLog) (uuid.UUID, storage.MergeOutcome, error)
	GetSelectionLogs(ctx context.Context, accountID, taskID string) ([]model.SelectionLog, error)
	CreateTaskMetadataIfAbsent(ctx context.Context, m model.TaskMetadata) (bool, error)
	GetTaskMetadata(ctx context.Context, accountID, taskID string) (model.TaskMetadata, error)
}

// Registry resolves reference data. found is false for absent rows; err is
// reserved for storage failures. *registry.Cache implements it.
type Registry interface {
	Delegate(ctx context.Context, accountID, delegateID string) (model.Delegate, bool, error)
	Profile(ctx context.Context, accountID, profileID string) (model.DelegateProfile, bool, error)
	EntityName(ctx context.Context, kind model.EntityKind, accountID, id string) (string, bool, error)
}

// Service is the selection audit API shared by the HTTP and MCP handlers.
type Service struct {
	store    Store
	registry Registry
	retry    storage.RetryPolicy
	logger   *slog.Logger
	tracer   trace.Tracer

	batchesSaved        metric.Int64Counter
	entriesMerged       metric.Int64Counter
	enrichmentFallbacks metric.Int64Counter
	saveDuration        metric.Float64Histogram
}

// New creates a selection Service. A zero retry policy uses
// storage.DefaultRetryPolicy.
func New(store Store, reg Registry, retry storage.RetryPolicy, logger *slog.Logger) *Service {
	meter := telemetry.Meter("haken/selection")
	batches, _ := meter.Int64Counter("haken.selection.batches_saved",
		metric.WithDescription("Selection batches persisted"))
	merged, _ := meter.Int64Counter("haken.selection.entries_merged",
		metric.WithDescription("Selection log entries persisted, by outcome"))
	fallbacks, _ := meter.Int64Counter("haken.selection.enrichment_fallbacks",
		metric.WithDescription("Rows enriched without a delegate or profile record"))
	saveDur, _ := meter.Float64Histogram("haken.selection.save.duration",
		metric.WithDescription("Time to persist a selection batch (ms)"),
		metric.WithUnit("ms"),
	)
	return &Service{
		store:               store,
		registry:            reg,
		retry:               retry,
		logger:              logger,
		tracer:              telemetry.Tracer("haken/selection"),
		batchesSaved:        batches,
		entriesMerged:       merged,
		enrichmentFallbacks: fallbacks,
		saveDuration:        saveDur,
	}
}

// CreateBatch starts a batch for one evaluation pass over task. Returns nil
// when task is nil or selection tracking is disabled for it; the Batch
// methods and Save accept nil.
func (s *Service) CreateBatch(ctx context.Context, task *model.Task) *Batch {
	if task == nil || !task.SelectionLogsTrackingEnabled {
		return nil
	}
	return &Batch{
		TaskID:            task.ID,
		AccountID:         task.AccountID,
		IsTaskNg:          task.IsNG(),
		SetupAbstractions: s.ProcessSetupAbstractions(ctx, task.AccountID, task.SetupAbstractions),
	}
}

// Save persists a batch. A nil batch or one without entries is a no-op.
//
// Task metadata is created if absent. Each entry is merged into storage so
// that concurrent saves for the same task converge on one record per
// category key holding the union of all delegate ids. Save is idempotent
// and safe to retry. Every entry is attempted; failures are joined.
func (s *Service) Save(ctx context.Context, b *Batch) error {
	if b == nil || len(b.Entries) == 0 {
		return nil
	}
	ctx, span := s.tracer.Start(ctx, "selection.Save", trace.WithAttributes(
		attribute.String("haken.account_id", b.AccountID),
		attribute.String("haken.task_id", b.TaskID),
		attribute.Int("haken.entries", len(b.Entries)),
	))
	defer span.End()
	start := time.Now()

	var errs []error
	if len(b.SetupAbstractions) > 0 {
		created, err := s.store.CreateTaskMetadataIfAbsent(ctx, model.TaskMetadata{
			AccountID:         b.AccountID,
			TaskID:            b.TaskID,
			SetupAbstractions: b.SetupAbstractions,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("selection: save task metadata: %w", err))
		} else if !created {
			s.logger.Debug("selection: task metadata already recorded",
				"account_id", b.AccountID, "task_id", b.TaskID)
		}
	}

	for _, e := range b.Entries {
		var outcome storage.MergeOutcome
		err := storage.WithRetry(ctx, s.retry, func() error {
			var err error
			_, outcome, err = s.store.MergeSelectionLog(ctx, e)
			return err
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("selection: save entry %s: %w", e.CategoryKey, err))
			continue
		}
		s.entriesMerged.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))
	}

	s.saveDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		return err
	}
	s.batchesSaved.Add(ctx, 1)
	return nil
}

// FetchTaskSelectionLogs returns one enriched row per delegate per stored
// entry, in storage order. Missing delegates or profiles degrade the row
// rather than failing the call; only storage failures return an error.
func (s *Service) FetchTaskSelectionLogs(ctx context.Context, accountID, taskID string) ([]model.SelectionLogParams, error) {
	ctx, span := s.tracer.Start(ctx, "selection.FetchTaskSelectionLogs", trace.WithAttributes(
		attribute.String("haken.account_id", accountID),
		attribute.String("haken.task_id", taskID),
	))
	defer span.End()

	logs, err := s.store.GetSelectionLogs(ctx, accountID, taskID)
	if err != nil {
		return nil, fmt.Errorf("selection: fetch logs: %w", err)
	}

	delegates := make(map[string]Lookup[model.Delegate])
	for _, l := range logs {
		for _, id := range l.DelegateIDs {
			if _, ok := delegates[id]; ok {
				continue
			}
			d, found, err := s.registry.Delegate(ctx, accountID, id)
			if err != nil {
				return nil, fmt.Errorf("selection: resolve delegate %s: %w", id, err)
			}
			delegates[id] = Lookup[model.Delegate]{Value: d, Found: found}
		}
	}

	profiles := make(map[string]model.DelegateProfile)
	missingProfiles := make(map[string]bool)
	for _, l := range logs {
		for _, pid := range profileIDs(l, delegates) {
			if _, ok := profiles[pid]; ok || missingProfiles[pid] {
				continue
			}
			p, found, err := s.registry.Profile(ctx, accountID, pid)
			if err != nil {
				return nil, fmt.Errorf("selection: resolve profile %s: %w", pid, err)
			}
			if found {
				profiles[pid] = p
			} else {
				missingProfiles[pid] = true
			}
		}
	}

	rows := make([]model.SelectionLogParams, 0, len(logs))
	var fallbacks int64
	for _, l := range logs {
		for _, id := range l.DelegateIDs {
			d := delegates[id]
			if !d.Found || (d.Value.ProfileID != "" && missingProfiles[d.Value.ProfileID]) {
				fallbacks++
			}
			rows = append(rows, Enrich(l, id, d, profiles))
		}
	}
	if fallbacks > 0 {
		s.enrichmentFallbacks.Add(ctx, fallbacks)
	}
	span.SetAttributes(attribute.Int("haken.rows", len(rows)))
	return rows, nil
}

// FetchSelectedDelegateForTask returns the row recording which delegate was
// assigned the task. ok is false when no delegate has been selected.
func (s *Service) FetchSelectedDelegateForTask(ctx context.Context, accountID, taskID string) (model.SelectionLogParams, bool, error) {
	rows, err := s.FetchTaskSelectionLogs(ctx, accountID, taskID)
	if err != nil {
		return model.SelectionLogParams{}, false, err
	}
	for _, r := range rows {
		if r.Conclusion == model.ConclusionSelected {
			return r, true, nil
		}
	}
	return model.SelectionLogParams{}, false, nil
}

// FetchTaskSelectionLogsData returns the task's rows together with the setup
// abstractions captured for it. Tasks recorded before metadata capture have
// nil abstractions.
func (s *Service) FetchTaskSelectionLogsData(ctx context.Context, accountID, taskID string) (model.SelectionLogsData, error) {
	rows, err := s.FetchTaskSelectionLogs(ctx, accountID, taskID)
	if err != nil {
		return model.SelectionLogsData{}, err
	}
	data := model.SelectionLogsData{Logs: rows}

	meta, err := s.store.GetTaskMetadata(ctx, accountID, taskID)
	switch {
	case err == nil:
		data.TaskSetupAbstractions = meta.SetupAbstractions
	case errors.Is(err, storage.ErrNotFound):
	default:
		return model.SelectionLogsData{}, fmt.Errorf("selection: fetch task metadata: %w", err)
	}
	return data, nil
}
