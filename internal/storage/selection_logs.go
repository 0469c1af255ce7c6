package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/haken/internal/model"
)

// MergeOutcome reports how MergeSelectionLog persisted an entry.
type MergeOutcome string

const (
	// MergeCreated means this call inserted the record.
	MergeCreated MergeOutcome = "created"
	// MergeMerged means a record already existed and the incoming delegate
	// ids and metadata were unioned into it.
	MergeMerged MergeOutcome = "merged"
)

// MergeSelectionLog persists one selection log entry with union semantics.
//
// The first writer for (account, task, category key) inserts the row. Every
// later writer, including one that loses an insert race, unions its delegate
// ids and metadata into the stored row. conclusion, message and
// event_timestamp are never rewritten. Safe for concurrent callers.
func (db *DB) MergeSelectionLog(ctx context.Context, l model.SelectionLog) (uuid.UUID, MergeOutcome, error) {
	ids := dedupeIDs(l.DelegateIDs)
	meta := l.DelegateMetadata
	if meta == nil {
		meta = map[string]model.DelegateMetadata{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("storage: marshal delegate metadata: %w", err)
	}

	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.EventTimestamp.IsZero() {
		l.EventTimestamp = time.Now().UTC()
	}

	for attempt := 0; ; attempt++ {
		var id uuid.UUID
		err = db.pool.QueryRow(ctx,
			`INSERT INTO selection_logs (id, account_id, task_id, category_key, delegate_ids,
			 conclusion, message, event_timestamp, delegate_metadata)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb)
			 ON CONFLICT (account_id, task_id, category_key) DO NOTHING
			 RETURNING id`,
			l.ID, l.AccountID, l.TaskID, l.CategoryKey, ids,
			string(l.Conclusion), l.Message, l.EventTimestamp, metaJSON,
		).Scan(&id)
		switch {
		case err == nil:
			return id, MergeCreated, nil
		case errors.Is(err, pgx.ErrNoRows), isUniqueViolation(err):
			// A record for this key already exists; fold ours into it.
		default:
			return uuid.Nil, "", fmt.Errorf("storage: insert selection log: %w", err)
		}

		if db.afterInsertConflict != nil {
			db.afterInsertConflict()
		}
		id, err = db.mergeSelectionLog(ctx, l.AccountID, l.TaskID, l.CategoryKey, ids, metaJSON)
		if errors.Is(err, ErrNotFound) && attempt == 0 {
			// Purged between the insert and the merge: insert again.
			continue
		}
		if err != nil {
			return uuid.Nil, "", err
		}
		return id, MergeMerged, nil
	}
}

// mergeSelectionLog unions delegate ids (keeping first-seen order) and
// metadata into an existing row. The row lock taken by UPDATE serializes
// concurrent mergers, and each re-evaluates against the latest row version.
func (db *DB) mergeSelectionLog(ctx context.Context, accountID, taskID, categoryKey string, ids []string, metaJSON []byte) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`UPDATE selection_logs
		 SET delegate_ids = COALESCE((
		       SELECT array_agg(u.delegate_id ORDER BY u.first_pos)
		       FROM (
		         SELECT delegate_id, min(pos) AS first_pos
		         FROM unnest(selection_logs.delegate_ids || $4::text[]) WITH ORDINALITY AS t(delegate_id, pos)
		         GROUP BY delegate_id
		       ) u
		     ), '{}'),
		     delegate_metadata = selection_logs.delegate_metadata || $5::jsonb,
		     updated_at = now()
		 WHERE account_id = $1 AND task_id = $2 AND category_key = $3
		 RETURNING id`,
		accountID, taskID, categoryKey, ids, metaJSON,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("storage: merge selection log %s/%s/%s: %w", accountID, taskID, categoryKey, ErrNotFound)
		}
		return uuid.Nil, fmt.Errorf("storage: merge selection log: %w", err)
	}
	return id, nil
}

// GetSelectionLogs returns every selection log entry for a task in
// insertion order.
func (db *DB) GetSelectionLogs(ctx context.Context, accountID, taskID string) ([]model.SelectionLog, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, account_id, task_id, category_key, delegate_ids, conclusion, message,
		 event_timestamp, delegate_metadata
		 FROM selection_logs
		 WHERE account_id = $1 AND task_id = $2
		 ORDER BY seq`,
		accountID, taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: get selection logs: %w", err)
	}
	defer rows.Close()

	var logs []model.SelectionLog
	for rows.Next() {
		var (
			l          model.SelectionLog
			conclusion string
			metaJSON   []byte
		)
		if err := rows.Scan(
			&l.ID, &l.AccountID, &l.TaskID, &l.CategoryKey, &l.DelegateIDs, &conclusion,
			&l.Message, &l.EventTimestamp, &metaJSON,
		); err != nil {
			return nil, fmt.Errorf("storage: scan selection log: %w", err)
		}
		l.Conclusion = model.Conclusion(conclusion)
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &l.DelegateMetadata); err != nil {
				return nil, fmt.Errorf("storage: decode delegate metadata for %s: %w", l.ID, err)
			}
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// dedupeIDs drops empty and repeated ids, keeping first-seen order.
func dedupeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
