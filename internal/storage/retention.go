package storage

import (
	"context"
	"fmt"
	"time"
)

// PurgeCount holds row counts removed by a retention run.
type PurgeCount struct {
	SelectionLogs int64 `json:"selection_logs"`
	TaskMetadata  int64 `json:"task_metadata"`
}

// PurgeExpired deletes selection logs first written before the cutoff, then
// task metadata older than the cutoff that no longer has any logs. Rows are
// removed in batches of batchSize to avoid long-running transactions.
// Merging into an existing record does not extend its lifetime.
func (db *DB) PurgeExpired(ctx context.Context, before time.Time, batchSize int) (PurgeCount, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	var total PurgeCount
	for {
		tag, err := db.pool.Exec(ctx,
			`DELETE FROM selection_logs
			 WHERE id IN (
			     SELECT id FROM selection_logs
			     WHERE created_at < $1
			     LIMIT $2
			 )`,
			before, batchSize,
		)
		if err != nil {
			return total, fmt.Errorf("storage: purge selection logs: %w", err)
		}
		total.SelectionLogs += tag.RowsAffected()
		if tag.RowsAffected() < int64(batchSize) {
			break
		}
	}

	for {
		tag, err := db.pool.Exec(ctx,
			`DELETE FROM task_metadata
			 WHERE (account_id, task_id) IN (
			     SELECT tm.account_id, tm.task_id FROM task_metadata tm
			     WHERE tm.created_at < $1
			       AND NOT EXISTS (
			           SELECT 1 FROM selection_logs s
			           WHERE s.account_id = tm.account_id AND s.task_id = tm.task_id
			       )
			     LIMIT $2
			 )`,
			before, batchSize,
		)
		if err != nil {
			return total, fmt.Errorf("storage: purge task metadata: %w", err)
		}
		total.TaskMetadata += tag.RowsAffected()
		if tag.RowsAffected() < int64(batchSize) {
			break
		}
	}

	return total, nil
}
