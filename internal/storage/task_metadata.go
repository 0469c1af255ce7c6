package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/haken/internal/model"
)

// CreateTaskMetadataIfAbsent inserts the task's metadata record unless one
// already exists. Returns created=false, not an error, when another writer
// got there first; the existing record is left untouched.
func (db *DB) CreateTaskMetadataIfAbsent(ctx context.Context, m model.TaskMetadata) (bool, error) {
	abstractions := m.SetupAbstractions
	if abstractions == nil {
		abstractions = map[string]string{}
	}
	payload, err := json.Marshal(abstractions)
	if err != nil {
		return false, fmt.Errorf("storage: marshal setup abstractions: %w", err)
	}

	tag, err := db.pool.Exec(ctx,
		`INSERT INTO task_metadata (account_id, task_id, setup_abstractions)
		 VALUES ($1, $2, $3::jsonb)
		 ON CONFLICT DO NOTHING`,
		m.AccountID, m.TaskID, payload,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("storage: create task metadata: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetTaskMetadata returns the metadata record for a task, or ErrNotFound.
func (db *DB) GetTaskMetadata(ctx context.Context, accountID, taskID string) (model.TaskMetadata, error) {
	m := model.TaskMetadata{AccountID: accountID, TaskID: taskID}
	var payload []byte
	err := db.pool.QueryRow(ctx,
		`SELECT setup_abstractions, created_at
		 FROM task_metadata
		 WHERE account_id = $1 AND task_id = $2`,
		accountID, taskID,
	).Scan(&payload, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.TaskMetadata{}, ErrNotFound
		}
		return model.TaskMetadata{}, fmt.Errorf("storage: get task metadata: %w", err)
	}
	if err := json.Unmarshal(payload, &m.SetupAbstractions); err != nil {
		return model.TaskMetadata{}, fmt.Errorf("storage: decode setup abstractions: %w", err)
	}
	return m, nil
}
