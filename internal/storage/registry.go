package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/haken/internal/model"
)

// GetDelegate returns a delegate by id, or ErrNotFound once it has been removed.
func (db *DB) GetDelegate(ctx context.Context, accountID, delegateID string) (model.Delegate, error) {
	var (
		d         model.Delegate
		profileID *string
	)
	err := db.pool.QueryRow(ctx,
		`SELECT id, account_id, name, host_name, delegate_type, profile_id, created_at
		 FROM delegates WHERE account_id = $1 AND id = $2`,
		accountID, delegateID,
	).Scan(&d.ID, &d.AccountID, &d.Name, &d.HostName, &d.Type, &profileID, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Delegate{}, ErrNotFound
		}
		return model.Delegate{}, fmt.Errorf("storage: get delegate: %w", err)
	}
	if profileID != nil {
		d.ProfileID = *profileID
	}
	return d, nil
}

// GetDelegateProfile returns a delegate profile by id, or ErrNotFound.
func (db *DB) GetDelegateProfile(ctx context.Context, accountID, profileID string) (model.DelegateProfile, error) {
	var p model.DelegateProfile
	err := db.pool.QueryRow(ctx,
		`SELECT id, account_id, name, created_at
		 FROM delegate_profiles WHERE account_id = $1 AND id = $2`,
		accountID, profileID,
	).Scan(&p.ID, &p.AccountID, &p.Name, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.DelegateProfile{}, ErrNotFound
		}
		return model.DelegateProfile{}, fmt.Errorf("storage: get delegate profile: %w", err)
	}
	return p, nil
}

// GetEntityName returns the display name of an application, service or
// environment, or ErrNotFound.
func (db *DB) GetEntityName(ctx context.Context, kind model.EntityKind, accountID, id string) (string, error) {
	table, err := entityTable(kind)
	if err != nil {
		return "", err
	}
	var name string
	err = db.pool.QueryRow(ctx,
		`SELECT name FROM `+table+` WHERE account_id = $1 AND id = $2`,
		accountID, id,
	).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("storage: get %s name: %w", kind, err)
	}
	return name, nil
}

// UpsertDelegate creates or replaces a delegate row.
func (db *DB) UpsertDelegate(ctx context.Context, d model.Delegate) error {
	var profileID *string
	if d.ProfileID != "" {
		profileID = &d.ProfileID
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO delegates (account_id, id, name, host_name, delegate_type, profile_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (account_id, id) DO UPDATE
		 SET name = EXCLUDED.name, host_name = EXCLUDED.host_name,
		     delegate_type = EXCLUDED.delegate_type, profile_id = EXCLUDED.profile_id`,
		d.AccountID, d.ID, d.Name, d.HostName, d.Type, profileID,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert delegate: %w", err)
	}
	return nil
}

// DeleteDelegate removes a delegate row. Selection logs keep referring to it.
func (db *DB) DeleteDelegate(ctx context.Context, accountID, delegateID string) error {
	if _, err := db.pool.Exec(ctx,
		`DELETE FROM delegates WHERE account_id = $1 AND id = $2`, accountID, delegateID,
	); err != nil {
		return fmt.Errorf("storage: delete delegate: %w", err)
	}
	return nil
}

// UpsertDelegateProfile creates or renames a delegate profile.
func (db *DB) UpsertDelegateProfile(ctx context.Context, p model.DelegateProfile) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO delegate_profiles (account_id, id, name)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (account_id, id) DO UPDATE SET name = EXCLUDED.name`,
		p.AccountID, p.ID, p.Name,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert delegate profile: %w", err)
	}
	return nil
}

// DeleteDelegateProfile removes a delegate profile row.
func (db *DB) DeleteDelegateProfile(ctx context.Context, accountID, profileID string) error {
	if _, err := db.pool.Exec(ctx,
		`DELETE FROM delegate_profiles WHERE account_id = $1 AND id = $2`, accountID, profileID,
	); err != nil {
		return fmt.Errorf("storage: delete delegate profile: %w", err)
	}
	return nil
}

// UpsertEntity creates or renames an application, service or environment.
func (db *DB) UpsertEntity(ctx context.Context, e model.NamedEntity) error {
	table, err := entityTable(e.Kind)
	if err != nil {
		return err
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO `+table+` (account_id, id, name)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (account_id, id) DO UPDATE SET name = EXCLUDED.name`,
		e.AccountID, e.ID, e.Name,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert %s: %w", e.Kind, err)
	}
	return nil
}

// entityTable maps an entity kind to its table. The result is only ever one
// of the fixed names below, so it is safe to splice into SQL.
func entityTable(kind model.EntityKind) (string, error) {
	switch kind {
	case model.EntityApplication:
		return "applications", nil
	case model.EntityService:
		return "services", nil
	case model.EntityEnvironment:
		return "environments", nil
	default:
		return "", fmt.Errorf("storage: unknown entity kind %q", kind)
	}
}
