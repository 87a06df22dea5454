package syncstate

import (
	"context"
	"database/sql"
	"errors"
)

type Repository interface {
	Get(ctx context.Context, key Key) (*State, error)
	Start(ctx context.Context, key Key) (*State, error)
	SavePage(ctx context.Context, key Key, pageToken string, itemsSynced int) error
	Complete(ctx context.Context, key Key, cursor string) error
	Fail(ctx context.Context, key Key, errMsg string) error
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Get returns the persisted state, or a zero idle state when no sync has run
// for this scope yet.
func (r *PostgresRepo) Get(ctx context.Context, key Key) (*State, error) {
	s := &State{}
	var lastSync sql.NullTime
	query := `SELECT user_id, provider, folder_scope, last_sync_at, next_page_token, last_cursor, items_synced, sync_status, error_message FROM sync_states WHERE user_id = $1 AND provider = $2 AND folder_scope = $3`
	err := r.db.QueryRowContext(ctx, query, key.UserID, key.Provider, key.FolderScope).Scan(
		&s.UserID, &s.Provider, &s.FolderScope, &lastSync, &s.NextPageToken,
		&s.LastCursor, &s.ItemsSynced, &s.SyncStatus, &s.ErrorMessage,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return &State{
			UserID:      key.UserID,
			Provider:    key.Provider,
			FolderScope: key.FolderScope,
			SyncStatus:  StatusIdle,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	if lastSync.Valid {
		s.LastSyncAt = &lastSync.Time
	}
	return s, nil
}

// Start transitions the scope to in_progress, clearing any stale error, and
// returns the state so the caller resumes from the persisted cursor.
func (r *PostgresRepo) Start(ctx context.Context, key Key) (*State, error) {
	s := &State{}
	query := `INSERT INTO sync_states (user_id, provider, folder_scope, sync_status, items_synced, error_message)
		VALUES ($1, $2, $3, $4, 0, '')
		ON CONFLICT (user_id, provider, folder_scope)
		DO UPDATE SET sync_status = $4, items_synced = 0, error_message = ''
		RETURNING user_id, provider, folder_scope, next_page_token, last_cursor, sync_status`
	err := r.db.QueryRowContext(ctx, query, key.UserID, key.Provider, key.FolderScope, StatusInProgress).
		Scan(&s.UserID, &s.Provider, &s.FolderScope, &s.NextPageToken, &s.LastCursor, &s.SyncStatus)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// SavePage persists progress after one page of changes.
func (r *PostgresRepo) SavePage(ctx context.Context, key Key, pageToken string, itemsSynced int) error {
	query := `UPDATE sync_states SET next_page_token = $4, items_synced = items_synced + $5 WHERE user_id = $1 AND provider = $2 AND folder_scope = $3`
	_, err := r.db.ExecContext(ctx, query, key.UserID, key.Provider, key.FolderScope, pageToken, itemsSynced)
	return err
}

func (r *PostgresRepo) Complete(ctx context.Context, key Key, cursor string) error {
	query := `UPDATE sync_states SET sync_status = $4, last_cursor = $5, next_page_token = '', last_sync_at = NOW(), error_message = '' WHERE user_id = $1 AND provider = $2 AND folder_scope = $3`
	_, err := r.db.ExecContext(ctx, query, key.UserID, key.Provider, key.FolderScope, StatusCompleted, cursor)
	return err
}

func (r *PostgresRepo) Fail(ctx context.Context, key Key, errMsg string) error {
	query := `UPDATE sync_states SET sync_status = $4, error_message = $5 WHERE user_id = $1 AND provider = $2 AND folder_scope = $3`
	_, err := r.db.ExecContext(ctx, query, key.UserID, key.Provider, key.FolderScope, StatusFailed, errMsg)
	return err
}
