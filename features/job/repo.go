package job

import (
	"context"
	"database/sql"
)

type Repository interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	ListByUser(ctx context.Context, userID string) ([]Job, error)
	Start(ctx context.Context, id string) error
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id string, errMsg string) error
	IncrementProcessed(ctx context.Context, id string) error
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Create(ctx context.Context, job *Job) error {
	query := `INSERT INTO ingestion_jobs (user_id, provider, total_items, status) VALUES ($1, $2, $3, $4) RETURNING id, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query, job.UserID, job.Provider, job.TotalItems, StatusPending).
		Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Job, error) {
	j := &Job{}
	query := `SELECT id, user_id, provider, total_items, processed_items, status, error_message, created_at, updated_at FROM ingestion_jobs WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&j.ID, &j.UserID, &j.Provider, &j.TotalItems, &j.ProcessedItems, &j.Status, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (r *PostgresRepo) ListByUser(ctx context.Context, userID string) ([]Job, error) {
	query := `SELECT id, user_id, provider, total_items, processed_items, status, error_message, created_at, updated_at FROM ingestion_jobs WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.UserID, &j.Provider, &j.TotalItems, &j.ProcessedItems, &j.Status, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *PostgresRepo) Start(ctx context.Context, id string) error {
	query := `UPDATE ingestion_jobs SET status = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, StatusProcessing)
	return err
}

func (r *PostgresRepo) Complete(ctx context.Context, id string) error {
	query := `UPDATE ingestion_jobs SET status = $2, error_message = '', updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, StatusCompleted)
	return err
}

func (r *PostgresRepo) Fail(ctx context.Context, id string, errMsg string) error {
	query := `UPDATE ingestion_jobs SET status = $2, error_message = $3, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, StatusFailed, errMsg)
	return err
}

// IncrementProcessed bumps processed_items atomically in the database.
// Concurrent task instances must not read-modify-write the counter, and the
// guard keeps processed_items from ever passing total_items.
func (r *PostgresRepo) IncrementProcessed(ctx context.Context, id string) error {
	query := `UPDATE ingestion_jobs SET processed_items = processed_items + 1, updated_at = NOW() WHERE id = $1 AND processed_items < total_items`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}
