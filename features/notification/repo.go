package notification

import (
	"context"
	"database/sql"
	"encoding/json"
)

type Repository interface {
	Create(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Create(ctx context.Context, n *Notification) error {
	if n.Metadata == nil {
		n.Metadata = json.RawMessage(`{}`)
	}
	query := `INSERT INTO notifications (user_id, title, message, type, metadata) VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`
	return r.db.QueryRowContext(ctx, query, n.UserID, n.Title, n.Message, n.Type, []byte(n.Metadata)).
		Scan(&n.ID, &n.CreatedAt)
}

func (r *PostgresRepo) ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error) {
	query := `SELECT id, user_id, title, message, type, is_read, metadata, created_at FROM notifications WHERE user_id = $1`
	if unreadOnly {
		query += ` AND is_read = FALSE`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		var metadata []byte
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.IsRead, &metadata, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Metadata = json.RawMessage(metadata)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) MarkRead(ctx context.Context, id, userID string) error {
	query := `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`
	_, err := r.db.ExecContext(ctx, query, id, userID)
	return err
}
