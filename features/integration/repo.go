package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"corpora/apps/ingest/internal/secrets"
)

// ErrNotConnected means the user has no stored credential for the provider.
var ErrNotConnected = errors.New("provider not connected")

type Repository interface {
	Upsert(ctx context.Context, userID, provider, accessToken string) error
	AccessToken(ctx context.Context, userID, provider string) (string, error)
	Disconnect(ctx context.Context, userID, provider string) error
}

// PostgresRepo satisfies the connectors' credential lookup. Tokens never
// leave the repo unsealed except through AccessToken.
type PostgresRepo struct {
	db  *sql.DB
	box *secrets.Box
}

func NewPostgresRepo(db *sql.DB, box *secrets.Box) *PostgresRepo {
	return &PostgresRepo{db: db, box: box}
}

func (r *PostgresRepo) Upsert(ctx context.Context, userID, provider, accessToken string) error {
	sealed, err := r.box.Seal(accessToken)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	query := `INSERT INTO integrations (user_id, provider, sealed_token)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, provider)
		DO UPDATE SET sealed_token = $3, updated_at = NOW()`
	_, err = r.db.ExecContext(ctx, query, userID, provider, sealed)
	return err
}

func (r *PostgresRepo) AccessToken(ctx context.Context, userID, provider string) (string, error) {
	var sealed string
	query := `SELECT sealed_token FROM integrations WHERE user_id = $1 AND provider = $2`
	err := r.db.QueryRowContext(ctx, query, userID, provider).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotConnected
	}
	if err != nil {
		return "", err
	}
	return r.box.Open(sealed)
}

func (r *PostgresRepo) Disconnect(ctx context.Context, userID, provider string) error {
	query := `DELETE FROM integrations WHERE user_id = $1 AND provider = $2`
	_, err := r.db.ExecContext(ctx, query, userID, provider)
	return err
}
