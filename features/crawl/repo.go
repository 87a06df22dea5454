package crawl

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
)

type Repository interface {
	Create(ctx context.Context, cfg *Config) error
	Get(ctx context.Context, id string) (*Config, error)
	ExistsByHash(ctx context.Context, hash string) (bool, error)
	UpdateStatus(ctx context.Context, id, status string) error
	SetTotalPages(ctx context.Context, id string, total int) error
	IncrementIngested(ctx context.Context, id string) (*Config, error)
	IncrementFailed(ctx context.Context, id string) (*Config, error)
	ListDueForRefresh(ctx context.Context, now time.Time) ([]Config, error)
	MarkRefreshed(ctx context.Context, id string, at time.Time) error
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Create(ctx context.Context, cfg *Config) error {
	cfg.ContentHash = cfg.Hash()
	query := `INSERT INTO web_crawl_configs (user_id, root_url, crawl_type, max_depth, respect_robots_txt, exclusions, status, refresh_interval_secs, content_hash) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query,
		cfg.UserID, cfg.RootURL, cfg.CrawlType, cfg.MaxDepth, cfg.RespectRobots,
		pq.Array(cfg.Exclusions), StatusPending, int(cfg.RefreshInterval.Seconds()), cfg.ContentHash,
	).Scan(&cfg.ID, &cfg.CreatedAt, &cfg.UpdatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Config, error) {
	c := &Config{}
	var refreshSecs int64
	var lastCrawled sql.NullTime
	query := `SELECT id, user_id, root_url, crawl_type, max_depth, respect_robots_txt, exclusions, status, pages_ingested, pages_failed, total_pages, refresh_interval_secs, last_crawled_at, content_hash, created_at, updated_at FROM web_crawl_configs WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.UserID, &c.RootURL, &c.CrawlType, &c.MaxDepth, &c.RespectRobots,
		pq.Array(&c.Exclusions), &c.Status, &c.PagesIngested, &c.PagesFailed, &c.TotalPages,
		&refreshSecs, &lastCrawled, &c.ContentHash, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.RefreshInterval = time.Duration(refreshSecs) * time.Second
	if lastCrawled.Valid {
		c.LastCrawledAt = &lastCrawled.Time
	}
	return c, nil
}

func (r *PostgresRepo) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM web_crawl_configs WHERE content_hash = $1 AND status <> $2)`
	err := r.db.QueryRowContext(ctx, query, hash, StatusFailed).Scan(&exists)
	return exists, err
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE web_crawl_configs SET status = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, status)
	return err
}

func (r *PostgresRepo) SetTotalPages(ctx context.Context, id string, total int) error {
	query := `UPDATE web_crawl_configs SET total_pages = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, total)
	return err
}

// IncrementIngested bumps the counter atomically and returns the fresh row so
// the caller can detect crawl completion. Workers for one crawl run
// concurrently; a read-modify-write here would lose counts.
func (r *PostgresRepo) IncrementIngested(ctx context.Context, id string) (*Config, error) {
	return r.increment(ctx, id, "pages_ingested")
}

func (r *PostgresRepo) IncrementFailed(ctx context.Context, id string) (*Config, error) {
	return r.increment(ctx, id, "pages_failed")
}

func (r *PostgresRepo) increment(ctx context.Context, id, column string) (*Config, error) {
	c := &Config{}
	query := `UPDATE web_crawl_configs SET ` + column + ` = ` + column + ` + 1, updated_at = NOW() WHERE id = $1 RETURNING id, pages_ingested, pages_failed, total_pages, status`
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&c.ID, &c.PagesIngested, &c.PagesFailed, &c.TotalPages, &c.Status)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *PostgresRepo) ListDueForRefresh(ctx context.Context, now time.Time) ([]Config, error) {
	query := `SELECT id, user_id, root_url, crawl_type, max_depth, respect_robots_txt, exclusions, refresh_interval_secs FROM web_crawl_configs WHERE refresh_interval_secs > 0 AND status = $1 AND (last_crawled_at IS NULL OR last_crawled_at + refresh_interval_secs * INTERVAL '1 second' <= $2)`
	rows, err := r.db.QueryContext(ctx, query, StatusCompleted, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []Config
	for rows.Next() {
		var c Config
		var refreshSecs int64
		if err := rows.Scan(&c.ID, &c.UserID, &c.RootURL, &c.CrawlType, &c.MaxDepth, &c.RespectRobots, pq.Array(&c.Exclusions), &refreshSecs); err != nil {
			return nil, err
		}
		c.RefreshInterval = time.Duration(refreshSecs) * time.Second
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

func (r *PostgresRepo) MarkRefreshed(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE web_crawl_configs SET last_crawled_at = $2, pages_ingested = 0, pages_failed = 0, total_pages = 0, status = $3, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, at, StatusPending)
	return err
}
