package notification_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"corpora/apps/ingest/features/notification"
)

func TestPostgresRepo_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := notification.NewPostgresRepo(db)

	n := &notification.Notification{
		UserID:  "u1",
		Title:   "Ingestion complete",
		Message: "3 of 3 items processed",
		Type:    notification.TypeSuccess,
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO notifications (user_id, title, message, type, metadata) VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at")).
		WithArgs("u1", "Ingestion complete", "3 of 3 items processed", notification.TypeSuccess, []byte(`{}`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("n-1", time.Now()))

	err = repo.Create(context.Background(), n)
	assert.NoError(t, err)
	assert.Equal(t, "n-1", n.ID)
}

func TestPostgresRepo_ListByUser_UnreadOnly(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := notification.NewPostgresRepo(db)

	rows := sqlmock.NewRows([]string{"id", "user_id", "title", "message", "type", "is_read", "metadata", "created_at"}).
		AddRow("n-1", "u1", "Crawl failed", "robots disallowed", notification.TypeError, false, []byte(`{"crawl_id":"c1"}`), time.Now())

	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1 AND is_read = FALSE ORDER BY created_at DESC")).
		WithArgs("u1").
		WillReturnRows(rows)

	out, err := repo.ListByUser(context.Background(), "u1", true)
	assert.NoError(t, err)
	assert.Len(t, out, 1)
	assert.False(t, out[0].IsRead)
}

func TestPostgresRepo_MarkRead(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := notification.NewPostgresRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2")).
		WithArgs("n-1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.MarkRead(context.Background(), "n-1", "u1")
	assert.NoError(t, err)
}
