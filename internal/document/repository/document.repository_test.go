package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"codocs/internal/document/model"
	"codocs/pkg/apperror"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)
	now := time.Now()
	doc := model.Document{DocID: "d1", Owner: "u1", Access: []string{"u1"}, CreatedAt: now}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO documents").
		WithArgs("d1", "", "u1", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO document_access").
		WithArgs("d1", "u1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), doc))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateDuplicateID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO documents").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	err = repo.Create(context.Background(), model.Document{DocID: "d1", Owner: "u1", Access: []string{"u1"}, CreatedAt: time.Now()})
	assert.ErrorIs(t, err, ErrDuplicateID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)
	now := time.Now()

	mock.ExpectQuery("SELECT doc_id, content, owner_id, created_at, updated_at FROM documents WHERE doc_id = \\$1").
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"doc_id", "content", "owner_id", "created_at", "updated_at"}).
			AddRow("d1", "hello", "u1", now, now))
	mock.ExpectQuery("SELECT user_id FROM document_access WHERE doc_id = \\$1").
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u1").AddRow("u2"))

	doc, err := repo.FindByID(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "hello", doc.Content)
	assert.Equal(t, []string{"u1", "u2"}, doc.Access)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)

	mock.ExpectQuery("SELECT doc_id, content, owner_id, created_at, updated_at FROM documents").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"doc_id", "content", "owner_id", "created_at", "updated_at"}))

	_, err = repo.FindByID(context.Background(), "nope")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAddAccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)

	mock.ExpectExec("INSERT INTO document_access .* ON CONFLICT \\(doc_id, user_id\\) DO NOTHING").
		WithArgs("d1", "u2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO document_access").
		WithArgs("d9", "u2").
		WillReturnError(&pq.Error{Code: "23503"})

	require.NoError(t, repo.AddAccess(context.Background(), "d1", "u2"))
	assert.ErrorIs(t, repo.AddAccess(context.Background(), "d9", "u2"), apperror.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListByOwner(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)
	now := time.Now()

	mock.ExpectQuery("SELECT .* FROM documents WHERE owner_id = \\$1 ORDER BY created_at DESC").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"doc_id", "content", "owner_id", "created_at", "updated_at"}).
			AddRow("d2", "newer", "u1", now, now).
			AddRow("d1", "older", "u1", now.Add(-time.Hour), now))
	mock.ExpectQuery("SELECT .* FROM documents WHERE owner_id = \\$1").
		WithArgs("u3").
		WillReturnRows(sqlmock.NewRows([]string{"doc_id", "content", "owner_id", "created_at", "updated_at"}))

	docs, err := repo.ListByOwner(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "d2", docs[0].DocID)

	docs, err = repo.ListByOwner(context.Background(), "u3")
	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateContent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)

	mock.ExpectExec("UPDATE documents SET content = \\$1, updated_at = NOW\\(\\) WHERE doc_id = \\$2").
		WithArgs("hello", "d1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE documents").
		WithArgs("hello", "gone").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE documents").
		WithArgs("hello", "d1").
		WillReturnError(errors.New("connection refused"))

	require.NoError(t, repo.UpdateContent(context.Background(), "d1", "hello"))
	assert.ErrorIs(t, repo.UpdateContent(context.Background(), "gone", "hello"), apperror.ErrNotFound)
	assert.ErrorIs(t, repo.UpdateContent(context.Background(), "d1", "hello"), apperror.ErrUpstreamUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryRepository(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, repo.Create(ctx, model.Document{DocID: "d1", Owner: "u1", Access: []string{"u1"}, CreatedAt: base}))
	require.NoError(t, repo.Create(ctx, model.Document{DocID: "d2", Owner: "u1", Access: []string{"u1"}, CreatedAt: base.Add(time.Minute)}))
	assert.ErrorIs(t, repo.Create(ctx, model.Document{DocID: "d1", Owner: "u9"}), ErrDuplicateID)

	require.NoError(t, repo.AddAccess(ctx, "d1", "u2"))
	require.NoError(t, repo.AddAccess(ctx, "d1", "u2"))
	assert.ErrorIs(t, repo.AddAccess(ctx, "missing", "u2"), apperror.ErrNotFound)

	doc, err := repo.FindByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, doc.Access)

	docs, err := repo.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "d2", docs[0].DocID)

	require.NoError(t, repo.UpdateContent(ctx, "d1", "hello"))
	doc, err = repo.FindByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "hello", doc.Content)
}
