package repository

import (
	"context"
	"database/sql"
	"errors"

	"codocs/internal/document/model"
	"codocs/pkg/apperror"
	"codocs/pkg/logger"

	"github.com/lib/pq"
)

// ErrDuplicateID is returned by Create when the docId is already taken.
var ErrDuplicateID = errors.New("document id already exists")

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// PostgresRepository stores documents in the documents table and their access
// lists in document_access.
type PostgresRepository struct {
	DB *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{DB: db}
}

func (r *PostgresRepository) Create(ctx context.Context, doc model.Document) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return apperror.Upstream("begin create document", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO documents (doc_id, content, owner_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)`,
		doc.DocID, doc.Content, doc.Owner, doc.CreatedAt)
	if err != nil {
		if pqCode(err) == pqUniqueViolation {
			return ErrDuplicateID
		}
		logger.Sugar.Errorf("Failed to create document %s: %v", doc.DocID, err)
		return apperror.Upstream("insert document", err)
	}

	for _, userID := range doc.Access {
		_, err = tx.ExecContext(ctx, `INSERT INTO document_access (doc_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			doc.DocID, userID)
		if err != nil {
			logger.Sugar.Errorf("Failed to grant %s access to doc %s: %v", userID, doc.DocID, err)
			return apperror.Upstream("insert document access", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperror.Upstream("commit create document", err)
	}
	return nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, docID string) (*model.Document, error) {
	var doc model.Document
	err := r.DB.QueryRowContext(ctx, "SELECT doc_id, content, owner_id, created_at, updated_at FROM documents WHERE doc_id = $1", docID).
		Scan(&doc.DocID, &doc.Content, &doc.Owner, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("document %s", docID)
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to get doc %s: %v", docID, err)
		return nil, apperror.Upstream("select document", err)
	}

	rows, err := r.DB.QueryContext(ctx, "SELECT user_id FROM document_access WHERE doc_id = $1 ORDER BY granted_at ASC", docID)
	if err != nil {
		logger.Sugar.Errorf("Failed to get access list for doc %s: %v", docID, err)
		return nil, apperror.Upstream("select document access", err)
	}
	defer rows.Close()

	doc.Access = []string{}
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, apperror.Upstream("scan document access", err)
		}
		doc.Access = append(doc.Access, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Upstream("iterate document access", err)
	}
	return &doc, nil
}

// AddAccess grants userID access to docID. Granting twice is a no-op.
func (r *PostgresRepository) AddAccess(ctx context.Context, docID, userID string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO document_access (doc_id, user_id) VALUES ($1, $2) ON CONFLICT (doc_id, user_id) DO NOTHING`,
		docID, userID)
	if err != nil {
		if pqCode(err) == pqForeignKeyViolation {
			return apperror.NotFound("document %s or user %s", docID, userID)
		}
		logger.Sugar.Errorf("Failed to add %s to doc %s: %v", userID, docID, err)
		return apperror.Upstream("insert document access", err)
	}
	return nil
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]model.Document, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT doc_id, content, owner_id, created_at, updated_at FROM documents WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		logger.Sugar.Errorf("Failed to get documents for user %s: %v", ownerID, err)
		return nil, apperror.Upstream("select documents", err)
	}
	defer rows.Close()

	docs := []model.Document{}
	for rows.Next() {
		var doc model.Document
		if err := rows.Scan(&doc.DocID, &doc.Content, &doc.Owner, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, apperror.Upstream("scan document", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Upstream("iterate documents", err)
	}
	return docs, nil
}

func (r *PostgresRepository) UpdateContent(ctx context.Context, docID, content string) error {
	result, err := r.DB.ExecContext(ctx, `UPDATE documents SET content = $1, updated_at = NOW() WHERE doc_id = $2`, content, docID)
	if err != nil {
		logger.Sugar.Errorf("Failed to update content for doc %s: %v", docID, err)
		return apperror.Upstream("update document content", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return apperror.Upstream("update document content", err)
	}
	if n == 0 {
		return apperror.NotFound("document %s", docID)
	}
	return nil
}

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}
