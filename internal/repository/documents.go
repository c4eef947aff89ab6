package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/docuchat/docuchat-backend/internal/models"
)

// ErrNotFound is returned when a row does not exist or is soft-deleted.
var ErrNotFound = errors.New("not found")

// ErrIllegalTransition is returned when a requested status change is
// not a legal pipeline edge, or the row moved to a different status
// since it was read.
var ErrIllegalTransition = errors.New("illegal status transition")

// DocumentRepository persists documents and their chunks. Every status
// change goes through TransitionStatus so the state machine is enforced
// at the storage boundary, not just in the pipeline.
type DocumentRepository struct {
	db *sqlx.DB
}

func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = models.StatusPending
	}
	query := `INSERT INTO documents
		(id, owner_id, session_id, filename, file_size, file_type, raw_key, text_key,
		 summary, risk_factors, status, error_detail, deleted_at, created_at, updated_at)
		VALUES
		(:id, :owner_id, :session_id, :filename, :file_size, :file_type, :raw_key, :text_key,
		 :summary, :risk_factors, :status, :error_detail, :deleted_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	err := r.db.GetContext(ctx, &doc,
		`SELECT * FROM documents WHERE id = ? AND deleted_at IS NULL`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

// ExistsInSession reports whether a live document with the given
// filename is already attached to the session. Uploads use this to
// reject duplicates per session, not globally.
func (r *DocumentRepository) ExistsInSession(ctx context.Context, sessionID, filename string) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(1) FROM documents
		 WHERE session_id = ? AND filename = ? AND deleted_at IS NULL`,
		sessionID, filename)
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate filename: %w", err)
	}
	return count > 0, nil
}

// TransitionStatus moves the document from its current status to next,
// validating the edge first and guarding the update with the expected
// current status. A concurrent writer that got there first makes the
// update match zero rows, which surfaces as ErrIllegalTransition.
func (r *DocumentRepository) TransitionStatus(ctx context.Context, id string, current, next models.DocumentStatus) error {
	if !current.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current, next)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND deleted_at IS NULL`,
		next, time.Now().UTC(), id, current)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: document %s is no longer in status %s", ErrIllegalTransition, id, current)
	}
	return nil
}

// SetFailure marks the document failed with a diagnostic, unless it
// already reached a terminal status.
func (r *DocumentRepository) SetFailure(ctx context.Context, id, detail string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, error_detail = ?, updated_at = ?
		 WHERE id = ? AND status NOT IN (?, ?) AND deleted_at IS NULL`,
		models.StatusFailed, detail, time.Now().UTC(),
		id, models.StatusCompleted, models.StatusFailed)
	if err != nil {
		return fmt.Errorf("failed to mark document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) SetTextKey(ctx context.Context, id, textKey string) error {
	return r.setColumn(ctx, id, "text_key", textKey)
}

func (r *DocumentRepository) SetSummary(ctx context.Context, id, summary string) error {
	return r.setColumn(ctx, id, "summary", summary)
}

func (r *DocumentRepository) SetRiskFactors(ctx context.Context, id, riskFactors string) error {
	return r.setColumn(ctx, id, "risk_factors", riskFactors)
}

func (r *DocumentRepository) setColumn(ctx context.Context, id, column, value string) error {
	query := fmt.Sprintf(
		`UPDATE documents SET %s = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`, column)
	res, err := r.db.ExecContext(ctx, query, value, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update document %s: %w", column, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceChunks atomically swaps the document's chunk rows for the
// given set. Re-running the chunking stage after a retry therefore
// converges instead of accumulating duplicates.
func (r *DocumentRepository) ReplaceChunks(ctx context.Context, documentID string, chunks []models.Chunk) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}

	query := `INSERT INTO chunks
		(id, document_id, ordinal, start_offset, end_offset, namespace, created_at)
		VALUES (:id, :document_id, :ordinal, :start_offset, :end_offset, :namespace, :created_at)`
	for i := range chunks {
		if chunks[i].CreatedAt.IsZero() {
			chunks[i].CreatedAt = time.Now().UTC()
		}
		if _, err := tx.NamedExecContext(ctx, query, chunks[i]); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", chunks[i].ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

func (r *DocumentRepository) ChunksByDocument(ctx context.Context, documentID string) ([]models.Chunk, error) {
	var chunks []models.Chunk
	err := r.db.SelectContext(ctx, &chunks,
		`SELECT * FROM chunks WHERE document_id = ? ORDER BY ordinal`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	return chunks, nil
}

// ListBySession returns the session's live documents, oldest first.
func (r *DocumentRepository) ListBySession(ctx context.Context, sessionID string) ([]models.Document, error) {
	var docs []models.Document
	err := r.db.SelectContext(ctx, &docs,
		`SELECT * FROM documents
		 WHERE session_id = ? AND deleted_at IS NULL
		 ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// SoftDelete hides the document from reads. Stored objects and vectors
// are cleaned up by the caller.
func (r *DocumentRepository) SoftDelete(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE documents SET deleted_at = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
