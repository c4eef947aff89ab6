package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/docuchat/docuchat-backend/internal/models"
	"github.com/docuchat/docuchat-backend/internal/utils"
)

// ChatRepository persists sessions and their message history. Message
// ordinals are assigned inside a transaction so an exchange always
// lands as two consecutive rows.
type ChatRepository struct {
	db *sqlx.DB
}

func NewChatRepository(db *sqlx.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) CreateSession(ctx context.Context, session *models.ChatSession) error {
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	if session.Title == "" {
		session.Title = "New chat"
	}
	query := `INSERT INTO chat_sessions
		(id, owner_id, title, namespace, deleted_at, created_at, updated_at)
		VALUES (:id, :owner_id, :title, :namespace, :deleted_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (r *ChatRepository) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	var session models.ChatSession
	err := r.db.GetContext(ctx, &session,
		`SELECT * FROM chat_sessions WHERE id = ? AND deleted_at IS NULL`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

func (r *ChatRepository) SetTitle(ctx context.Context, id, title string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chat_sessions SET title = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		title, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update session title: %w", err)
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

// MessageCount returns how many messages the session holds. Used to
// detect the first exchange for title suggestion.
func (r *ChatRepository) MessageCount(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(1) FROM chat_messages WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// AppendExchange writes the user message and the assistant reply as
// one transaction, assigning consecutive ordinals after the current
// maximum. Either both rows land or neither does.
func (r *ChatRepository) AppendExchange(ctx context.Context, sessionID string, userContent, assistantContent string) (models.ChatMessage, models.ChatMessage, error) {
	var userMsg, assistantMsg models.ChatMessage

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return userMsg, assistantMsg, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var maxOrdinal int
	if err := tx.GetContext(ctx, &maxOrdinal,
		`SELECT COALESCE(MAX(ordinal), 0) FROM chat_messages WHERE session_id = ?`,
		sessionID); err != nil {
		return userMsg, assistantMsg, fmt.Errorf("failed to read max ordinal: %w", err)
	}

	now := time.Now().UTC()
	userMsg = models.ChatMessage{
		ID:         utils.GenerateID(),
		SessionID:  sessionID,
		Role:       models.RoleUser,
		Content:    userContent,
		TokenCount: utils.EstimateTokens(userContent),
		Ordinal:    maxOrdinal + 1,
		CreatedAt:  now,
	}
	assistantMsg = models.ChatMessage{
		ID:         utils.GenerateID(),
		SessionID:  sessionID,
		Role:       models.RoleAssistant,
		Content:    assistantContent,
		TokenCount: utils.EstimateTokens(assistantContent),
		Ordinal:    maxOrdinal + 2,
		CreatedAt:  now,
	}

	query := `INSERT INTO chat_messages
		(id, session_id, role, content, token_count, ordinal, created_at)
		VALUES (:id, :session_id, :role, :content, :token_count, :ordinal, :created_at)`
	for _, msg := range []models.ChatMessage{userMsg, assistantMsg} {
		if _, err := tx.NamedExecContext(ctx, query, msg); err != nil {
			return userMsg, assistantMsg, fmt.Errorf("failed to insert message: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE chat_sessions SET updated_at = ? WHERE id = ?`, now, sessionID); err != nil {
		return userMsg, assistantMsg, fmt.Errorf("failed to touch session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return userMsg, assistantMsg, fmt.Errorf("failed to commit exchange: %w", err)
	}
	return userMsg, assistantMsg, nil
}

// History returns the most recent messages in ordinal order, capped at
// limit. A limit of zero or less means no history.
func (r *ChatRepository) History(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	var messages []models.ChatMessage
	err := r.db.SelectContext(ctx, &messages,
		`SELECT * FROM (
			SELECT * FROM chat_messages WHERE session_id = ?
			ORDER BY ordinal DESC LIMIT ?
		 ) ORDER BY ordinal ASC`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return messages, nil
}

// SoftDelete hides the session. The caller is responsible for
// releasing the vector namespace.
func (r *ChatRepository) SoftDelete(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE chat_sessions SET deleted_at = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
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
